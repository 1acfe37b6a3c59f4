package session_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/hr-engine/directory"
	"github.com/warp/hr-engine/generic"
	"github.com/warp/hr-engine/generic/store"
	"github.com/warp/hr-engine/session"
)

func newTestSetup(t *testing.T) (*directory.Directory, *session.Resolver, *session.Sessions) {
	t.Helper()
	clock := generic.FixedClock(time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC))
	dir := directory.New(store.NewMemory(), directory.WithLogger(zap.NewNop()), directory.WithClock(clock))

	n := 0
	resolver := session.NewResolver(dir,
		session.WithResolverLogger(zap.NewNop()),
		session.WithResolverClock(clock),
		session.WithGuestIDGenerator(func() string {
			n++
			return fmt.Sprintf("%d", n)
		}),
	)
	sessions := session.NewSessions(dir, resolver, session.WithSessionsLogger(zap.NewNop()))
	return dir, resolver, sessions
}

func TestResolve_DirectoryRoleWinsOverAssertedRole(t *testing.T) {
	// GIVEN: john is an employee in the directory
	// WHEN: He logs in asserting admin
	// THEN: The principal is the directory record with role employee
	dir, resolver, _ := newTestSetup(t)
	ctx := context.Background()

	john, err := dir.Create(ctx, directory.NewIdentity{Name: "John", Email: "john@company.com", Role: generic.RoleEmployee})
	require.NoError(t, err)

	p, err := resolver.ResolveOrSynthesize(ctx, "JOHN@company.com", generic.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, john.ID, p.ID())
	assert.Equal(t, generic.RoleEmployee, p.Role())
	assert.False(t, p.Synthesized)
}

func TestResolve_UnknownEmailSynthesizesGuest(t *testing.T) {
	dir, resolver, _ := newTestSetup(t)
	ctx := context.Background()

	p, err := resolver.ResolveOrSynthesize(ctx, "jane.doe@company.com", generic.RoleManager)
	require.NoError(t, err)

	assert.True(t, p.Synthesized)
	assert.True(t, strings.HasPrefix(string(p.ID()), session.GuestIDPrefix))
	assert.Equal(t, generic.RoleManager, p.Role())
	assert.Equal(t, "jane doe", p.Identity.Name)
	assert.True(t, p.Identity.RemainingLeaveDays().Equal(generic.NewDays(15)))
	assert.True(t, p.Actor().Synthesized)

	all, err := dir.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "guest must not be inserted into the directory")
}

func TestResolve_RejectsBadInput(t *testing.T) {
	_, resolver, _ := newTestSetup(t)
	ctx := context.Background()

	_, err := resolver.ResolveOrSynthesize(ctx, "  ", generic.RoleEmployee)
	assert.ErrorIs(t, err, generic.ErrInvalidInput)

	_, err = resolver.ResolveOrSynthesize(ctx, "a@company.com", "root")
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}

func TestSessions_LookupFollowsDirectory(t *testing.T) {
	// GIVEN: A session for a directory-backed employee
	// WHEN: An admin promotes them and later deletes them
	// THEN: Lookup reflects the promotion, then reports no session
	dir, _, sessions := newTestSetup(t)
	ctx := context.Background()

	john, err := dir.Create(ctx, directory.NewIdentity{Name: "John", Email: "john@company.com", Role: generic.RoleEmployee})
	require.NoError(t, err)

	token, _, err := sessions.Login(ctx, "john@company.com", generic.RoleEmployee)
	require.NoError(t, err)

	manager := generic.RoleManager
	_, err = dir.Update(ctx, john.ID, directory.Patch{Role: &manager})
	require.NoError(t, err)

	p, err := sessions.Lookup(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, generic.RoleManager, p.Role())

	require.NoError(t, dir.Delete(ctx, john.ID))
	_, err = sessions.Lookup(ctx, token)
	assert.ErrorIs(t, err, session.ErrNoSession)
	assert.Equal(t, 0, sessions.Active())
}

func TestSessions_GuestKeepsStableID(t *testing.T) {
	_, _, sessions := newTestSetup(t)
	ctx := context.Background()

	token, first, err := sessions.Login(ctx, "guest@company.com", generic.RoleEmployee)
	require.NoError(t, err)

	again, err := sessions.Lookup(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, first.ID(), again.ID())

	sessions.Logout(token)
	_, err = sessions.Lookup(ctx, token)
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestSessions_Register(t *testing.T) {
	dir, _, sessions := newTestSetup(t)
	ctx := context.Background()

	token, p, err := sessions.Register(ctx, directory.NewIdentity{Name: "Amy", Email: "amy@company.com", Role: generic.RoleEmployee})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "EMP001", p.Identity.EmployeeCode)

	found, err := dir.FindByEmail(ctx, "amy@company.com")
	require.NoError(t, err)
	assert.Equal(t, p.ID(), found.ID)

	_, _, err = sessions.Register(ctx, directory.NewIdentity{Name: "Eve", Email: "eve@company.com", Role: generic.RoleAdmin})
	assert.ErrorIs(t, err, generic.ErrForbidden)

	_, _, err = sessions.Register(ctx, directory.NewIdentity{Name: "Bob", Email: "bob@company.com", Role: "intern"})
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}
