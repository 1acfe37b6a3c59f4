package portal_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/hr-engine/authz"
	"github.com/warp/hr-engine/directory"
	"github.com/warp/hr-engine/generic"
	"github.com/warp/hr-engine/generic/store"
	"github.com/warp/hr-engine/leave"
	"github.com/warp/hr-engine/notify"
	"github.com/warp/hr-engine/portal"
	"github.com/warp/hr-engine/views"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type deniedCounter map[authz.Action]int

func (d deniedCounter) Denied(_ authz.Object, action authz.Action) { d[action]++ }

type fixture struct {
	svc    *portal.Service
	mem    *store.Memory
	denied deniedCounter

	admin, sarah, mike, john, jane generic.Principal
}

func newFixture(t *testing.T, opts ...authz.Option) *fixture {
	t.Helper()
	clock := generic.FixedClock(time.Date(2025, time.September, 1, 9, 0, 0, 0, time.UTC))
	mem := store.NewMemory()
	nop := zap.NewNop()

	dir := directory.New(mem, directory.WithLogger(nop), directory.WithClock(clock))
	ledger := leave.NewLedger(mem, leave.WithLogger(nop), leave.WithClock(clock))
	center := notify.New(dir, notify.WithLogger(nop), notify.WithClock(clock))
	mem.Subscribe(center.Observe)
	az, err := authz.New(append([]authz.Option{authz.WithLogger(nop)}, opts...)...)
	require.NoError(t, err)

	f := &fixture{mem: mem, denied: deniedCounter{}}
	f.svc = portal.New(portal.Deps{
		Directory:  dir,
		Ledger:     ledger,
		Views:      views.New(dir, ledger, views.WithClock(clock)),
		Authorizer: az,
		Notify:     center,
		Store:      mem,
		Metrics:    f.denied,
		Logger:     nop,
	})

	put := func(id generic.IdentityID, email string, role generic.Role, manager *generic.IdentityID) generic.Principal {
		identity := generic.Identity{
			ID: id, Name: string(id), Email: email, Role: role, ManagerID: manager,
			Status:                generic.StatusActive,
			TotalLeaveEntitlement: generic.NewDays(15),
			UsedLeaveDays:         generic.NewDays(0),
		}
		require.NoError(t, mem.PutIdentity(context.Background(), identity))
		return generic.Principal{Identity: identity}
	}
	f.admin = put("hr001", "hr@company.com", generic.RoleAdmin, nil)
	f.sarah = put("mgr001", "sarah@company.com", generic.RoleManager, nil)
	f.mike = put("mgr002", "mike@company.com", generic.RoleManager, nil)
	f.john = put("emp001", "john@company.com", generic.RoleEmployee, generic.IdentityPtr("mgr001"))
	f.jane = put("emp002", "jane@company.com", generic.RoleEmployee, generic.IdentityPtr("mgr002"))
	return f
}

func (f *fixture) apply(t *testing.T, p generic.Principal) generic.LeaveRequest {
	t.Helper()
	req, err := f.svc.Apply(context.Background(), p, leave.ApplyInput{
		LeaveType: generic.LeaveAnnual,
		StartDate: generic.NewDate(2025, time.September, 15),
		EndDate:   generic.NewDate(2025, time.September, 17),
		Reason:    "trip",
	})
	require.NoError(t, err)
	return req
}

func guest(role generic.Role) generic.Principal {
	return generic.Principal{
		Identity:    generic.Identity{ID: "guest-1", Email: "visitor@company.com", Role: role},
		Synthesized: true,
	}
}

// =============================================================================
// WORKFLOW
// =============================================================================

func TestPortal_FullApprovalRecordsActors(t *testing.T) {
	// GIVEN: john reports to sarah
	// WHEN: john applies, sarah approves, the admin approves
	// THEN: The request is approved, both actors are recorded, john is charged
	f := newFixture(t)
	ctx := context.Background()

	req := f.apply(t, f.john)
	assert.Equal(t, generic.IdentityID("emp001"), req.EmployeeID)

	queue, err := f.svc.PendingManagerQueue(ctx, f.sarah)
	require.NoError(t, err)
	require.Len(t, queue, 1)

	_, err = f.svc.DecideAsManager(ctx, f.sarah, req.ID, generic.DecisionApproved, "ok")
	require.NoError(t, err)
	final, err := f.svc.DecideAsHR(ctx, f.admin, req.ID, generic.DecisionApproved, "enjoy")
	require.NoError(t, err)

	assert.Equal(t, generic.StatusApproved, final.Status)
	assert.Equal(t, generic.IdentityID("mgr001"), final.ManagerDecision.ActorID)
	assert.Equal(t, generic.IdentityID("hr001"), final.HRDecision.ActorID)

	me, err := f.svc.Identity(ctx, f.john, "emp001")
	require.NoError(t, err)
	assert.True(t, me.UsedLeaveDays.Equal(generic.NewDays(3)), me.UsedLeaveDays.String())
}

func TestPortal_ManagerCannotDecideOtherTeams(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.apply(t, f.jane)

	_, err := f.svc.DecideAsManager(ctx, f.sarah, req.ID, generic.DecisionApproved, "")
	assert.ErrorIs(t, err, generic.ErrForbidden)

	_, err = f.svc.DecideAsHR(ctx, f.mike, req.ID, generic.DecisionApproved, "")
	assert.ErrorIs(t, err, generic.ErrForbidden)

	// The request is untouched
	got, err := f.svc.Request(ctx, f.admin, req.ID)
	require.NoError(t, err)
	assert.Equal(t, generic.StatusPendingManager, got.Status)
	assert.Equal(t, 1, f.denied[authz.ActionDecideManager])
	assert.Equal(t, 1, f.denied[authz.ActionDecideHR])
}

func TestPortal_EmployeeCannotApplyForOthers(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Apply(context.Background(), f.john, leave.ApplyInput{
		EmployeeID: "emp002",
		LeaveType:  generic.LeaveSick,
		StartDate:  generic.NewDate(2025, time.September, 2),
		EndDate:    generic.NewDate(2025, time.September, 2),
		Reason:     "x",
	})
	assert.ErrorIs(t, err, generic.ErrForbidden)
}

func TestPortal_AdminBackstopQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.apply(t, f.john)
	f.apply(t, f.jane)

	all, err := f.svc.PendingManagerQueue(ctx, f.admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := f.svc.PendingManagerQueue(ctx, f.mike)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, generic.IdentityID("emp002"), mine[0].EmployeeID)

	_, err = f.svc.PendingManagerQueue(ctx, f.john)
	assert.ErrorIs(t, err, generic.ErrForbidden)

	_, err = f.svc.PendingHRQueue(ctx, f.sarah)
	assert.ErrorIs(t, err, generic.ErrForbidden)
}

// =============================================================================
// VISIBILITY
// =============================================================================

func TestPortal_RequestVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	johns := f.apply(t, f.john)
	f.apply(t, f.jane)

	tests := []struct {
		name string
		who  generic.Principal
		want int
	}{
		{"employee sees own", f.john, 1},
		{"manager sees team", f.sarah, 1},
		{"other manager sees own team", f.mike, 1},
		{"admin sees all", f.admin, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.Requests(ctx, tt.who)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}

	_, err := f.svc.Request(ctx, f.jane, johns.ID)
	assert.ErrorIs(t, err, generic.ErrForbidden)
}

func TestPortal_MissingRecordsAreConcealed(t *testing.T) {
	// GIVEN: No request or identity with the probed ids
	// WHEN: A non-admin probes them
	// THEN: The answer is Forbidden, the same as for hidden records
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Request(ctx, f.john, "no-such-request")
	assert.ErrorIs(t, err, generic.ErrForbidden)
	_, err = f.svc.Identity(ctx, f.john, "no-such-identity")
	assert.ErrorIs(t, err, generic.ErrForbidden)
	_, err = f.svc.Identity(ctx, f.john, "emp002")
	assert.ErrorIs(t, err, generic.ErrForbidden)

	_, err = f.svc.Request(ctx, f.admin, "no-such-request")
	assert.True(t, generic.IsNotFound(err))
}

func TestPortal_IdentityVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mine, err := f.svc.Identities(ctx, f.sarah)
	require.NoError(t, err)
	ids := make([]generic.IdentityID, 0, len(mine))
	for _, i := range mine {
		ids = append(ids, i.ID)
	}
	assert.ElementsMatch(t, []generic.IdentityID{"mgr001", "emp001"}, ids)

	all, err := f.svc.Identities(ctx, f.admin)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	reports, err := f.svc.DirectReports(ctx, f.sarah, "mgr001")
	require.NoError(t, err)
	assert.Len(t, reports, 1)
	_, err = f.svc.DirectReports(ctx, f.sarah, "mgr002")
	assert.ErrorIs(t, err, generic.ErrForbidden)
}

// =============================================================================
// IDENTITY ADMINISTRATION
// =============================================================================

func TestPortal_SequentialCodes(t *testing.T) {
	// GIVEN: An admin and no deleted employees
	// WHEN: Two employees are created back to back
	// THEN: Their codes are consecutive
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.CreateIdentity(ctx, f.admin, directory.NewIdentity{Name: "A", Email: "a@company.com", Role: generic.RoleEmployee})
	require.NoError(t, err)
	b, err := f.svc.CreateIdentity(ctx, f.admin, directory.NewIdentity{Name: "B", Email: "b@company.com", Role: generic.RoleEmployee})
	require.NoError(t, err)

	assert.Equal(t, "EMP003", a.EmployeeCode)
	assert.Equal(t, "EMP004", b.EmployeeCode)
}

func TestPortal_OnlyAdminsManageIdentities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateIdentity(ctx, f.sarah, directory.NewIdentity{Name: "X", Email: "x@company.com", Role: generic.RoleEmployee})
	assert.ErrorIs(t, err, generic.ErrForbidden)

	dept := "Design"
	_, err = f.svc.UpdateIdentity(ctx, f.john, "emp001", directory.Patch{Department: &dept})
	assert.ErrorIs(t, err, generic.ErrForbidden)

	assert.ErrorIs(t, f.svc.DeleteIdentity(ctx, f.sarah, "emp001"), generic.ErrForbidden)

	updated, err := f.svc.UpdateIdentity(ctx, f.admin, "emp001", directory.Patch{Department: &dept})
	require.NoError(t, err)
	assert.Equal(t, "Design", updated.Department)

	require.NoError(t, f.svc.DeleteIdentity(ctx, f.admin, "emp001"))
	_, err = f.svc.Identity(ctx, f.admin, "emp001")
	assert.True(t, generic.IsNotFound(err))
}

// =============================================================================
// GUESTS
// =============================================================================

func TestPortal_GuestMutationsSwitch(t *testing.T) {
	ctx := context.Background()

	t.Run("allowed by default", func(t *testing.T) {
		f := newFixture(t)
		req := f.apply(t, f.john)
		got, err := f.svc.DecideAsHR(ctx, guest(generic.RoleAdmin), req.ID, generic.DecisionRejected, "")
		assert.ErrorIs(t, err, generic.ErrInvalidTransition)
		assert.Empty(t, got.ID)
	})

	t.Run("denied when disabled", func(t *testing.T) {
		f := newFixture(t, authz.WithGuestMutations(false))
		req := f.apply(t, f.john)
		_, err := f.svc.DecideAsManager(ctx, guest(generic.RoleAdmin), req.ID, generic.DecisionApproved, "")
		assert.ErrorIs(t, err, generic.ErrForbidden)

		// Reads still work
		_, err = f.svc.LeaveStats(ctx, guest(generic.RoleAdmin))
		assert.NoError(t, err)
	})
}

func TestPortal_GuestDecisionIsMarkedSynthesized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.apply(t, f.john)

	got, err := f.svc.DecideAsManager(ctx, guest(generic.RoleAdmin), req.ID, generic.DecisionApproved, "")
	require.NoError(t, err)
	require.NotNil(t, got.ManagerDecision)
	assert.Equal(t, generic.IdentityID("guest-1"), got.ManagerDecision.ActorID)
	assert.True(t, got.ManagerDecision.ActorSynthesized)
}

// =============================================================================
// VIEWS AND MAINTENANCE
// =============================================================================

func TestPortal_ViewsAreScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.apply(t, f.john)

	rollup, err := f.svc.TeamRollup(ctx, f.sarah, "mgr001")
	require.NoError(t, err)
	assert.Equal(t, 1, rollup.PendingApprovalCount)

	_, err = f.svc.TeamRollup(ctx, f.sarah, "mgr002")
	assert.ErrorIs(t, err, generic.ErrForbidden)

	_, err = f.svc.LeaveStats(ctx, f.sarah)
	assert.ErrorIs(t, err, generic.ErrForbidden)
	stats, err := f.svc.LeaveStats(ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)

	inbox, err := f.svc.Notifications(ctx, f.sarah)
	require.NoError(t, err)
	assert.NotEmpty(t, inbox)
}

func TestPortal_NotificationsHideForeignRequests(t *testing.T) {
	// GIVEN: John and Jane each applied; the global feed announces both
	// WHEN: Jane reads her notifications
	// THEN: Only her own request is referenced; John's stays visible to his manager
	f := newFixture(t)
	ctx := context.Background()
	johns := f.apply(t, f.john)
	janes := f.apply(t, f.jane)

	refs := func(p generic.Principal) []generic.RequestID {
		list, err := f.svc.Notifications(ctx, p)
		require.NoError(t, err)
		var ids []generic.RequestID
		for _, n := range list {
			if n.RequestID != "" {
				ids = append(ids, n.RequestID)
			}
		}
		return ids
	}

	jane := refs(f.jane)
	assert.Contains(t, jane, janes.ID)
	assert.NotContains(t, jane, johns.ID)

	assert.Contains(t, refs(f.sarah), johns.ID)
	assert.NotContains(t, refs(f.sarah), janes.ID)
}

func TestPortal_Reset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.apply(t, f.john)

	assert.ErrorIs(t, f.svc.ResetLeaveData(ctx, f.sarah), generic.ErrForbidden)

	require.NoError(t, f.svc.ResetLeaveData(ctx, f.admin))
	left, err := f.svc.Requests(ctx, f.admin)
	require.NoError(t, err)
	assert.Empty(t, left)
	people, err := f.svc.Identities(ctx, f.admin)
	require.NoError(t, err)
	assert.Len(t, people, 5)

	require.NoError(t, f.svc.ResetAll(ctx, f.admin))
	people, err = f.svc.Identities(ctx, f.admin)
	require.NoError(t, err)
	assert.Empty(t, people)
}

func TestPortal_LoadSnapshot(t *testing.T) {
	// GIVEN: A populated store
	// WHEN: A snapshot holding a single administrator is loaded
	// THEN: The store holds exactly the snapshot and only admins may load it
	f := newFixture(t)
	ctx := context.Background()
	f.apply(t, f.john)

	snap := generic.Snapshot{Identities: []generic.Identity{f.admin.Identity}}
	assert.ErrorIs(t, f.svc.LoadSnapshot(ctx, f.john, snap), generic.ErrForbidden)
	assert.Equal(t, 1, f.denied[authz.ActionReset])

	require.NoError(t, f.svc.LoadSnapshot(ctx, f.admin, snap))
	people, err := f.svc.Identities(ctx, f.admin)
	require.NoError(t, err)
	require.Len(t, people, 1)
	assert.Equal(t, generic.IdentityID("hr001"), people[0].ID)
	reqs, err := f.svc.Requests(ctx, f.admin)
	require.NoError(t, err)
	assert.Empty(t, reqs)
}
