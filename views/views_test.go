package views_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/hr-engine/directory"
	"github.com/warp/hr-engine/generic"
	"github.com/warp/hr-engine/generic/store"
	"github.com/warp/hr-engine/leave"
	"github.com/warp/hr-engine/views"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type team struct {
	dir     *directory.Directory
	ledger  *leave.Ledger
	views   *views.Views
	now     *time.Time
	manager generic.Identity
	members []generic.Identity
}

func newTeam(t *testing.T, window int) *team {
	t.Helper()
	now := time.Date(2025, time.September, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	mem := store.NewMemory()
	tm := &team{
		dir:    directory.New(mem, directory.WithLogger(zap.NewNop()), directory.WithClock(clock)),
		ledger: leave.NewLedger(mem, leave.WithLogger(zap.NewNop()), leave.WithClock(clock)),
		now:    &now,
	}
	tm.views = views.New(tm.dir, tm.ledger, views.WithClock(clock), views.WithRecentWindow(window))

	ctx := context.Background()
	var err error
	tm.manager, err = tm.dir.Create(ctx, directory.NewIdentity{Name: "Sarah", Email: "sarah@company.com", Role: generic.RoleManager})
	require.NoError(t, err)

	used := generic.NewDays(8)
	for _, name := range []string{"john", "jane"} {
		in := directory.NewIdentity{
			Name:          name,
			Email:         name + "@company.com",
			Role:          generic.RoleEmployee,
			ManagerID:     generic.IdentityPtr(tm.manager.ID),
			UsedLeaveDays: &used,
		}
		m, err := tm.dir.Create(ctx, in)
		require.NoError(t, err)
		tm.members = append(tm.members, m)
	}
	_, err = tm.dir.Create(ctx, directory.NewIdentity{Name: "outsider", Email: "out@company.com", Role: generic.RoleEmployee})
	require.NoError(t, err)
	return tm
}

func (tm *team) apply(t *testing.T, who generic.Identity, start generic.Date, days int) generic.LeaveRequest {
	t.Helper()
	req, err := tm.ledger.Apply(context.Background(), leave.ApplyInput{
		EmployeeID: who.ID,
		LeaveType:  generic.LeaveAnnual,
		StartDate:  start,
		EndDate:    start.AddDays(days - 1),
		Reason:     "rest",
	})
	require.NoError(t, err)
	return req
}

func (tm *team) approve(t *testing.T, id generic.RequestID) {
	t.Helper()
	ctx := context.Background()
	_, err := tm.ledger.DecideAsManager(ctx, id, generic.DecisionApproved, "")
	require.NoError(t, err)
	_, err = tm.ledger.DecideAsHR(ctx, id, generic.DecisionApproved, "")
	require.NoError(t, err)
}

// =============================================================================
// TEAM ROLLUP
// =============================================================================

func TestTeamRollup_Totals(t *testing.T) {
	// GIVEN: A manager with two reports at 15 total / 8 used each
	// WHEN: One report gets a 2-day leave fully approved
	// THEN: Totals are 30 / 18 / 12 and the approval counts for this month
	tm := newTeam(t, 5)
	ctx := context.Background()

	r := tm.apply(t, tm.members[0], generic.NewDate(2025, time.September, 10), 2)
	tm.approve(t, r.ID)
	tm.apply(t, tm.members[1], generic.NewDate(2025, time.September, 12), 1)

	rollup, err := tm.views.TeamRollup(ctx, tm.manager.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, rollup.MemberCount)
	assert.True(t, rollup.TotalEntitlement.Equal(generic.NewDays(30)), rollup.TotalEntitlement.String())
	assert.True(t, rollup.TotalUsed.Equal(generic.NewDays(18)), rollup.TotalUsed.String())
	assert.True(t, rollup.TotalRemaining.Equal(generic.NewDays(12)), rollup.TotalRemaining.String())
	assert.Equal(t, 1, rollup.PendingApprovalCount)
	assert.Equal(t, 1, rollup.ApprovedThisCalendarMonth)
	assert.Len(t, rollup.Members, 2)
	assert.Len(t, rollup.RecentRequests, 2)
}

func TestTeamRollup_RecomputedEveryCall(t *testing.T) {
	tm := newTeam(t, 5)
	ctx := context.Background()

	before, err := tm.views.TeamRollup(ctx, tm.manager.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, before.PendingApprovalCount)

	tm.apply(t, tm.members[0], generic.NewDate(2025, time.September, 10), 1)

	after, err := tm.views.TeamRollup(ctx, tm.manager.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.PendingApprovalCount)
}

func TestTeamRollup_ApprovalsOutsideMonthAreNotCounted(t *testing.T) {
	tm := newTeam(t, 5)
	ctx := context.Background()

	r := tm.apply(t, tm.members[0], generic.NewDate(2025, time.September, 10), 1)
	tm.approve(t, r.ID)

	*tm.now = time.Date(2025, time.October, 2, 9, 0, 0, 0, time.UTC)
	rollup, err := tm.views.TeamRollup(ctx, tm.manager.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, rollup.ApprovedThisCalendarMonth)

	// Same month, different year
	*tm.now = time.Date(2026, time.September, 2, 9, 0, 0, 0, time.UTC)
	rollup, err = tm.views.TeamRollup(ctx, tm.manager.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, rollup.ApprovedThisCalendarMonth)
}

func TestTeamRollup_RecentIsNewestFirstAndCapped(t *testing.T) {
	tm := newTeam(t, 3)
	ctx := context.Background()

	var ids []generic.RequestID
	for day := 1; day <= 4; day++ {
		*tm.now = time.Date(2025, time.September, day, 9, 0, 0, 0, time.UTC)
		r := tm.apply(t, tm.members[day%2], generic.NewDate(2025, time.October, day), 1)
		ids = append(ids, r.ID)
	}
	// Two applications on the same day are ordered by time of day.
	*tm.now = time.Date(2025, time.September, 4, 15, 0, 0, 0, time.UTC)
	latest := tm.apply(t, tm.members[0], generic.NewDate(2025, time.October, 20), 1)

	rollup, err := tm.views.TeamRollup(ctx, tm.manager.ID)
	require.NoError(t, err)
	require.Len(t, rollup.RecentRequests, 3)
	assert.Equal(t, latest.ID, rollup.RecentRequests[0].ID)
	assert.Equal(t, ids[3], rollup.RecentRequests[1].ID)
	assert.Equal(t, ids[2], rollup.RecentRequests[2].ID)
}

func TestTeamRollup_UnknownManagerIsEmpty(t *testing.T) {
	tm := newTeam(t, 5)
	rollup, err := tm.views.TeamRollup(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, rollup.MemberCount)
	assert.True(t, rollup.TotalEntitlement.IsZero())
	assert.Empty(t, rollup.RecentRequests)
}

// =============================================================================
// LEAVE STATS
// =============================================================================

func TestLeaveStats(t *testing.T) {
	tm := newTeam(t, 5)
	ctx := context.Background()

	approved := tm.apply(t, tm.members[0], generic.NewDate(2025, time.September, 10), 1)
	tm.approve(t, approved.ID)
	rejected := tm.apply(t, tm.members[1], generic.NewDate(2025, time.September, 11), 1)
	_, err := tm.ledger.DecideAsManager(ctx, rejected.ID, generic.DecisionRejected, "no")
	require.NoError(t, err)
	tm.apply(t, tm.members[1], generic.NewDate(2025, time.September, 12), 1)

	stats, err := tm.views.LeaveStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, views.LeaveStats{Total: 3, Pending: 1, Approved: 1, Rejected: 1}, stats)
}
