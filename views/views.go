// Package views derives read-only projections from the directory and the
// leave ledger. Nothing here is cached: every call recomputes from current
// state.
package views

import (
	"context"
	"sort"

	"github.com/warp/hr-engine/generic"
)

// DefaultRecentWindow is how many requests a team rollup lists.
const DefaultRecentWindow = 5

// Directory is the part of the identity directory views read.
type Directory interface {
	ListDirectReports(ctx context.Context, managerID generic.IdentityID) ([]generic.Identity, error)
}

// Ledger is the part of the leave ledger views read.
type Ledger interface {
	All(ctx context.Context) ([]generic.LeaveRequest, error)
}

type Views struct {
	dir          Directory
	ledger       Ledger
	clock        generic.Clock
	recentWindow int
}

type Option func(*Views)

func WithClock(clock generic.Clock) Option {
	return func(v *Views) { v.clock = clock }
}

// WithRecentWindow caps TeamRollup.RecentRequests. Values below 1 are ignored.
func WithRecentWindow(n int) Option {
	return func(v *Views) {
		if n > 0 {
			v.recentWindow = n
		}
	}
}

func New(dir Directory, ledger Ledger, opts ...Option) *Views {
	v := &Views{
		dir:          dir,
		ledger:       ledger,
		clock:        generic.SystemClock,
		recentWindow: DefaultRecentWindow,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// =============================================================================
// TEAM ROLLUP
// =============================================================================

// MemberUsage is one direct report's leave counters.
type MemberUsage struct {
	ID         generic.IdentityID
	Name       string
	Department string
	Total      generic.Days
	Used       generic.Days
	Remaining  generic.Days
}

// TeamRollup summarizes a manager's direct reports and their requests.
type TeamRollup struct {
	ManagerID                 generic.IdentityID
	MemberCount               int
	TotalEntitlement          generic.Days
	TotalUsed                 generic.Days
	TotalRemaining            generic.Days
	PendingApprovalCount      int
	ApprovedThisCalendarMonth int
	RecentRequests            []generic.LeaveRequest
	Members                   []MemberUsage
}

// TeamRollup covers the manager's current direct reports.
//
// PendingApprovalCount counts team requests still in pending_manager.
// ApprovedThisCalendarMonth counts team requests whose final approval is
// dated in the current calendar month. RecentRequests is newest first by
// applied date.
func (v *Views) TeamRollup(ctx context.Context, managerID generic.IdentityID) (TeamRollup, error) {
	members, err := v.dir.ListDirectReports(ctx, managerID)
	if err != nil {
		return TeamRollup{}, err
	}
	all, err := v.ledger.All(ctx)
	if err != nil {
		return TeamRollup{}, err
	}

	rollup := TeamRollup{
		ManagerID:        managerID,
		MemberCount:      len(members),
		TotalEntitlement: generic.NewDays(0),
		TotalUsed:        generic.NewDays(0),
		TotalRemaining:   generic.NewDays(0),
		RecentRequests:   []generic.LeaveRequest{},
		Members:          []MemberUsage{},
	}

	team := make(map[generic.IdentityID]bool, len(members))
	for _, m := range members {
		team[m.ID] = true
		rollup.TotalEntitlement = rollup.TotalEntitlement.Add(m.TotalLeaveEntitlement)
		rollup.TotalUsed = rollup.TotalUsed.Add(m.UsedLeaveDays)
		rollup.TotalRemaining = rollup.TotalRemaining.Add(m.RemainingLeaveDays())
		rollup.Members = append(rollup.Members, MemberUsage{
			ID:         m.ID,
			Name:       m.Name,
			Department: m.Department,
			Total:      m.TotalLeaveEntitlement,
			Used:       m.UsedLeaveDays,
			Remaining:  m.RemainingLeaveDays(),
		})
	}

	today := v.clock.Today()
	var teamRequests []generic.LeaveRequest
	for _, r := range all {
		if !team[r.EmployeeID] {
			continue
		}
		teamRequests = append(teamRequests, r)

		switch r.Status {
		case generic.StatusPendingManager:
			rollup.PendingApprovalCount++
		case generic.StatusApproved:
			if approvedOn(r).SameMonth(today) {
				rollup.ApprovedThisCalendarMonth++
			}
		}
	}

	sortNewestFirst(teamRequests)
	if len(teamRequests) > v.recentWindow {
		teamRequests = teamRequests[:v.recentWindow]
	}
	rollup.RecentRequests = append(rollup.RecentRequests, teamRequests...)
	return rollup, nil
}

// approvedOn is the HR decision date, or the applied date for records
// that carry no decision trail.
func approvedOn(r generic.LeaveRequest) generic.Date {
	if r.HRDecision != nil && !r.HRDecision.Date.IsZero() {
		return r.HRDecision.Date
	}
	return r.AppliedDate
}

func sortNewestFirst(reqs []generic.LeaveRequest) {
	sort.SliceStable(reqs, func(i, j int) bool {
		a, b := reqs[i], reqs[j]
		if !a.AppliedDate.Equal(b.AppliedDate) {
			return a.AppliedDate.After(b.AppliedDate)
		}
		return a.AppliedAt.After(b.AppliedAt)
	})
}

// =============================================================================
// LEAVE STATS
// =============================================================================

// LeaveStats counts requests by outcome across the whole ledger.
type LeaveStats struct {
	Total    int
	Pending  int
	Approved int
	Rejected int
}

func (v *Views) LeaveStats(ctx context.Context) (LeaveStats, error) {
	all, err := v.ledger.All(ctx)
	if err != nil {
		return LeaveStats{}, err
	}
	stats := LeaveStats{Total: len(all)}
	for _, r := range all {
		switch {
		case r.Status.Pending():
			stats.Pending++
		case r.Status == generic.StatusApproved:
			stats.Approved++
		case r.Status.Rejected():
			stats.Rejected++
		}
	}
	return stats, nil
}
