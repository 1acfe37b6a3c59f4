package directory

import "github.com/warp/hr-engine/generic"

// NewIdentity is the data accepted by Create.
type NewIdentity struct {
	Name       string
	Email      string
	Role       generic.Role
	Department string
	Position   string
	ManagerID  *generic.IdentityID
	JoinDate   generic.Date
	Phone      string
	Address    string

	// Optional overrides. Nil means the defaults: 15 total, 0 used, active.
	TotalLeaveEntitlement *generic.Days
	UsedLeaveDays         *generic.Days
	Status                *generic.IdentityStatus
}

// Patch lists the fields Update may change. Nil fields are left alone.
// Remaining leave is not here: it follows from entitlement and used days.
type Patch struct {
	Name       *string
	Email      *string
	Role       *generic.Role
	Department *string
	Position   *string
	JoinDate   *generic.Date
	Phone      *string
	Address    *string
	Status     *generic.IdentityStatus

	ManagerID *generic.IdentityID
	// ClearManager removes the reporting line. It wins over ManagerID.
	ClearManager bool

	TotalLeaveEntitlement *generic.Days
	UsedLeaveDays         *generic.Days
}

// Stats is the headcount summary.
type Stats struct {
	Total       int
	Active      int
	Departments []string
}
