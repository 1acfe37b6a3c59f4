package generic

import "strings"

// =============================================================================
// IDENTITY - A person in the organization
// =============================================================================

type IdentityStatus string

const (
	StatusActive   IdentityStatus = "active"
	StatusInactive IdentityStatus = "inactive"
)

func (s IdentityStatus) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// DefaultLeaveEntitlement is the yearly entitlement given to new identities.
const DefaultLeaveEntitlement = 15

// Identity is a directory record.
//
// RemainingLeaveDays is not a field: it is always TotalLeaveEntitlement
// minus UsedLeaveDays.
type Identity struct {
	ID           IdentityID
	EmployeeCode string
	Name         string
	Email        string
	Role         Role
	Department   string
	Position     string
	ManagerID    *IdentityID
	JoinDate     Date
	Phone        string
	Address      string
	Status       IdentityStatus

	TotalLeaveEntitlement Days
	UsedLeaveDays         Days

	CreatedAt Date
}

// RemainingLeaveDays is TotalLeaveEntitlement - UsedLeaveDays.
func (i Identity) RemainingLeaveDays() Days {
	return i.TotalLeaveEntitlement.Sub(i.UsedLeaveDays)
}

// ReportsTo reports whether the identity's manager back-reference is managerID.
func (i Identity) ReportsTo(managerID IdentityID) bool {
	return i.ManagerID != nil && *i.ManagerID == managerID
}

// Clone returns a deep copy so callers cannot alias store internals.
func (i Identity) Clone() Identity {
	c := i
	if i.ManagerID != nil {
		m := *i.ManagerID
		c.ManagerID = &m
	}
	return c
}

// NormalizeEmail is the match key used for email lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IdentityPtr is a small helper for optional manager references.
func IdentityPtr(id IdentityID) *IdentityID {
	return &id
}
