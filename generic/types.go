/*
Package generic provides the shared domain model of the HR engine.

PURPOSE:
  This package contains the types every component agrees on: identities,
  leave requests, day counts, dates, the error taxonomy and the store
  contracts. Components (directory, leave, authz, views) depend on this
  package and never on each other's internals.

KEY CONCEPTS IN THIS FILE (types.go):
  - Days: A decimal quantity of leave days (entitlement, usage, duration)
  - Identifiers: Type-safe ids for identities and leave requests
  - Role: The closed set of principal roles

DESIGN PRINCIPLES:
  1. Derived values are computed: remaining leave and request duration are
     accessors over source fields, never stored
  2. Precision: Uses decimal.Decimal so counters never drift
  3. Type Safety: Strong typing for IDs prevents mixing identity/request IDs

SEE ALSO:
  - identity.go: Identity record
  - request.go: LeaveRequest record and its state machine vocabulary
  - time.go: Date and inclusive day counting
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// DAYS - Decimal quantity of leave days
// =============================================================================

// Days is a count of leave days. The zero value is zero days.
type Days struct {
	Value decimal.Decimal
}

func NewDays(value int) Days { return Days{Value: decimal.NewFromInt(int64(value))} }

func NewDaysFromFloat(value float64) Days { return Days{Value: decimal.NewFromFloat(value)} }

// ParseDays parses a decimal string such as "15" or "2.5".
func ParseDays(s string) (Days, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Days{}, err
	}
	return Days{Value: d}, nil
}

func (d Days) Add(o Days) Days          { return Days{Value: d.Value.Add(o.Value)} }
func (d Days) Sub(o Days) Days          { return Days{Value: d.Value.Sub(o.Value)} }
func (d Days) Neg() Days                { return Days{Value: d.Value.Neg()} }
func (d Days) IsNegative() bool         { return d.Value.IsNegative() }
func (d Days) IsZero() bool             { return d.Value.IsZero() }
func (d Days) Equal(o Days) bool        { return d.Value.Equal(o.Value) }
func (d Days) GreaterThan(o Days) bool  { return d.Value.GreaterThan(o.Value) }
func (d Days) LessThan(o Days) bool     { return d.Value.LessThan(o.Value) }
func (d Days) String() string           { return d.Value.String() }
func (d Days) Float64() float64         { f, _ := d.Value.Float64(); return f }

// SumDays adds up a list of day counts.
func SumDays(ds ...Days) Days {
	total := Days{Value: decimal.Zero}
	for _, d := range ds {
		total = total.Add(d)
	}
	return total
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type IdentityID string
type RequestID string

// =============================================================================
// ROLE - Closed set of principal roles
// =============================================================================

type Role string

const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

// Roles lists every role in declaration order.
var Roles = []Role{RoleEmployee, RoleManager, RoleAdmin}

func (r Role) Valid() bool {
	switch r {
	case RoleEmployee, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// CodePrefix is the three-letter prefix of employee codes issued to the role.
func (r Role) CodePrefix() string {
	switch r {
	case RoleManager:
		return "MGR"
	case RoleAdmin:
		return "ADM"
	default:
		return "EMP"
	}
}

// ParseRole parses a role name. Unknown names are rejected.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", &FieldError{Field: "role", Reason: "unknown role " + s}
	}
	return r, nil
}
