/*
request.go - Leave request record and approval vocabulary

PURPOSE:
  Defines the LeaveRequest entity and the words of its two-stage approval
  workflow. The transitions themselves live in the leave package; this file
  only describes the states and which of them are terminal.

REQUEST FLOW:
  ┌──────────────────────────────────────────────────────────────────┐
  │                                                                  │
  │  apply ──▶ pending_manager ──approve──▶ pending_hr ──approve──▶ approved
  │                  │                          │                    │
  │               reject                     reject                  │
  │                  ▼                          ▼                    │
  │          rejected_manager              rejected_hr               │
  │                                                                  │
  └──────────────────────────────────────────────────────────────────┘

  approved, rejected_manager and rejected_hr are terminal. A request in a
  terminal state is never modified again.

DERIVED FIELDS:
  Days() is computed from StartDate/EndDate on every call. There is no
  stored duration that could disagree with the dates.

MANAGER SNAPSHOT:
  ManagerID is copied from the employee's record at apply time. Moving the
  employee to another manager later does not move their open requests.

SEE ALSO:
  - leave/ledger.go: The state machine
  - identity.go: Owner record
*/
package generic

import "time"

// =============================================================================
// LEAVE TYPES - Fixed catalog
// =============================================================================

type LeaveType string

const (
	LeaveAnnual       LeaveType = "Annual"
	LeaveSick         LeaveType = "Sick"
	LeavePersonal     LeaveType = "Personal"
	LeaveMaternity    LeaveType = "Maternity"
	LeavePaternity    LeaveType = "Paternity"
	LeaveEmergency    LeaveType = "Emergency"
	LeaveBereavement  LeaveType = "Bereavement"
	LeaveCompensatory LeaveType = "Compensatory"
)

// LeaveTypes is the catalog, in display order.
var LeaveTypes = []LeaveType{
	LeaveAnnual,
	LeaveSick,
	LeavePersonal,
	LeaveMaternity,
	LeavePaternity,
	LeaveEmergency,
	LeaveBereavement,
	LeaveCompensatory,
}

func (t LeaveType) Valid() bool {
	for _, known := range LeaveTypes {
		if t == known {
			return true
		}
	}
	return false
}

// =============================================================================
// STATUS / DECISION
// =============================================================================

type LeaveStatus string

const (
	StatusPendingManager  LeaveStatus = "pending_manager"
	StatusPendingHR       LeaveStatus = "pending_hr"
	StatusApproved        LeaveStatus = "approved"
	StatusRejectedManager LeaveStatus = "rejected_manager"
	StatusRejectedHR      LeaveStatus = "rejected_hr"
)

// Terminal reports whether no further transition is allowed.
func (s LeaveStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejectedManager || s == StatusRejectedHR
}

func (s LeaveStatus) Pending() bool {
	return s == StatusPendingManager || s == StatusPendingHR
}

func (s LeaveStatus) Rejected() bool {
	return s == StatusRejectedManager || s == StatusRejectedHR
}

type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

func (d Decision) Valid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// Stage names the approval step a decision belongs to.
type Stage string

const (
	StageManager Stage = "manager"
	StageHR      Stage = "hr"
)

// =============================================================================
// LEAVE REQUEST
// =============================================================================

// StageDecision is one approver's verdict.
type StageDecision struct {
	Decision Decision
	Date     Date
	Comments string
	ActorID  IdentityID
	// ActorSynthesized marks a decision made by a principal with no
	// directory record behind it.
	ActorSynthesized bool
}

// LeaveRequest is one leave application and its approval trail.
type LeaveRequest struct {
	ID         RequestID
	EmployeeID IdentityID
	LeaveType  LeaveType
	StartDate  Date
	EndDate    Date
	Reason     string
	Status     LeaveStatus

	AppliedDate Date
	// AppliedAt orders requests applied on the same day.
	AppliedAt time.Time

	// Snapshot of the owner's manager at apply time. Nil when the owner had none.
	ManagerID *IdentityID

	// Display snapshot taken at apply time. Kept so a request still renders
	// after its owner is deleted.
	EmployeeName  string
	EmployeeEmail string
	Department    string

	ManagerDecision *StageDecision
	HRDecision      *StageDecision
}

// Days is the inclusive day count between StartDate and EndDate.
func (r LeaveRequest) Days() int {
	return InclusiveDayCount(r.StartDate, r.EndDate)
}

// LeaveDays is Days as a decimal quantity for counter arithmetic.
func (r LeaveRequest) LeaveDays() Days {
	return NewDays(r.Days())
}

// Clone returns a deep copy so callers cannot alias store internals.
func (r LeaveRequest) Clone() LeaveRequest {
	c := r
	if r.ManagerID != nil {
		m := *r.ManagerID
		c.ManagerID = &m
	}
	if r.ManagerDecision != nil {
		d := *r.ManagerDecision
		c.ManagerDecision = &d
	}
	if r.HRDecision != nil {
		d := *r.HRDecision
		c.HRDecision = &d
	}
	return c
}
