/*
ledger.go - Leave Ledger and its two-stage approval state machine

PURPOSE:
  Owns leave requests and is the only code that moves them between states.
  Every transition is a read-modify-write inside one store transaction, so
  two decisions on the same request can never interleave.

STATE MACHINE:
  pending_manager --approve--> pending_hr --approve--> approved
  pending_manager --reject---> rejected_manager
  pending_hr      --reject---> rejected_hr

  Any other move fails with ErrInvalidTransition. Out-of-order decisions
  (an HR decision on a pending_manager request) are refused, not repaired.

COUNTERS:
  Applying and the manager decision leave the owner's counters alone. The
  HR approval adds Days() to the owner's UsedLeaveDays in the same
  transaction that marks the request approved. Since approved is terminal
  this happens at most once per request.

  If the owner was deleted in the meantime the approval still goes through
  and there is no counter to update.

ERRORS:
  Apply:  ErrUnknownEmployee, ErrInvalidDateRange, ErrInvalidInput
  Decide: ErrNotFound, ErrInvalidInput (decision value), ErrInvalidTransition

SEE ALSO:
  - generic/request.go: LeaveRequest and status vocabulary
  - authz/: Who may call which transition
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/hr-engine/generic"
)

// ApplyInput is a new leave application.
type ApplyInput struct {
	EmployeeID generic.IdentityID
	LeaveType  generic.LeaveType
	StartDate  generic.Date
	EndDate    generic.Date
	Reason     string
}

// Ledger drives leave requests through the approval workflow.
type Ledger struct {
	store  generic.TxStore
	clock  generic.Clock
	newID  func() string
	logger *zap.Logger
}

type Option func(*Ledger)

func WithClock(clock generic.Clock) Option {
	return func(l *Ledger) { l.clock = clock }
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func WithIDGenerator(fn func() string) Option {
	return func(l *Ledger) { l.newID = fn }
}

func NewLedger(store generic.TxStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		clock:  generic.SystemClock,
		newID:  uuid.NewString,
		logger: zap.L().Named("leave.ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Types is the fixed leave type catalog.
func Types() []generic.LeaveType {
	return append([]generic.LeaveType(nil), generic.LeaveTypes...)
}

// =============================================================================
// APPLY
// =============================================================================

// Apply creates a request in pending_manager. The owner's current manager
// is copied onto the request.
func (l *Ledger) Apply(ctx context.Context, in ApplyInput) (generic.LeaveRequest, error) {
	var created generic.LeaveRequest

	err := l.store.WithTx(ctx, func(tx generic.Store) error {
		owner, err := tx.GetIdentity(ctx, in.EmployeeID)
		if generic.IsNotFound(err) {
			return fmt.Errorf("%w: %s", generic.ErrUnknownEmployee, in.EmployeeID)
		}
		if err != nil {
			return err
		}

		if err := validateApply(in); err != nil {
			return err
		}

		now := l.clock()
		created = generic.LeaveRequest{
			ID:            generic.RequestID(l.newID()),
			EmployeeID:    owner.ID,
			LeaveType:     in.LeaveType,
			StartDate:     in.StartDate,
			EndDate:       in.EndDate,
			Reason:        strings.TrimSpace(in.Reason),
			Status:        generic.StatusPendingManager,
			AppliedDate:   generic.DateOf(now),
			AppliedAt:     now,
			ManagerID:     owner.ManagerID,
			EmployeeName:  owner.Name,
			EmployeeEmail: owner.Email,
			Department:    owner.Department,
		}
		return tx.PutRequest(ctx, created)
	})
	if err != nil {
		l.logger.Warn("leave application rejected",
			zap.String("employee_id", string(in.EmployeeID)),
			zap.Error(err),
		)
		return generic.LeaveRequest{}, err
	}

	l.logger.Info("leave applied",
		zap.String("request_id", string(created.ID)),
		zap.String("employee_id", string(created.EmployeeID)),
		zap.String("type", string(created.LeaveType)),
		zap.Int("days", created.Days()),
	)
	return created, nil
}

func validateApply(in ApplyInput) error {
	if in.StartDate.IsZero() {
		return &generic.FieldError{Field: "startDate", Reason: "required"}
	}
	if in.EndDate.IsZero() {
		return &generic.FieldError{Field: "endDate", Reason: "required"}
	}
	if in.EndDate.Before(in.StartDate) {
		return fmt.Errorf("%w: %s..%s", generic.ErrInvalidDateRange, in.StartDate, in.EndDate)
	}
	if strings.TrimSpace(in.Reason) == "" {
		return &generic.FieldError{Field: "reason", Reason: "required"}
	}
	if !in.LeaveType.Valid() {
		return &generic.FieldError{Field: "leaveType", Reason: fmt.Sprintf("unknown leave type %q", in.LeaveType)}
	}
	return nil
}

// =============================================================================
// DECISIONS
// =============================================================================

// DecideAsManager records the first-stage decision.
// Approval moves the request to pending_hr, rejection to rejected_manager.
func (l *Ledger) DecideAsManager(ctx context.Context, id generic.RequestID, decision generic.Decision, comments string) (generic.LeaveRequest, error) {
	return l.decide(ctx, id, generic.StageManager, decision, comments)
}

// DecideAsHR records the final decision. Approval charges the owner's
// UsedLeaveDays in the same transaction.
func (l *Ledger) DecideAsHR(ctx context.Context, id generic.RequestID, decision generic.Decision, comments string) (generic.LeaveRequest, error) {
	return l.decide(ctx, id, generic.StageHR, decision, comments)
}

func (l *Ledger) decide(ctx context.Context, id generic.RequestID, stage generic.Stage, decision generic.Decision, comments string) (generic.LeaveRequest, error) {
	if !decision.Valid() {
		return generic.LeaveRequest{}, &generic.FieldError{Field: "decision", Reason: fmt.Sprintf("unknown decision %q", decision)}
	}

	actor, _ := generic.ActorFrom(ctx)
	record := &generic.StageDecision{
		Decision:         decision,
		Date:             l.clock.Today(),
		Comments:         comments,
		ActorID:          actor.ID,
		ActorSynthesized: actor.Synthesized,
	}

	var decided generic.LeaveRequest
	var charged bool

	err := l.store.WithTx(ctx, func(tx generic.Store) error {
		req, err := tx.GetRequest(ctx, id)
		if err != nil {
			return err
		}

		next, err := transition(req.Status, stage, decision)
		if err != nil {
			return &generic.TransitionError{RequestID: id, From: req.Status, Stage: stage}
		}
		req.Status = next

		switch stage {
		case generic.StageManager:
			req.ManagerDecision = record
		case generic.StageHR:
			req.HRDecision = record
		}

		if next == generic.StatusApproved {
			charged, err = chargeOwner(ctx, tx, req)
			if err != nil {
				return err
			}
		}

		decided = req
		return tx.PutRequest(ctx, req)
	})
	if err != nil {
		l.logger.Warn("leave decision refused",
			zap.String("request_id", string(id)),
			zap.String("stage", string(stage)),
			zap.String("decision", string(decision)),
			zap.Error(err),
		)
		return generic.LeaveRequest{}, err
	}

	fields := []zap.Field{
		zap.String("request_id", string(id)),
		zap.String("stage", string(stage)),
		zap.String("status", string(decided.Status)),
		zap.String("actor_id", string(actor.ID)),
	}
	if decided.Status == generic.StatusApproved {
		fields = append(fields, zap.Bool("counter_charged", charged), zap.Int("days", decided.Days()))
	}
	l.logger.Info("leave decided", fields...)
	return decided, nil
}

// transition is the state table. It returns an error for every move the
// workflow does not allow.
func transition(from generic.LeaveStatus, stage generic.Stage, decision generic.Decision) (generic.LeaveStatus, error) {
	switch {
	case stage == generic.StageManager && from == generic.StatusPendingManager:
		if decision == generic.DecisionApproved {
			return generic.StatusPendingHR, nil
		}
		return generic.StatusRejectedManager, nil
	case stage == generic.StageHR && from == generic.StatusPendingHR:
		if decision == generic.DecisionApproved {
			return generic.StatusApproved, nil
		}
		return generic.StatusRejectedHR, nil
	}
	return from, generic.ErrInvalidTransition
}

// chargeOwner adds the request's days to its owner. A deleted owner is
// tolerated and reported as not charged.
func chargeOwner(ctx context.Context, tx generic.Store, req generic.LeaveRequest) (bool, error) {
	owner, err := tx.GetIdentity(ctx, req.EmployeeID)
	if errors.Is(err, generic.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	owner.UsedLeaveDays = owner.UsedLeaveDays.Add(req.LeaveDays())
	return true, tx.PutIdentity(ctx, owner)
}

// =============================================================================
// QUERIES
// =============================================================================

func (l *Ledger) Get(ctx context.Context, id generic.RequestID) (generic.LeaveRequest, error) {
	return l.store.GetRequest(ctx, id)
}

// All returns every request in application order.
func (l *Ledger) All(ctx context.Context) ([]generic.LeaveRequest, error) {
	return l.store.ListRequests(ctx)
}

func (l *Ledger) RequestsFor(ctx context.Context, employeeID generic.IdentityID) ([]generic.LeaveRequest, error) {
	return l.filter(ctx, func(r generic.LeaveRequest) bool {
		return r.EmployeeID == employeeID
	})
}

// PendingManagerApprovals returns requests waiting on managerID. It matches
// the manager snapshot taken at apply time, not the owner's current manager.
func (l *Ledger) PendingManagerApprovals(ctx context.Context, managerID generic.IdentityID) ([]generic.LeaveRequest, error) {
	return l.filter(ctx, func(r generic.LeaveRequest) bool {
		return r.Status == generic.StatusPendingManager && r.ManagerID != nil && *r.ManagerID == managerID
	})
}

// PendingManagerApprovalsAll is the HR backstop queue: every request still
// waiting on a manager, whoever the manager is.
func (l *Ledger) PendingManagerApprovalsAll(ctx context.Context) ([]generic.LeaveRequest, error) {
	return l.filter(ctx, func(r generic.LeaveRequest) bool {
		return r.Status == generic.StatusPendingManager
	})
}

func (l *Ledger) PendingHRApprovals(ctx context.Context) ([]generic.LeaveRequest, error) {
	return l.filter(ctx, func(r generic.LeaveRequest) bool {
		return r.Status == generic.StatusPendingHR
	})
}

func (l *Ledger) filter(ctx context.Context, keep func(generic.LeaveRequest) bool) ([]generic.LeaveRequest, error) {
	all, err := l.store.ListRequests(ctx)
	if err != nil {
		return nil, err
	}
	result := []generic.LeaveRequest{}
	for _, r := range all {
		if keep(r) {
			result = append(result, r)
		}
	}
	return result, nil
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// Reset clears the whole ledger. Identity counters are not touched.
func (l *Ledger) Reset(ctx context.Context) error {
	if err := l.store.ClearRequests(ctx); err != nil {
		return err
	}
	l.logger.Info("leave ledger cleared")
	return nil
}
