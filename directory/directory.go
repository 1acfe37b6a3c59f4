/*
directory.go - Identity Directory

PURPOSE:
  Canonical store of people: identity, role, reporting line and leave
  counters. Every other component reads identities through here, and the
  session resolver matches logins with FindByEmail.

EMPLOYEE CODES:
  Create assigns <prefix><counter>, e.g. EMP007 or MGR003. The counter is
  the number of existing identities with the same role plus one, computed
  at creation time. Deleting an identity lowers the count, so a later
  Create can hand out a code that was used before.

  This is kept deliberately. Callers that need a stable unique key use ID.

LEAVE COUNTERS:
  TotalLeaveEntitlement and UsedLeaveDays are stored; remaining is always
  derived. Create defaults to 15 total (WithDefaultEntitlement) and 0 used. The leave ledger bumps
  UsedLeaveDays on final approval, through the same store transaction that
  approves the request.

DELETION:
  Delete removes the identity only. Leave requests that point at it stay
  in the ledger and keep rendering from their own display snapshot.

SEE ALSO:
  - generic/identity.go: Identity record
  - leave/ledger.go: The other writer of UsedLeaveDays
*/
package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/hr-engine/generic"
)

// Directory owns the identity table.
type Directory struct {
	store    generic.TxStore
	clock    generic.Clock
	newID    func() string
	logger   *zap.Logger
	validate *validator.Validate

	defaultEntitlement generic.Days
}

type Option func(*Directory)

func WithClock(clock generic.Clock) Option {
	return func(d *Directory) { d.clock = clock }
}

func WithLogger(logger *zap.Logger) Option {
	return func(d *Directory) { d.logger = logger }
}

// WithDefaultEntitlement sets the total given to identities created
// without one.
func WithDefaultEntitlement(days generic.Days) Option {
	return func(d *Directory) { d.defaultEntitlement = days }
}

// WithIDGenerator replaces uuid generation, mostly for tests.
func WithIDGenerator(fn func() string) Option {
	return func(d *Directory) { d.newID = fn }
}

func New(store generic.TxStore, opts ...Option) *Directory {
	d := &Directory{
		store:    store,
		clock:    generic.SystemClock,
		newID:    uuid.NewString,
		logger:   zap.L().Named("directory"),
		validate: validator.New(),

		defaultEntitlement: generic.NewDays(generic.DefaultLeaveEntitlement),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// =============================================================================
// QUERIES
// =============================================================================

func (d *Directory) FindByID(ctx context.Context, id generic.IdentityID) (generic.Identity, error) {
	return d.store.GetIdentity(ctx, id)
}

// FindByEmail is a case-insensitive exact match.
func (d *Directory) FindByEmail(ctx context.Context, email string) (generic.Identity, error) {
	key := generic.NormalizeEmail(email)
	all, err := d.store.ListIdentities(ctx)
	if err != nil {
		return generic.Identity{}, err
	}
	for _, identity := range all {
		if generic.NormalizeEmail(identity.Email) == key {
			return identity, nil
		}
	}
	return generic.Identity{}, &generic.NotFoundError{Kind: "identity", ID: key}
}

// ListDirectReports returns identities whose manager is managerID, in insertion order.
func (d *Directory) ListDirectReports(ctx context.Context, managerID generic.IdentityID) ([]generic.Identity, error) {
	all, err := d.store.ListIdentities(ctx)
	if err != nil {
		return nil, err
	}
	var reports []generic.Identity
	for _, identity := range all {
		if identity.ReportsTo(managerID) {
			reports = append(reports, identity)
		}
	}
	return reports, nil
}

func (d *Directory) List(ctx context.Context) ([]generic.Identity, error) {
	return d.store.ListIdentities(ctx)
}

func (d *Directory) ListManagers(ctx context.Context) ([]generic.Identity, error) {
	all, err := d.store.ListIdentities(ctx)
	if err != nil {
		return nil, err
	}
	var managers []generic.Identity
	for _, identity := range all {
		if identity.Role == generic.RoleManager {
			managers = append(managers, identity)
		}
	}
	return managers, nil
}

// Stats counts identities and lists distinct departments in first-seen order.
func (d *Directory) Stats(ctx context.Context) (Stats, error) {
	all, err := d.store.ListIdentities(ctx)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Total: len(all), Departments: []string{}}
	seen := make(map[string]bool)
	for _, identity := range all {
		if identity.Status == generic.StatusActive {
			stats.Active++
		}
		if identity.Department != "" && !seen[identity.Department] {
			seen[identity.Department] = true
			stats.Departments = append(stats.Departments, identity.Department)
		}
	}
	return stats, nil
}

// =============================================================================
// MUTATIONS
// =============================================================================

func (d *Directory) Create(ctx context.Context, in NewIdentity) (generic.Identity, error) {
	if err := d.validateNew(in); err != nil {
		d.logger.Warn("rejected identity", zap.String("email", in.Email), zap.Error(err))
		return generic.Identity{}, err
	}

	today := d.clock.Today()
	identity := generic.Identity{
		ID:                    generic.IdentityID(d.newID()),
		Name:                  strings.TrimSpace(in.Name),
		Email:                 strings.TrimSpace(in.Email),
		Role:                  in.Role,
		Department:            in.Department,
		Position:              in.Position,
		ManagerID:             in.ManagerID,
		JoinDate:              in.JoinDate,
		Phone:                 in.Phone,
		Address:               in.Address,
		Status:                generic.StatusActive,
		TotalLeaveEntitlement: d.defaultEntitlement,
		UsedLeaveDays:         generic.NewDays(0),
		CreatedAt:             today,
	}
	if identity.JoinDate.IsZero() {
		identity.JoinDate = today
	}
	if in.TotalLeaveEntitlement != nil {
		identity.TotalLeaveEntitlement = *in.TotalLeaveEntitlement
	}
	if in.UsedLeaveDays != nil {
		identity.UsedLeaveDays = *in.UsedLeaveDays
	}
	if in.Status != nil {
		identity.Status = *in.Status
	}

	err := d.store.WithTx(ctx, func(tx generic.Store) error {
		all, err := tx.ListIdentities(ctx)
		if err != nil {
			return err
		}
		if err := checkEmailFree(all, identity.Email, ""); err != nil {
			return err
		}
		if err := checkManager(all, identity.ID, identity.ManagerID); err != nil {
			return err
		}

		sameRole := 0
		for _, existing := range all {
			if existing.Role == identity.Role {
				sameRole++
			}
		}
		identity.EmployeeCode = fmt.Sprintf("%s%03d", identity.Role.CodePrefix(), sameRole+1)

		return tx.PutIdentity(ctx, identity)
	})
	if err != nil {
		d.logger.Warn("create identity failed", zap.String("email", identity.Email), zap.Error(err))
		return generic.Identity{}, err
	}

	d.logger.Info("identity created",
		zap.String("id", string(identity.ID)),
		zap.String("code", identity.EmployeeCode),
		zap.String("role", string(identity.Role)),
	)
	return identity, nil
}

func (d *Directory) Update(ctx context.Context, id generic.IdentityID, patch Patch) (generic.Identity, error) {
	var updated generic.Identity
	err := d.store.WithTx(ctx, func(tx generic.Store) error {
		current, err := tx.GetIdentity(ctx, id)
		if err != nil {
			return err
		}
		next, err := d.applyPatch(current, patch)
		if err != nil {
			return err
		}

		all, err := tx.ListIdentities(ctx)
		if err != nil {
			return err
		}
		if err := checkEmailFree(all, next.Email, id); err != nil {
			return err
		}
		// A reporting line left dangling by a deleted manager is kept as is.
		if patch.ManagerID != nil && !patch.ClearManager {
			if err := checkManager(all, id, next.ManagerID); err != nil {
				return err
			}
		}

		updated = next
		return tx.PutIdentity(ctx, next)
	})
	if err != nil {
		return generic.Identity{}, err
	}

	d.logger.Info("identity updated", zap.String("id", string(id)))
	return updated, nil
}

// Delete removes the identity. Leave requests referencing it are kept.
func (d *Directory) Delete(ctx context.Context, id generic.IdentityID) error {
	if err := d.store.DeleteIdentity(ctx, id); err != nil {
		return err
	}
	d.logger.Info("identity deleted", zap.String("id", string(id)))
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

func (d *Directory) validateNew(in NewIdentity) error {
	if strings.TrimSpace(in.Name) == "" {
		return &generic.FieldError{Field: "name", Reason: "required"}
	}
	if err := d.validate.Var(strings.TrimSpace(in.Email), "required,email"); err != nil {
		return &generic.FieldError{Field: "email", Reason: "must be a valid email address"}
	}
	if !in.Role.Valid() {
		return &generic.FieldError{Field: "role", Reason: fmt.Sprintf("unknown role %q", in.Role)}
	}
	if in.Status != nil && !in.Status.Valid() {
		return &generic.FieldError{Field: "status", Reason: fmt.Sprintf("unknown status %q", *in.Status)}
	}
	return validateCounters(in.TotalLeaveEntitlement, in.UsedLeaveDays)
}

func (d *Directory) applyPatch(current generic.Identity, p Patch) (generic.Identity, error) {
	next := current.Clone()

	if p.Name != nil {
		if strings.TrimSpace(*p.Name) == "" {
			return next, &generic.FieldError{Field: "name", Reason: "required"}
		}
		next.Name = strings.TrimSpace(*p.Name)
	}
	if p.Email != nil {
		email := strings.TrimSpace(*p.Email)
		if err := d.validate.Var(email, "required,email"); err != nil {
			return next, &generic.FieldError{Field: "email", Reason: "must be a valid email address"}
		}
		next.Email = email
	}
	if p.Role != nil {
		if !p.Role.Valid() {
			return next, &generic.FieldError{Field: "role", Reason: fmt.Sprintf("unknown role %q", *p.Role)}
		}
		next.Role = *p.Role
	}
	if p.Status != nil {
		if !p.Status.Valid() {
			return next, &generic.FieldError{Field: "status", Reason: fmt.Sprintf("unknown status %q", *p.Status)}
		}
		next.Status = *p.Status
	}
	if p.Department != nil {
		next.Department = *p.Department
	}
	if p.Position != nil {
		next.Position = *p.Position
	}
	if p.JoinDate != nil {
		next.JoinDate = *p.JoinDate
	}
	if p.Phone != nil {
		next.Phone = *p.Phone
	}
	if p.Address != nil {
		next.Address = *p.Address
	}
	switch {
	case p.ClearManager:
		next.ManagerID = nil
	case p.ManagerID != nil:
		next.ManagerID = generic.IdentityPtr(*p.ManagerID)
	}

	if err := validateCounters(p.TotalLeaveEntitlement, p.UsedLeaveDays); err != nil {
		return next, err
	}
	if p.TotalLeaveEntitlement != nil {
		next.TotalLeaveEntitlement = *p.TotalLeaveEntitlement
	}
	if p.UsedLeaveDays != nil {
		next.UsedLeaveDays = *p.UsedLeaveDays
	}
	return next, nil
}

func validateCounters(total, used *generic.Days) error {
	if total != nil && total.IsNegative() {
		return &generic.FieldError{Field: "totalLeaveEntitlement", Reason: "must not be negative"}
	}
	if used != nil && used.IsNegative() {
		return &generic.FieldError{Field: "usedLeaveDays", Reason: "must not be negative"}
	}
	return nil
}

func checkEmailFree(all []generic.Identity, email string, self generic.IdentityID) error {
	key := generic.NormalizeEmail(email)
	for _, existing := range all {
		if existing.ID != self && generic.NormalizeEmail(existing.Email) == key {
			return fmt.Errorf("%w: %s", generic.ErrDuplicateEmail, key)
		}
	}
	return nil
}

func checkManager(all []generic.Identity, self generic.IdentityID, managerID *generic.IdentityID) error {
	if managerID == nil {
		return nil
	}
	if *managerID == self {
		return &generic.FieldError{Field: "managerId", Reason: "an identity cannot be its own manager"}
	}
	for _, existing := range all {
		if existing.ID == *managerID {
			return nil
		}
	}
	return &generic.FieldError{Field: "managerId", Reason: fmt.Sprintf("unknown manager %s", *managerID)}
}
