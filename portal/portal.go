/*
portal.go - Principal-scoped entry point to the HR core

PURPOSE:
  The only way the outer layers (api, cmd) reach the directory, the leave
  ledger and the views. Every call takes the acting principal, passes
  authz first and only then touches the component.

FLOW:
  caller -> Authorize -> component call -> (views for projections)

HIDDEN RECORDS:
  Lookups by id that fail for a non-admin return ErrForbidden, never
  ErrNotFound, so a principal learns nothing about records outside its
  view. Records that exist but are outside its view give the same error.

AUDIT:
  Decisions run with the principal attached to the context, so the ledger
  stamps the actor (and whether it was synthesized) on the decision.
*/
package portal

import (
	"context"

	"go.uber.org/zap"

	"github.com/warp/hr-engine/authz"
	"github.com/warp/hr-engine/directory"
	"github.com/warp/hr-engine/generic"
	"github.com/warp/hr-engine/leave"
	"github.com/warp/hr-engine/notify"
	"github.com/warp/hr-engine/views"
)

// Metrics receives authorization outcomes.
type Metrics interface {
	Denied(object authz.Object, action authz.Action)
}

type Service struct {
	dir     *directory.Directory
	ledger  *leave.Ledger
	views   *views.Views
	authz   *authz.Authorizer
	notify  *notify.Center
	store   generic.TxStore
	metrics Metrics
	logger  *zap.Logger
}

type Deps struct {
	Directory  *directory.Directory
	Ledger     *leave.Ledger
	Views      *views.Views
	Authorizer *authz.Authorizer
	Notify     *notify.Center
	Store      generic.TxStore
	Metrics    Metrics
	Logger     *zap.Logger
}

func New(d Deps) *Service {
	s := &Service{
		dir:     d.Directory,
		ledger:  d.Ledger,
		views:   d.Views,
		authz:   d.Authorizer,
		notify:  d.Notify,
		store:   d.Store,
		metrics: d.Metrics,
		logger:  d.Logger,
	}
	if s.logger == nil {
		s.logger = zap.L().Named("portal")
	}
	return s
}

func (s *Service) check(p generic.Principal, action authz.Action, res authz.Resource) error {
	err := s.authz.Authorize(p, action, res)
	if err != nil && s.metrics != nil {
		s.metrics.Denied(res.Object, action)
	}
	return err
}

// =============================================================================
// IDENTITIES
// =============================================================================

// Identities lists every identity p may view, in insertion order.
func (s *Service) Identities(ctx context.Context, p generic.Principal) ([]generic.Identity, error) {
	all, err := s.dir.List(ctx)
	if err != nil {
		return nil, err
	}
	return s.authz.FilterIdentities(p, all), nil
}

func (s *Service) Identity(ctx context.Context, p generic.Principal, id generic.IdentityID) (generic.Identity, error) {
	identity, err := s.dir.FindByID(ctx, id)
	if err != nil {
		return generic.Identity{}, s.authz.Conceal(p, err)
	}
	if err := s.check(p, authz.ActionView, authz.ForIdentity(identity)); err != nil {
		return generic.Identity{}, err
	}
	return identity, nil
}

func (s *Service) CreateIdentity(ctx context.Context, p generic.Principal, in directory.NewIdentity) (generic.Identity, error) {
	if err := s.check(p, authz.ActionManage, authz.ForSystem(authz.ObjectIdentity)); err != nil {
		return generic.Identity{}, err
	}
	return s.dir.Create(ctx, in)
}

func (s *Service) UpdateIdentity(ctx context.Context, p generic.Principal, id generic.IdentityID, patch directory.Patch) (generic.Identity, error) {
	target, err := s.dir.FindByID(ctx, id)
	if err != nil {
		return generic.Identity{}, s.authz.Conceal(p, err)
	}
	if err := s.check(p, authz.ActionManage, authz.ForIdentity(target)); err != nil {
		return generic.Identity{}, err
	}
	return s.dir.Update(ctx, id, patch)
}

func (s *Service) DeleteIdentity(ctx context.Context, p generic.Principal, id generic.IdentityID) error {
	target, err := s.dir.FindByID(ctx, id)
	if err != nil {
		return s.authz.Conceal(p, err)
	}
	if err := s.check(p, authz.ActionManage, authz.ForIdentity(target)); err != nil {
		return err
	}
	return s.dir.Delete(ctx, id)
}

// DirectReports lists the reports of managerID. Managers may list their
// own team; admins any team.
func (s *Service) DirectReports(ctx context.Context, p generic.Principal, managerID generic.IdentityID) ([]generic.Identity, error) {
	if err := s.check(p, authz.ActionView, authz.ForTeam(managerID)); err != nil {
		return nil, err
	}
	return s.dir.ListDirectReports(ctx, managerID)
}

func (s *Service) Managers(ctx context.Context, p generic.Principal) ([]generic.Identity, error) {
	if err := s.check(p, authz.ActionView, authz.ForSystem(authz.ObjectIdentity)); err != nil {
		return nil, err
	}
	return s.dir.ListManagers(ctx)
}

func (s *Service) DirectoryStats(ctx context.Context, p generic.Principal) (directory.Stats, error) {
	if err := s.check(p, authz.ActionView, authz.ForSystem(authz.ObjectStats)); err != nil {
		return directory.Stats{}, err
	}
	return s.dir.Stats(ctx)
}

// =============================================================================
// LEAVE
// =============================================================================

// Apply files a request for in.EmployeeID, or for p when it is empty.
func (s *Service) Apply(ctx context.Context, p generic.Principal, in leave.ApplyInput) (generic.LeaveRequest, error) {
	if in.EmployeeID == "" {
		in.EmployeeID = p.ID()
	}
	if err := s.check(p, authz.ActionApply, authz.ForApplicant(in.EmployeeID)); err != nil {
		return generic.LeaveRequest{}, err
	}
	return s.ledger.Apply(generic.WithActor(ctx, p.Actor()), in)
}

// MyRequests is p's own leave history.
func (s *Service) MyRequests(ctx context.Context, p generic.Principal) ([]generic.LeaveRequest, error) {
	return s.ledger.RequestsFor(ctx, p.ID())
}

// Requests lists every request p may view.
func (s *Service) Requests(ctx context.Context, p generic.Principal) ([]generic.LeaveRequest, error) {
	all, err := s.ledger.All(ctx)
	if err != nil {
		return nil, err
	}
	owners, err := s.owners(ctx)
	if err != nil {
		return nil, err
	}
	return s.authz.FilterRequests(p, all, owners), nil
}

func (s *Service) Request(ctx context.Context, p generic.Principal, id generic.RequestID) (generic.LeaveRequest, error) {
	req, res, err := s.loadRequest(ctx, p, id)
	if err != nil {
		return generic.LeaveRequest{}, err
	}
	if err := s.check(p, authz.ActionView, res); err != nil {
		return generic.LeaveRequest{}, err
	}
	return req, nil
}

// PendingManagerQueue is the backstop queue for principals who may decide
// any manager stage, and the principal's own snapshot queue otherwise.
func (s *Service) PendingManagerQueue(ctx context.Context, p generic.Principal) ([]generic.LeaveRequest, error) {
	if s.authz.Can(p, authz.ActionDecideManager, authz.ForSystem(authz.ObjectLeave)) {
		return s.ledger.PendingManagerApprovalsAll(ctx)
	}
	self := p.ID()
	own := authz.Resource{Object: authz.ObjectLeave, ApproverID: &self}
	if err := s.check(p, authz.ActionDecideManager, own); err != nil {
		return nil, err
	}
	return s.ledger.PendingManagerApprovals(ctx, self)
}

func (s *Service) PendingHRQueue(ctx context.Context, p generic.Principal) ([]generic.LeaveRequest, error) {
	if err := s.check(p, authz.ActionDecideHR, authz.ForSystem(authz.ObjectLeave)); err != nil {
		return nil, err
	}
	return s.ledger.PendingHRApprovals(ctx)
}

func (s *Service) DecideAsManager(ctx context.Context, p generic.Principal, id generic.RequestID, decision generic.Decision, comments string) (generic.LeaveRequest, error) {
	_, res, err := s.loadRequest(ctx, p, id)
	if err != nil {
		return generic.LeaveRequest{}, err
	}
	if err := s.check(p, authz.ActionDecideManager, res); err != nil {
		return generic.LeaveRequest{}, err
	}
	return s.ledger.DecideAsManager(generic.WithActor(ctx, p.Actor()), id, decision, comments)
}

func (s *Service) DecideAsHR(ctx context.Context, p generic.Principal, id generic.RequestID, decision generic.Decision, comments string) (generic.LeaveRequest, error) {
	_, res, err := s.loadRequest(ctx, p, id)
	if err != nil {
		return generic.LeaveRequest{}, err
	}
	if err := s.check(p, authz.ActionDecideHR, res); err != nil {
		return generic.LeaveRequest{}, err
	}
	return s.ledger.DecideAsHR(generic.WithActor(ctx, p.Actor()), id, decision, comments)
}

// loadRequest fetches a request and describes it for authz. A missing
// request is concealed from non-admins.
func (s *Service) loadRequest(ctx context.Context, p generic.Principal, id generic.RequestID) (generic.LeaveRequest, authz.Resource, error) {
	req, err := s.ledger.Get(ctx, id)
	if err != nil {
		return generic.LeaveRequest{}, authz.Resource{}, s.authz.Conceal(p, err)
	}
	var owner *generic.Identity
	if o, err := s.dir.FindByID(ctx, req.EmployeeID); err == nil {
		owner = &o
	} else if !generic.IsNotFound(err) {
		return generic.LeaveRequest{}, authz.Resource{}, err
	}
	return req, authz.ForRequest(req, owner), nil
}

func (s *Service) owners(ctx context.Context) (map[generic.IdentityID]generic.Identity, error) {
	all, err := s.dir.List(ctx)
	if err != nil {
		return nil, err
	}
	owners := make(map[generic.IdentityID]generic.Identity, len(all))
	for _, i := range all {
		owners[i.ID] = i
	}
	return owners, nil
}

// =============================================================================
// VIEWS
// =============================================================================

func (s *Service) TeamRollup(ctx context.Context, p generic.Principal, managerID generic.IdentityID) (views.TeamRollup, error) {
	if err := s.check(p, authz.ActionView, authz.ForTeam(managerID)); err != nil {
		return views.TeamRollup{}, err
	}
	return s.views.TeamRollup(ctx, managerID)
}

func (s *Service) LeaveStats(ctx context.Context, p generic.Principal) (views.LeaveStats, error) {
	if err := s.check(p, authz.ActionView, authz.ForSystem(authz.ObjectStats)); err != nil {
		return views.LeaveStats{}, err
	}
	return s.views.LeaveStats(ctx)
}

// Notifications merges the global feed with p's inbox. Request references
// p may not view are blanked.
func (s *Service) Notifications(ctx context.Context, p generic.Principal) ([]notify.Notification, error) {
	if err := s.check(p, authz.ActionView, authz.ForOwn(authz.ObjectNotifications, p.ID())); err != nil {
		return nil, err
	}
	visible, err := s.Requests(ctx, p)
	if err != nil {
		return nil, err
	}
	seen := make(map[generic.RequestID]bool, len(visible))
	for _, r := range visible {
		seen[r.ID] = true
	}

	list := s.notify.ForUser(p.Identity.Email)
	for i := range list {
		if list[i].RequestID != "" && !seen[list[i].RequestID] {
			list[i].RequestID = ""
		}
	}
	return list, nil
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// ResetLeaveData clears the leave ledger.
func (s *Service) ResetLeaveData(ctx context.Context, p generic.Principal) error {
	if err := s.check(p, authz.ActionReset, authz.ForSystem(authz.ObjectData)); err != nil {
		return err
	}
	s.logger.Warn("leave data reset", zap.String("by", string(p.ID())))
	return s.ledger.Reset(ctx)
}

// ResetAll clears identities and leave requests.
func (s *Service) ResetAll(ctx context.Context, p generic.Principal) error {
	if err := s.check(p, authz.ActionReset, authz.ForSystem(authz.ObjectData)); err != nil {
		return err
	}
	s.logger.Warn("all data reset", zap.String("by", string(p.ID())))
	return s.store.Reset(ctx)
}

// LoadSnapshot replaces both tables with snap in one step.
func (s *Service) LoadSnapshot(ctx context.Context, p generic.Principal, snap generic.Snapshot) error {
	if err := s.check(p, authz.ActionReset, authz.ForSystem(authz.ObjectData)); err != nil {
		return err
	}
	if err := Seed(ctx, s.store, snap); err != nil {
		return err
	}
	s.logger.Info("snapshot loaded",
		zap.String("by", string(p.ID())),
		zap.Int("identities", len(snap.Identities)),
		zap.Int("requests", len(snap.Requests)),
	)
	return nil
}

// Seed clears store and writes snap. It bypasses authorization and is
// meant for startup and maintenance commands.
func Seed(ctx context.Context, store generic.TxStore, snap generic.Snapshot) error {
	return store.Load(ctx, snap)
}
