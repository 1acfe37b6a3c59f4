/*
authz.go - Authorization and visibility filter

PURPOSE:
  Decides whether a principal may perform an action on a resource, and
  which records a principal may see. Every mutating call in portal goes
  through Authorize first.

MODEL:
  The capability table is a casbin policy over (role, object, action, scope).
  Scope is the relation between the principal and the resource, worked out
  here in Go before asking casbin:

    self   - the principal owns the resource
    queue  - the principal is the manager snapshotted on a leave request
    report - the resource's owner currently reports to the principal
    any    - always present; only admin policies use it

  A request is allowed if any applicable scope is allowed. Roles inherit:
  manager has every employee capability.

DENIALS:
  Every denial is ErrForbidden with no detail. A principal that may not see
  a resource gets the same answer whether the resource exists or not.

GUESTS:
  Synthesized principals pass through the same table. AllowGuestMutations
  (default true) can shut them out of every mutating action.
*/
package authz

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"go.uber.org/zap"

	"github.com/warp/hr-engine/generic"
)

// =============================================================================
// VOCABULARY
// =============================================================================

type Object string

const (
	ObjectLeave         Object = "leave"
	ObjectIdentity      Object = "identity"
	ObjectTeam          Object = "team"
	ObjectStats         Object = "stats"
	ObjectData          Object = "data"
	ObjectNotifications Object = "notifications"
)

type Action string

const (
	ActionApply         Action = "apply"
	ActionView          Action = "view"
	ActionDecideManager Action = "decide_manager"
	ActionDecideHR      Action = "decide_hr"
	ActionManage        Action = "manage"
	ActionReset         Action = "reset"
)

// Mutating reports whether the action changes state.
func (a Action) Mutating() bool {
	switch a {
	case ActionApply, ActionDecideManager, ActionDecideHR, ActionManage, ActionReset:
		return true
	}
	return false
}

type Scope string

const (
	ScopeSelf   Scope = "self"
	ScopeQueue  Scope = "queue"
	ScopeReport Scope = "report"
	ScopeAny    Scope = "any"
)

// =============================================================================
// CAPABILITY TABLE
// =============================================================================

const modelText = `
[request_definition]
r = sub, obj, act, scope

[policy_definition]
p = sub, obj, act, scope

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act && r.scope == p.scope
`

// policy is the closed capability table.
var policy = [][]string{
	{"employee", "leave", "apply", "self"},
	{"employee", "leave", "view", "self"},
	{"employee", "identity", "view", "self"},
	{"employee", "notifications", "view", "self"},

	{"manager", "leave", "view", "queue"},
	{"manager", "leave", "view", "report"},
	{"manager", "leave", "decide_manager", "queue"},
	{"manager", "identity", "view", "report"},
	{"manager", "team", "view", "self"},

	{"admin", "leave", "apply", "self"},
	{"admin", "leave", "view", "any"},
	{"admin", "leave", "decide_manager", "any"},
	{"admin", "leave", "decide_hr", "any"},
	{"admin", "identity", "view", "any"},
	{"admin", "identity", "manage", "any"},
	{"admin", "team", "view", "any"},
	{"admin", "stats", "view", "any"},
	{"admin", "data", "reset", "any"},
	{"admin", "notifications", "view", "self"},
}

var inheritance = [][]string{
	{"manager", "employee"},
}

// =============================================================================
// RESOURCE
// =============================================================================

// Resource describes the target of an action by its relations to people.
type Resource struct {
	Object Object

	// OwnerID matches ScopeSelf.
	OwnerID generic.IdentityID
	// ApproverID matches ScopeQueue.
	ApproverID *generic.IdentityID
	// ReportsTo matches ScopeReport.
	ReportsTo *generic.IdentityID
}

// ForRequest targets a leave request. owner is the owner's current record,
// nil when it has been deleted.
func ForRequest(r generic.LeaveRequest, owner *generic.Identity) Resource {
	res := Resource{Object: ObjectLeave, OwnerID: r.EmployeeID, ApproverID: r.ManagerID}
	if owner != nil {
		res.ReportsTo = owner.ManagerID
	}
	return res
}

// ForApplicant targets a new leave application by employeeID.
func ForApplicant(employeeID generic.IdentityID) Resource {
	return Resource{Object: ObjectLeave, OwnerID: employeeID}
}

func ForIdentity(i generic.Identity) Resource {
	return Resource{Object: ObjectIdentity, OwnerID: i.ID, ReportsTo: i.ManagerID}
}

// ForTeam targets the team led by managerID.
func ForTeam(managerID generic.IdentityID) Resource {
	return Resource{Object: ObjectTeam, OwnerID: managerID}
}

// ForOwn targets a per-principal object such as the notification inbox.
func ForOwn(object Object, owner generic.IdentityID) Resource {
	return Resource{Object: object, OwnerID: owner}
}

// ForSystem targets an object with no owner, such as org stats.
func ForSystem(object Object) Resource {
	return Resource{Object: object}
}

func (r Resource) scopes(principal generic.IdentityID) []Scope {
	scopes := []Scope{ScopeAny}
	if r.OwnerID != "" && r.OwnerID == principal {
		scopes = append(scopes, ScopeSelf)
	}
	if r.ApproverID != nil && *r.ApproverID == principal {
		scopes = append(scopes, ScopeQueue)
	}
	if r.ReportsTo != nil && *r.ReportsTo == principal {
		scopes = append(scopes, ScopeReport)
	}
	return scopes
}

// =============================================================================
// AUTHORIZER
// =============================================================================

type Authorizer struct {
	enforcer            *casbin.SyncedEnforcer
	allowGuestMutations bool
	logger              *zap.Logger
}

type Option func(*Authorizer)

// WithGuestMutations decides whether synthesized principals may mutate.
func WithGuestMutations(allow bool) Option {
	return func(a *Authorizer) { a.allowGuestMutations = allow }
}

func WithLogger(logger *zap.Logger) Option {
	return func(a *Authorizer) { a.logger = logger }
}

func New(opts ...Option) (*Authorizer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("authz model: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("authz enforcer: %w", err)
	}
	if _, err := e.AddPolicies(policy); err != nil {
		return nil, fmt.Errorf("authz policy: %w", err)
	}
	if _, err := e.AddGroupingPolicies(inheritance); err != nil {
		return nil, fmt.Errorf("authz roles: %w", err)
	}

	a := &Authorizer{
		enforcer:            e,
		allowGuestMutations: true,
		logger:              zap.L().Named("authz"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Authorize returns nil or ErrForbidden.
func (a *Authorizer) Authorize(p generic.Principal, action Action, res Resource) error {
	if a.Can(p, action, res) {
		return nil
	}
	a.logger.Debug("denied",
		zap.String("principal", string(p.ID())),
		zap.String("role", string(p.Role())),
		zap.String("object", string(res.Object)),
		zap.String("action", string(action)),
	)
	return generic.ErrForbidden
}

// Can is Authorize as a boolean.
func (a *Authorizer) Can(p generic.Principal, action Action, res Resource) bool {
	if p.ID() == "" || !p.Role().Valid() {
		return false
	}
	if p.Synthesized && action.Mutating() && !a.allowGuestMutations {
		return false
	}
	for _, scope := range res.scopes(p.ID()) {
		ok, err := a.enforcer.Enforce(string(p.Role()), string(res.Object), string(action), string(scope))
		if err != nil {
			a.logger.Error("enforce failed", zap.Error(err))
			return false
		}
		if ok {
			return true
		}
	}
	return false
}

// Conceal turns a not-found error into ErrForbidden for principals who are
// not admins, so a lookup never reveals whether a hidden record exists.
func (a *Authorizer) Conceal(p generic.Principal, err error) error {
	if err != nil && generic.IsNotFound(err) && !p.IsAdmin() {
		return generic.ErrForbidden
	}
	return err
}

// =============================================================================
// VISIBILITY
// =============================================================================

// FilterRequests keeps the requests p may view. owners maps employee ids to
// their current records; missing owners are treated as deleted.
func (a *Authorizer) FilterRequests(p generic.Principal, reqs []generic.LeaveRequest, owners map[generic.IdentityID]generic.Identity) []generic.LeaveRequest {
	visible := []generic.LeaveRequest{}
	for _, r := range reqs {
		var owner *generic.Identity
		if o, ok := owners[r.EmployeeID]; ok {
			owner = &o
		}
		if a.Can(p, ActionView, ForRequest(r, owner)) {
			visible = append(visible, r)
		}
	}
	return visible
}

// FilterIdentities keeps the identities p may view.
func (a *Authorizer) FilterIdentities(p generic.Principal, identities []generic.Identity) []generic.Identity {
	visible := []generic.Identity{}
	for _, i := range identities {
		if a.Can(p, ActionView, ForIdentity(i)) {
			visible = append(visible, i)
		}
	}
	return visible
}
