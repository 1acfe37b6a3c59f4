/*
resolver.go - Login to principal resolution

PURPOSE:
  Turns a login attempt (email + asserted role) into a Principal.

RULES:
  1. The directory wins. If the email matches an identity, that identity
     is the principal and the asserted role is ignored. Trusting the
     asserted role would let anyone claim admin.
  2. Otherwise a placeholder identity is synthesized with the asserted
     role, a "guest-" id and default fields. It is never inserted into
     the directory and is marked Synthesized so decisions it makes can be
     told apart from directory-backed ones.

  Whether synthesized principals may mutate anything is decided by authz,
  not here.
*/
package session

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/hr-engine/generic"
)

// GuestIDPrefix starts the id of every synthesized identity.
const GuestIDPrefix = "guest-"

// IdentityLookup is the part of the directory the resolver needs.
type IdentityLookup interface {
	FindByEmail(ctx context.Context, email string) (generic.Identity, error)
}

type Resolver struct {
	lookup IdentityLookup
	clock  generic.Clock
	newID  func() string
	logger *zap.Logger
}

type ResolverOption func(*Resolver)

func WithResolverClock(clock generic.Clock) ResolverOption {
	return func(r *Resolver) { r.clock = clock }
}

func WithResolverLogger(logger *zap.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

func WithGuestIDGenerator(fn func() string) ResolverOption {
	return func(r *Resolver) { r.newID = fn }
}

func NewResolver(lookup IdentityLookup, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		lookup: lookup,
		clock:  generic.SystemClock,
		newID:  uuid.NewString,
		logger: zap.L().Named("session.resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveOrSynthesize returns the directory identity for email, or a
// synthesized placeholder carrying assertedRole when there is none.
func (r *Resolver) ResolveOrSynthesize(ctx context.Context, email string, assertedRole generic.Role) (generic.Principal, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return generic.Principal{}, &generic.FieldError{Field: "email", Reason: "required"}
	}
	if !assertedRole.Valid() {
		return generic.Principal{}, &generic.FieldError{Field: "role", Reason: "unknown role " + string(assertedRole)}
	}

	identity, err := r.lookup.FindByEmail(ctx, email)
	if err == nil {
		if identity.Role != assertedRole {
			r.logger.Info("asserted role ignored",
				zap.String("id", string(identity.ID)),
				zap.String("asserted", string(assertedRole)),
				zap.String("stored", string(identity.Role)),
			)
		}
		return generic.Principal{Identity: identity}, nil
	}
	if !generic.IsNotFound(err) {
		return generic.Principal{}, err
	}

	guest := r.synthesize(email, assertedRole)
	r.logger.Warn("synthesized guest principal",
		zap.String("id", string(guest.ID)),
		zap.String("role", string(guest.Role)),
	)
	return generic.Principal{Identity: guest, Synthesized: true}, nil
}

func (r *Resolver) synthesize(email string, role generic.Role) generic.Identity {
	today := r.clock.Today()
	return generic.Identity{
		ID:                    generic.IdentityID(GuestIDPrefix + r.newID()),
		Name:                  displayName(email),
		Email:                 email,
		Role:                  role,
		Status:                generic.StatusActive,
		JoinDate:              today,
		CreatedAt:             today,
		TotalLeaveEntitlement: generic.NewDays(generic.DefaultLeaveEntitlement),
		UsedLeaveDays:         generic.NewDays(0),
	}
}

// displayName turns "john.doe@x" into "john doe".
func displayName(email string) string {
	local := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		local = email[:at]
	}
	return strings.NewReplacer(".", " ", "_", " ", "-", " ").Replace(local)
}
