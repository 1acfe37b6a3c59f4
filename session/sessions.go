package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/hr-engine/directory"
	"github.com/warp/hr-engine/generic"
)

// ErrNoSession is returned for unknown or expired tokens.
var ErrNoSession = errors.New("no active session")

// Directory is what sessions need from the identity directory.
type Directory interface {
	IdentityLookup
	FindByID(ctx context.Context, id generic.IdentityID) (generic.Identity, error)
	Create(ctx context.Context, in directory.NewIdentity) (generic.Identity, error)
}

// =============================================================================
// SESSIONS - Mocked login state keyed by opaque token
// =============================================================================

// Sessions hands out opaque tokens for resolved principals. There are no
// credentials: a login is an email and a role.
//
// Directory-backed sessions are re-read from the directory on every Lookup,
// so role changes and deletions apply immediately. Synthesized sessions keep
// the placeholder they were created with.
type Sessions struct {
	dir      Directory
	resolver *Resolver
	logger   *zap.Logger
	newToken func() string

	selfRegister map[generic.Role]bool

	mu     sync.RWMutex
	tokens map[string]entry
}

type entry struct {
	principal generic.Principal
}

type SessionsOption func(*Sessions)

func WithSessionsLogger(logger *zap.Logger) SessionsOption {
	return func(s *Sessions) { s.logger = logger }
}

func WithTokenGenerator(fn func() string) SessionsOption {
	return func(s *Sessions) { s.newToken = fn }
}

// WithSelfRegisterRoles sets which roles Register may create.
// The default is employee and manager.
func WithSelfRegisterRoles(roles ...generic.Role) SessionsOption {
	return func(s *Sessions) {
		s.selfRegister = make(map[generic.Role]bool, len(roles))
		for _, r := range roles {
			s.selfRegister[r] = true
		}
	}
}

func NewSessions(dir Directory, resolver *Resolver, opts ...SessionsOption) *Sessions {
	s := &Sessions{
		dir:      dir,
		resolver: resolver,
		logger:   zap.L().Named("session"),
		newToken: uuid.NewString,
		selfRegister: map[generic.Role]bool{
			generic.RoleEmployee: true,
			generic.RoleManager:  true,
		},
		tokens: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login resolves the principal and opens a session for it.
func (s *Sessions) Login(ctx context.Context, email string, role generic.Role) (string, generic.Principal, error) {
	principal, err := s.resolver.ResolveOrSynthesize(ctx, email, role)
	if err != nil {
		return "", generic.Principal{}, err
	}
	token := s.open(principal)
	s.logger.Info("login",
		zap.String("id", string(principal.ID())),
		zap.String("role", string(principal.Role())),
		zap.Bool("synthesized", principal.Synthesized),
	)
	return token, principal, nil
}

// Register creates a directory identity and opens a session for it.
func (s *Sessions) Register(ctx context.Context, in directory.NewIdentity) (string, generic.Principal, error) {
	if !s.selfRegister[in.Role] {
		if !in.Role.Valid() {
			return "", generic.Principal{}, &generic.FieldError{Field: "role", Reason: "unknown role " + string(in.Role)}
		}
		return "", generic.Principal{}, generic.ErrForbidden
	}

	identity, err := s.dir.Create(ctx, in)
	if err != nil {
		return "", generic.Principal{}, err
	}
	principal := generic.Principal{Identity: identity}
	token := s.open(principal)
	s.logger.Info("registered", zap.String("id", string(identity.ID)))
	return token, principal, nil
}

// Lookup returns the current principal behind token.
func (s *Sessions) Lookup(ctx context.Context, token string) (generic.Principal, error) {
	s.mu.RLock()
	e, ok := s.tokens[token]
	s.mu.RUnlock()
	if !ok {
		return generic.Principal{}, ErrNoSession
	}
	if e.principal.Synthesized {
		return e.principal, nil
	}

	identity, err := s.dir.FindByID(ctx, e.principal.ID())
	if generic.IsNotFound(err) {
		s.Logout(token)
		return generic.Principal{}, ErrNoSession
	}
	if err != nil {
		return generic.Principal{}, err
	}
	return generic.Principal{Identity: identity}, nil
}

func (s *Sessions) Logout(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// Clear drops every session.
func (s *Sessions) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]entry)
}

// Active is the number of open sessions.
func (s *Sessions) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

func (s *Sessions) open(principal generic.Principal) string {
	token := s.newToken()
	s.mu.Lock()
	s.tokens[token] = entry{principal: principal}
	s.mu.Unlock()
	return token
}
