/*
notify.go - In-app notification inbox

PURPOSE:
  Keeps a short per-user inbox and a global feed, filled from leave
  workflow changes. It listens to store change events, so the ledger does
  not know it exists.

LIMITS:
  Per-user inbox: newest 50. Global feed: newest 100. Older entries fall off.

ROUTING:
  new request           -> owner's manager (snapshot), global
  manager approved      -> owner, global ("awaiting HR")
  manager rejected      -> owner
  HR approved/rejected  -> owner
  full data reset       -> everything cleared

  Inboxes are keyed by normalized email, which is the one identifier a
  synthesized principal shares with later sessions.
*/
package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/hr-engine/generic"
)

const (
	DefaultUserCap   = 50
	DefaultGlobalCap = 100
)

type Kind string

const (
	KindLeaveApplied Kind = "leave_applied"
	KindLeaveManager Kind = "leave_manager_decision"
	KindLeaveHR      Kind = "leave_hr_decision"
	KindAwaitingHR   Kind = "leave_awaiting_hr"
)

type Notification struct {
	ID        string
	Time      time.Time
	Kind      Kind
	Title     string
	Message   string
	RequestID generic.RequestID
}

// Lookup resolves a manager id to the identity that receives notices.
type Lookup interface {
	FindByID(ctx context.Context, id generic.IdentityID) (generic.Identity, error)
}

type Center struct {
	lookup    Lookup
	clock     generic.Clock
	newID     func() string
	logger    *zap.Logger
	userCap   int
	globalCap int

	mu     sync.RWMutex
	byUser map[string][]Notification
	global []Notification
}

type Option func(*Center)

func WithClock(clock generic.Clock) Option {
	return func(c *Center) { c.clock = clock }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Center) { c.logger = logger }
}

// WithCaps overrides the inbox and feed sizes. Values below 1 are ignored.
func WithCaps(user, global int) Option {
	return func(c *Center) {
		if user > 0 {
			c.userCap = user
		}
		if global > 0 {
			c.globalCap = global
		}
	}
}

func New(lookup Lookup, opts ...Option) *Center {
	c := &Center{
		lookup:    lookup,
		clock:     generic.SystemClock,
		newID:     uuid.NewString,
		logger:    zap.L().Named("notify"),
		userCap:   DefaultUserCap,
		globalCap: DefaultGlobalCap,
		byUser:    make(map[string][]Notification),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// =============================================================================
// FEEDING
// =============================================================================

// AddForUser prepends n to the inbox of email.
func (c *Center) AddForUser(email string, n Notification) {
	key := generic.NormalizeEmail(email)
	if key == "" {
		return
	}
	n = c.stamp(n)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.byUser[key] = prepend(c.byUser[key], n, c.userCap)
}

// AddGlobal prepends n to the feed every user sees.
func (c *Center) AddGlobal(n Notification) {
	n = c.stamp(n)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.global = prepend(c.global, n, c.globalCap)
}

func (c *Center) stamp(n Notification) Notification {
	if n.ID == "" {
		n.ID = c.newID()
	}
	if n.Time.IsZero() {
		n.Time = c.clock()
	}
	return n
}

func prepend(list []Notification, n Notification, limit int) []Notification {
	out := make([]Notification, 0, min(len(list)+1, limit))
	out = append(out, n)
	for _, existing := range list {
		if len(out) == limit {
			break
		}
		out = append(out, existing)
	}
	return out
}

// Observe is a store observer. Subscribe it with store.Subscribe(c.Observe).
func (c *Center) Observe(ev generic.ChangeEvent) {
	switch {
	case ev.Kind == generic.KindAll && (ev.Op == generic.OpClear || ev.Op == generic.OpLoad):
		// Loaded records were not decided by anyone; they raise no notices.
		c.Clear()
	case ev.Kind == generic.KindRequest && ev.Op == generic.OpPut:
		c.onRequest(ev.Previous, *ev.Request)
	}
}

func (c *Center) onRequest(previous *generic.LeaveRequest, r generic.LeaveRequest) {
	if previous != nil && previous.Status == r.Status {
		return
	}

	switch r.Status {
	case generic.StatusPendingManager:
		if previous != nil {
			return
		}
		if r.ManagerID != nil {
			manager, err := c.lookup.FindByID(context.Background(), *r.ManagerID)
			if err == nil {
				c.AddForUser(manager.Email, Notification{
					Kind:      KindLeaveApplied,
					Title:     "New leave request",
					Message:   fmt.Sprintf("%s applied for %d day(s) of %s leave", r.EmployeeName, r.Days(), r.LeaveType),
					RequestID: r.ID,
				})
			} else {
				c.logger.Debug("manager not notified", zap.String("request_id", string(r.ID)), zap.Error(err))
			}
		}
		c.AddGlobal(Notification{
			Kind:      KindLeaveApplied,
			Title:     "Leave request submitted",
			Message:   "A leave request is awaiting manager review",
			RequestID: r.ID,
		})

	case generic.StatusPendingHR:
		c.AddForUser(r.EmployeeEmail, Notification{
			Kind:      KindLeaveManager,
			Title:     "Approved by manager",
			Message:   fmt.Sprintf("Your %s leave from %s to %s is now with HR", r.LeaveType, r.StartDate, r.EndDate),
			RequestID: r.ID,
		})
		c.AddGlobal(Notification{
			Kind:      KindAwaitingHR,
			Title:     "Awaiting HR approval",
			Message:   "A leave request was approved by a manager and awaits HR",
			RequestID: r.ID,
		})

	case generic.StatusRejectedManager:
		c.AddForUser(r.EmployeeEmail, Notification{
			Kind:      KindLeaveManager,
			Title:     "Rejected by manager",
			Message:   decisionMessage(r, r.ManagerDecision),
			RequestID: r.ID,
		})

	case generic.StatusApproved, generic.StatusRejectedHR:
		title := "Leave approved"
		if r.Status == generic.StatusRejectedHR {
			title = "Rejected by HR"
		}
		c.AddForUser(r.EmployeeEmail, Notification{
			Kind:      KindLeaveHR,
			Title:     title,
			Message:   decisionMessage(r, r.HRDecision),
			RequestID: r.ID,
		})
	}
}

func decisionMessage(r generic.LeaveRequest, d *generic.StageDecision) string {
	msg := fmt.Sprintf("Your %s leave from %s to %s", r.LeaveType, r.StartDate, r.EndDate)
	if d != nil && d.Comments != "" {
		msg += ": " + d.Comments
	}
	return msg
}

// =============================================================================
// READING
// =============================================================================

// ForUser merges the global feed with the user's inbox, newest first.
func (c *Center) ForUser(email string) []Notification {
	key := generic.NormalizeEmail(email)

	c.mu.RLock()
	merged := make([]Notification, 0, len(c.global)+len(c.byUser[key]))
	merged = append(merged, c.global...)
	merged = append(merged, c.byUser[key]...)
	c.mu.RUnlock()

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Time.After(merged[j].Time)
	})
	return merged
}

// Inbox is the user's own notices without the global feed.
func (c *Center) Inbox(email string) []Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Notification{}, c.byUser[generic.NormalizeEmail(email)]...)
}

func (c *Center) Global() []Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Notification{}, c.global...)
}

func (c *Center) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byUser = make(map[string][]Notification)
	c.global = nil
}
