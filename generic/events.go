package generic

import (
	"sort"
	"sync"
)

// =============================================================================
// CHANGE EVENTS - Explicit notifications instead of reactive re-render
// =============================================================================

type ChangeKind string

const (
	KindIdentity ChangeKind = "identity"
	KindRequest  ChangeKind = "leave_request"
	KindAll      ChangeKind = "all"
)

type ChangeOp string

const (
	OpPut    ChangeOp = "put"
	OpDelete ChangeOp = "delete"
	OpClear  ChangeOp = "clear"
	// OpLoad replaces both tables with Snapshot.
	OpLoad ChangeOp = "load"
)

// ChangeEvent describes one committed write.
//
// For OpPut on a request, Previous holds the record as it was before the
// write (nil on insert) so observers can see which transition happened.
type ChangeEvent struct {
	Kind ChangeKind
	Op   ChangeOp
	ID   string

	Identity *Identity
	Request  *LeaveRequest
	Previous *LeaveRequest
	Snapshot *Snapshot
}

// Observer receives change events synchronously, in commit order, after the
// write has been committed and the store lock released. Observers must not
// write to the store they observe.
type Observer func(ChangeEvent)

// Events is a subscription registry.
type Events struct {
	mu   sync.RWMutex
	next int
	subs map[int]Observer
}

func NewEvents() *Events {
	return &Events{subs: make(map[int]Observer)}
}

// Subscribe registers fn and returns a function that removes it.
func (e *Events) Subscribe(fn Observer) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.next
	e.next++
	e.subs[id] = fn

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs, id)
	}
}

// Publish delivers ev to every observer in subscription order.
func (e *Events) Publish(ev ChangeEvent) {
	e.mu.RLock()
	ids := make([]int, 0, len(e.subs))
	for id := range e.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	observers := make([]Observer, 0, len(ids))
	for _, id := range ids {
		observers = append(observers, e.subs[id])
	}
	e.mu.RUnlock()

	for _, fn := range observers {
		fn(ev)
	}
}
