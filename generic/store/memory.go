// Package store provides Store implementations.
package store

import (
	"context"
	"sync"

	"github.com/warp/hr-engine/generic"
)

// =============================================================================
// MEMORY STORE - Authoritative in-memory implementation
// =============================================================================

// Memory holds both tables in process memory. It is the source of truth
// while the process runs; durable copies are written behind it by an
// AsyncPersister.
type Memory struct {
	mu sync.RWMutex

	identities    map[generic.IdentityID]generic.Identity
	identityOrder []generic.IdentityID
	requests      map[generic.RequestID]generic.LeaveRequest
	requestOrder  []generic.RequestID

	events *generic.Events
	// tickets orders publication by commit.
	tickets  uint64
	turn     uint64
	turnMu   sync.Mutex
	turnCond *sync.Cond
}

var (
	_ generic.TxStore    = (*Memory)(nil)
	_ generic.Observable = (*Memory)(nil)
)

func NewMemory() *Memory {
	m := &Memory{
		identities: make(map[generic.IdentityID]generic.Identity),
		requests:   make(map[generic.RequestID]generic.LeaveRequest),
		events:     generic.NewEvents(),
	}
	m.turnCond = sync.NewCond(&m.turnMu)
	return m
}

// NewMemoryFrom builds a store preloaded with snap. No events are published
// for the preloaded records.
func NewMemoryFrom(snap generic.Snapshot) *Memory {
	m := NewMemory()
	for _, identity := range snap.Identities {
		m.putIdentityLocked(identity)
	}
	for _, req := range snap.Requests {
		m.putRequestLocked(req)
	}
	return m
}

// Subscribe registers an observer for committed writes.
func (m *Memory) Subscribe(fn generic.Observer) func() {
	return m.events.Subscribe(fn)
}

func (m *Memory) GetIdentity(_ context.Context, id generic.IdentityID) (generic.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getIdentityLocked(id)
}

func (m *Memory) ListIdentities(_ context.Context) ([]generic.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listIdentitiesLocked(), nil
}

func (m *Memory) PutIdentity(_ context.Context, identity generic.Identity) error {
	m.mu.Lock()
	ev := m.putIdentityLocked(identity)
	ticket := m.ticketLocked()
	m.mu.Unlock()

	m.publish(ticket, ev)
	return nil
}

func (m *Memory) DeleteIdentity(_ context.Context, id generic.IdentityID) error {
	m.mu.Lock()
	ev, err := m.deleteIdentityLocked(id)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	ticket := m.ticketLocked()
	m.mu.Unlock()

	m.publish(ticket, ev)
	return nil
}

func (m *Memory) GetRequest(_ context.Context, id generic.RequestID) (generic.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRequestLocked(id)
}

func (m *Memory) ListRequests(_ context.Context) ([]generic.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listRequestsLocked(), nil
}

func (m *Memory) PutRequest(_ context.Context, req generic.LeaveRequest) error {
	m.mu.Lock()
	ev := m.putRequestLocked(req)
	ticket := m.ticketLocked()
	m.mu.Unlock()

	m.publish(ticket, ev)
	return nil
}

func (m *Memory) ClearRequests(_ context.Context) error {
	m.mu.Lock()
	ev := m.clearRequestsLocked()
	ticket := m.ticketLocked()
	m.mu.Unlock()

	m.publish(ticket, ev)
	return nil
}

// Reset clears both tables.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	ev := m.resetLocked()
	ticket := m.ticketLocked()
	m.mu.Unlock()

	m.publish(ticket, ev)
	return nil
}

func (m *Memory) Load(_ context.Context, snap generic.Snapshot) error {
	m.mu.Lock()
	m.resetLocked()
	loaded := generic.Snapshot{
		Identities: make([]generic.Identity, 0, len(snap.Identities)),
		Requests:   make([]generic.LeaveRequest, 0, len(snap.Requests)),
	}
	for _, identity := range snap.Identities {
		m.putIdentityLocked(identity)
		loaded.Identities = append(loaded.Identities, identity.Clone())
	}
	for _, req := range snap.Requests {
		m.putRequestLocked(req)
		loaded.Requests = append(loaded.Requests, req.Clone())
	}
	ticket := m.ticketLocked()
	m.mu.Unlock()

	m.publish(ticket, generic.ChangeEvent{Kind: generic.KindAll, Op: generic.OpLoad, Snapshot: &loaded})
	return nil
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error
// or panic. Events raised inside fn are held back and published only after
// commit.
func (m *Memory) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	pending, ticket, err := m.commit(fn)
	if err != nil {
		return err
	}
	m.publish(ticket, pending...)
	return nil
}

func (m *Memory) commit(fn func(generic.Store) error) (pending []generic.ChangeEvent, ticket uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	view := &txMemoryView{parent: m}
	committed := false
	defer func() {
		if !committed {
			m.restore(snap)
		}
	}()

	if err := fn(view); err != nil {
		return nil, 0, err
	}
	committed = true
	return view.pending, m.ticketLocked(), nil
}

// =============================================================================
// PUBLICATION - Observers see events in commit order
// =============================================================================

// ticketLocked reserves the next publication slot. Every ticket taken must
// be passed to publish.
func (m *Memory) ticketLocked() uint64 {
	t := m.tickets
	m.tickets++
	return t
}

// publish waits for every earlier commit to be published, then delivers
// events. The store lock is not held, so observers may read the store but
// must not write to it.
func (m *Memory) publish(ticket uint64, events ...generic.ChangeEvent) {
	m.turnMu.Lock()
	for m.turn != ticket {
		m.turnCond.Wait()
	}
	m.turnMu.Unlock()

	defer func() {
		m.turnMu.Lock()
		m.turn++
		m.turnCond.Broadcast()
		m.turnMu.Unlock()
	}()
	for _, ev := range events {
		m.events.Publish(ev)
	}
}

// =============================================================================
// LOCKED HELPERS - Caller holds m.mu
// =============================================================================

func (m *Memory) getIdentityLocked(id generic.IdentityID) (generic.Identity, error) {
	identity, ok := m.identities[id]
	if !ok {
		return generic.Identity{}, &generic.NotFoundError{Kind: "identity", ID: string(id)}
	}
	return identity.Clone(), nil
}

func (m *Memory) listIdentitiesLocked() []generic.Identity {
	result := make([]generic.Identity, 0, len(m.identityOrder))
	for _, id := range m.identityOrder {
		result = append(result, m.identities[id].Clone())
	}
	return result
}

func (m *Memory) putIdentityLocked(identity generic.Identity) generic.ChangeEvent {
	if _, exists := m.identities[identity.ID]; !exists {
		m.identityOrder = append(m.identityOrder, identity.ID)
	}
	m.identities[identity.ID] = identity.Clone()

	stored := identity.Clone()
	return generic.ChangeEvent{
		Kind:     generic.KindIdentity,
		Op:       generic.OpPut,
		ID:       string(identity.ID),
		Identity: &stored,
	}
}

func (m *Memory) deleteIdentityLocked(id generic.IdentityID) (generic.ChangeEvent, error) {
	old, ok := m.identities[id]
	if !ok {
		return generic.ChangeEvent{}, &generic.NotFoundError{Kind: "identity", ID: string(id)}
	}
	delete(m.identities, id)
	for i, existing := range m.identityOrder {
		if existing == id {
			m.identityOrder = append(m.identityOrder[:i:i], m.identityOrder[i+1:]...)
			break
		}
	}
	return generic.ChangeEvent{
		Kind:     generic.KindIdentity,
		Op:       generic.OpDelete,
		ID:       string(id),
		Identity: &old,
	}, nil
}

func (m *Memory) getRequestLocked(id generic.RequestID) (generic.LeaveRequest, error) {
	req, ok := m.requests[id]
	if !ok {
		return generic.LeaveRequest{}, &generic.NotFoundError{Kind: "leave_request", ID: string(id)}
	}
	return req.Clone(), nil
}

func (m *Memory) listRequestsLocked() []generic.LeaveRequest {
	result := make([]generic.LeaveRequest, 0, len(m.requestOrder))
	for _, id := range m.requestOrder {
		result = append(result, m.requests[id].Clone())
	}
	return result
}

func (m *Memory) putRequestLocked(req generic.LeaveRequest) generic.ChangeEvent {
	var previous *generic.LeaveRequest
	if old, exists := m.requests[req.ID]; exists {
		p := old.Clone()
		previous = &p
	} else {
		m.requestOrder = append(m.requestOrder, req.ID)
	}
	m.requests[req.ID] = req.Clone()

	stored := req.Clone()
	return generic.ChangeEvent{
		Kind:     generic.KindRequest,
		Op:       generic.OpPut,
		ID:       string(req.ID),
		Request:  &stored,
		Previous: previous,
	}
}

func (m *Memory) resetLocked() generic.ChangeEvent {
	m.identities = make(map[generic.IdentityID]generic.Identity)
	m.identityOrder = nil
	m.requests = make(map[generic.RequestID]generic.LeaveRequest)
	m.requestOrder = nil
	return generic.ChangeEvent{Kind: generic.KindAll, Op: generic.OpClear}
}

func (m *Memory) clearRequestsLocked() generic.ChangeEvent {
	m.requests = make(map[generic.RequestID]generic.LeaveRequest)
	m.requestOrder = nil
	return generic.ChangeEvent{Kind: generic.KindRequest, Op: generic.OpClear}
}

// =============================================================================
// SNAPSHOT / ROLLBACK
// =============================================================================

type memorySnapshot struct {
	identities    map[generic.IdentityID]generic.Identity
	identityOrder []generic.IdentityID
	requests      map[generic.RequestID]generic.LeaveRequest
	requestOrder  []generic.RequestID
}

func (m *Memory) snapshot() memorySnapshot {
	identities := make(map[generic.IdentityID]generic.Identity, len(m.identities))
	for k, v := range m.identities {
		identities[k] = v
	}
	requests := make(map[generic.RequestID]generic.LeaveRequest, len(m.requests))
	for k, v := range m.requests {
		requests[k] = v
	}
	return memorySnapshot{
		identities:    identities,
		identityOrder: append([]generic.IdentityID(nil), m.identityOrder...),
		requests:      requests,
		requestOrder:  append([]generic.RequestID(nil), m.requestOrder...),
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.identities = s.identities
	m.identityOrder = s.identityOrder
	m.requests = s.requests
	m.requestOrder = s.requestOrder
}

// =============================================================================
// TRANSACTIONAL VIEW - Used inside WithTx, parent lock already held
// =============================================================================

type txMemoryView struct {
	parent  *Memory
	pending []generic.ChangeEvent
}

func (tv *txMemoryView) GetIdentity(_ context.Context, id generic.IdentityID) (generic.Identity, error) {
	return tv.parent.getIdentityLocked(id)
}

func (tv *txMemoryView) ListIdentities(_ context.Context) ([]generic.Identity, error) {
	return tv.parent.listIdentitiesLocked(), nil
}

func (tv *txMemoryView) PutIdentity(_ context.Context, identity generic.Identity) error {
	tv.pending = append(tv.pending, tv.parent.putIdentityLocked(identity))
	return nil
}

func (tv *txMemoryView) DeleteIdentity(_ context.Context, id generic.IdentityID) error {
	ev, err := tv.parent.deleteIdentityLocked(id)
	if err != nil {
		return err
	}
	tv.pending = append(tv.pending, ev)
	return nil
}

func (tv *txMemoryView) GetRequest(_ context.Context, id generic.RequestID) (generic.LeaveRequest, error) {
	return tv.parent.getRequestLocked(id)
}

func (tv *txMemoryView) ListRequests(_ context.Context) ([]generic.LeaveRequest, error) {
	return tv.parent.listRequestsLocked(), nil
}

func (tv *txMemoryView) PutRequest(_ context.Context, req generic.LeaveRequest) error {
	tv.pending = append(tv.pending, tv.parent.putRequestLocked(req))
	return nil
}

func (tv *txMemoryView) ClearRequests(_ context.Context) error {
	tv.pending = append(tv.pending, tv.parent.clearRequestsLocked())
	return nil
}
