package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/hr-engine/generic"
	"github.com/warp/hr-engine/generic/store"
)

// recordingPersister captures writes in call order.
type recordingPersister struct {
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (r *recordingPersister) record(call string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	if r.fail {
		return errors.New("disk full")
	}
	return nil
}

func (r *recordingPersister) SaveIdentity(_ context.Context, i generic.Identity) error {
	return r.record("save-identity:" + string(i.ID))
}

func (r *recordingPersister) DeleteIdentity(_ context.Context, id generic.IdentityID) error {
	return r.record("delete-identity:" + string(id))
}

func (r *recordingPersister) SaveRequest(_ context.Context, req generic.LeaveRequest) error {
	return r.record("save-request:" + string(req.ID))
}

func (r *recordingPersister) ClearRequests(context.Context) error {
	return r.record("clear-requests")
}

func (r *recordingPersister) ClearAll(context.Context) error {
	return r.record("clear-all")
}

func (r *recordingPersister) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// statusPersister records the status of every saved request.
type statusPersister struct {
	recordingPersister
	saved []generic.LeaveStatus
}

func (s *statusPersister) SaveRequest(_ context.Context, req generic.LeaveRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, req.Status)
	return nil
}

func (s *statusPersister) Saved() []generic.LeaveStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]generic.LeaveStatus(nil), s.saved...)
}

func TestAsyncPersister_AppliesChangesInCommitOrder(t *testing.T) {
	m := store.NewMemory()
	target := &recordingPersister{}
	p := store.NewAsyncPersister(m, target, store.WithLogger(zap.NewNop()))
	defer p.Close()
	ctx := context.Background()

	require.NoError(t, m.PutIdentity(ctx, identity("e1", "E1")))
	require.NoError(t, m.PutRequest(ctx, request("r1", "e1")))
	require.NoError(t, m.DeleteIdentity(ctx, "e1"))
	require.NoError(t, m.ClearRequests(ctx))
	require.NoError(t, m.Reset(ctx))

	p.Flush()
	assert.Equal(t, []string{
		"save-identity:e1",
		"save-request:r1",
		"delete-identity:e1",
		"clear-requests",
		"clear-all",
	}, target.Calls())
}

func TestAsyncPersister_FailureDoesNotAffectMemory(t *testing.T) {
	// GIVEN: A persister whose every write fails
	// WHEN: The store commits a write
	// THEN: The write is visible in memory and the error hook fires
	m := store.NewMemory()
	target := &recordingPersister{fail: true}

	var failures int
	var mu sync.Mutex
	p := store.NewAsyncPersister(m, target,
		store.WithLogger(zap.NewNop()),
		store.WithErrorHook(func(generic.ChangeEvent, error) {
			mu.Lock()
			failures++
			mu.Unlock()
		}),
	)
	defer p.Close()
	ctx := context.Background()

	require.NoError(t, m.PutIdentity(ctx, identity("e1", "E1")))
	p.Flush()

	_, err := m.GetIdentity(ctx, "e1")
	assert.NoError(t, err)
	mu.Lock()
	assert.Equal(t, 1, failures)
	mu.Unlock()
}

func TestAsyncPersister_CloseStopsListening(t *testing.T) {
	m := store.NewMemory()
	target := &recordingPersister{}
	p := store.NewAsyncPersister(m, target, store.WithLogger(zap.NewNop()))
	ctx := context.Background()

	require.NoError(t, m.PutIdentity(ctx, identity("e1", "E1")))
	p.Close()
	require.NoError(t, m.PutIdentity(ctx, identity("e2", "E2")))

	assert.Equal(t, []string{"save-identity:e1"}, target.Calls())
}

func TestAsyncPersister_SlowDeliveryKeepsCommitOrder(t *testing.T) {
	// GIVEN: Delivery of the manager approval is held up by an earlier observer
	// WHEN: The HR approval commits while the first event is still in flight
	// THEN: The durable copy ends on the later state
	m := store.NewMemory()
	ctx := context.Background()

	held := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	m.Subscribe(func(ev generic.ChangeEvent) {
		if ev.Request != nil && ev.Request.Status == generic.StatusPendingHR {
			once.Do(func() {
				close(held)
				<-release
			})
		}
	})
	target := &statusPersister{}
	p := store.NewAsyncPersister(m, target, store.WithLogger(zap.NewNop()))
	defer p.Close()

	first := request("r1", "e1")
	first.Status = generic.StatusPendingHR
	second := first
	second.Status = generic.StatusApproved
	put := func(req generic.LeaveRequest) error {
		return m.WithTx(ctx, func(tx generic.Store) error { return tx.PutRequest(ctx, req) })
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, put(first))
	}()
	<-held
	go func() {
		defer wg.Done()
		assert.NoError(t, put(second))
	}()

	require.Eventually(t, func() bool {
		got, err := m.GetRequest(ctx, "r1")
		return err == nil && got.Status == generic.StatusApproved
	}, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	p.Flush()
	assert.Equal(t, []generic.LeaveStatus{generic.StatusPendingHR, generic.StatusApproved}, target.Saved())
}

func TestAsyncPersister_FlushWithConcurrentWriters(t *testing.T) {
	m := store.NewMemory()
	target := &recordingPersister{}
	p := store.NewAsyncPersister(m, target, store.WithLogger(zap.NewNop()))
	defer p.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				assert.NoError(t, m.PutIdentity(ctx, identity(fmt.Sprintf("e%d-%d", i, j), "E")))
				p.Flush()
			}
		}(i)
	}
	wg.Wait()
	p.Flush()

	assert.Len(t, target.Calls(), 200)
}

func TestAsyncPersister_LoadReplacesTarget(t *testing.T) {
	m := store.NewMemory()
	target := &recordingPersister{}
	p := store.NewAsyncPersister(m, target, store.WithLogger(zap.NewNop()))
	defer p.Close()

	require.NoError(t, m.Load(context.Background(), generic.Snapshot{
		Identities: []generic.Identity{identity("e1", "E1")},
		Requests:   []generic.LeaveRequest{request("r1", "e1")},
	}))
	p.Flush()

	assert.Equal(t, []string{"clear-all", "save-identity:e1", "save-request:r1"}, target.Calls())
}
