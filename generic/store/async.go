package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/hr-engine/generic"
)

// =============================================================================
// ASYNC PERSISTER - Write-behind from Memory to a durable Persister
// =============================================================================

// AsyncPersister mirrors every committed change of an Observable store into
// a Persister on a single background goroutine. Writes are applied in commit
// order. A failed write is logged and dropped; the in-memory state stays
// authoritative.
type AsyncPersister struct {
	target  generic.Persister
	logger  *zap.Logger
	timeout time.Duration
	onError func(generic.ChangeEvent, error)

	mu      sync.Mutex
	queue   []generic.ChangeEvent
	pending int // queued or being written, guarded by mu
	idle    *sync.Cond
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}

	unsubscribe func()
	closeOnce   sync.Once
}

type AsyncOption func(*AsyncPersister)

// WithLogger sets the logger used for write failures.
func WithLogger(logger *zap.Logger) AsyncOption {
	return func(p *AsyncPersister) { p.logger = logger }
}

// WithWriteTimeout bounds each durable write.
func WithWriteTimeout(d time.Duration) AsyncOption {
	return func(p *AsyncPersister) { p.timeout = d }
}

// WithErrorHook is called after a failed write has been logged.
func WithErrorHook(fn func(generic.ChangeEvent, error)) AsyncOption {
	return func(p *AsyncPersister) { p.onError = fn }
}

// NewAsyncPersister subscribes to source and starts the writer goroutine.
func NewAsyncPersister(source generic.Observable, target generic.Persister, opts ...AsyncOption) *AsyncPersister {
	p := &AsyncPersister{
		target:  target,
		logger:  zap.L().Named("store.async"),
		timeout: 5 * time.Second,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	p.idle = sync.NewCond(&p.mu)
	for _, opt := range opts {
		opt(p)
	}

	p.unsubscribe = source.Subscribe(p.enqueue)
	go p.run()
	return p
}

func (p *AsyncPersister) enqueue(ev generic.ChangeEvent) {
	p.mu.Lock()
	p.queue = append(p.queue, ev)
	p.pending++
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *AsyncPersister) run() {
	defer close(p.stopped)
	for {
		select {
		case <-p.wake:
			p.drain()
		case <-p.done:
			p.drain()
			return
		}
	}
}

func (p *AsyncPersister) drain() {
	for {
		p.mu.Lock()
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		batch := p.queue
		p.queue = nil
		p.mu.Unlock()

		for _, ev := range batch {
			p.apply(ev)
			p.written()
		}
	}
}

func (p *AsyncPersister) apply(ev generic.ChangeEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	var err error
	switch {
	case ev.Kind == generic.KindIdentity && ev.Op == generic.OpPut:
		err = p.target.SaveIdentity(ctx, *ev.Identity)
	case ev.Kind == generic.KindIdentity && ev.Op == generic.OpDelete:
		err = p.target.DeleteIdentity(ctx, generic.IdentityID(ev.ID))
	case ev.Kind == generic.KindRequest && ev.Op == generic.OpPut:
		err = p.target.SaveRequest(ctx, *ev.Request)
	case ev.Kind == generic.KindRequest && ev.Op == generic.OpClear:
		err = p.target.ClearRequests(ctx)
	case ev.Kind == generic.KindAll && ev.Op == generic.OpClear:
		err = p.target.ClearAll(ctx)
	case ev.Kind == generic.KindAll && ev.Op == generic.OpLoad:
		err = p.load(ctx, *ev.Snapshot)
	default:
		return
	}

	if err != nil {
		p.logger.Error("persist change failed",
			zap.String("kind", string(ev.Kind)),
			zap.String("op", string(ev.Op)),
			zap.String("id", ev.ID),
			zap.Error(err),
		)
		if p.onError != nil {
			p.onError(ev, err)
		}
	}
}

func (p *AsyncPersister) load(ctx context.Context, snap generic.Snapshot) error {
	if err := p.target.ClearAll(ctx); err != nil {
		return err
	}
	for _, identity := range snap.Identities {
		if err := p.target.SaveIdentity(ctx, identity); err != nil {
			return err
		}
	}
	for _, req := range snap.Requests {
		if err := p.target.SaveRequest(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

func (p *AsyncPersister) written() {
	p.mu.Lock()
	p.pending--
	if p.pending == 0 {
		p.idle.Broadcast()
	}
	p.mu.Unlock()
}

// Flush blocks until every change queued so far has been written (or has failed).
func (p *AsyncPersister) Flush() {
	p.mu.Lock()
	for p.pending > 0 {
		p.idle.Wait()
	}
	p.mu.Unlock()
}

// Close stops listening, writes what is left in the queue and stops the goroutine.
func (p *AsyncPersister) Close() {
	p.closeOnce.Do(func() {
		p.unsubscribe()
		close(p.done)
		<-p.stopped
	})
}
