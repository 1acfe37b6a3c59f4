/*
store.go - Persistence contracts for identities and leave requests

PURPOSE:
  Defines the interface between the components and the process-local
  store that owns both logical tables (identities and leave requests).
  The store holds plain records; referential integrity is enforced by the
  directory and the leave ledger at their API boundary, never here.

KEY INTERFACES:
  Store:      Record access for both tables
  TxStore:    Atomic read-modify-write across both tables
  Observable: Change notifications after every committed mutation
  Persister:  Durable write-behind target (see store/sqlite)

ATOMICITY:
  A leave approval changes a LeaveRequest and its owner's counters. Both
  writes happen inside one WithTx call: either both are visible or
  neither is. If fn returns an error the store is restored to the state
  it had before WithTx.

ORDERING:
  List methods return records in insertion order. Replacing a record with
  Put keeps its original position.
  Observers receive change events in commit order, even when two writers
  commit concurrently.

IMPLEMENTATIONS:
  - generic/store/memory.go: authoritative in-memory store
  - store/sqlite/sqlite.go:  Persister + Loader

SEE ALSO:
  - events.go: ChangeEvent and the observer registry
*/
package generic

import "context"

// =============================================================================
// STORE - Record access
// =============================================================================

// Store handles both logical tables.
type Store interface {
	// GetIdentity returns ErrNotFound (as *NotFoundError) when absent.
	GetIdentity(ctx context.Context, id IdentityID) (Identity, error)

	// ListIdentities returns every identity in insertion order.
	ListIdentities(ctx context.Context) ([]Identity, error)

	// PutIdentity inserts or replaces an identity.
	PutIdentity(ctx context.Context, identity Identity) error

	// DeleteIdentity returns ErrNotFound when absent. Leave requests are untouched.
	DeleteIdentity(ctx context.Context, id IdentityID) error

	// GetRequest returns ErrNotFound (as *NotFoundError) when absent.
	GetRequest(ctx context.Context, id RequestID) (LeaveRequest, error)

	// ListRequests returns every leave request in insertion order.
	ListRequests(ctx context.Context) ([]LeaveRequest, error)

	// PutRequest inserts or replaces a leave request.
	PutRequest(ctx context.Context, request LeaveRequest) error

	// ClearRequests drops the whole leave ledger.
	ClearRequests(ctx context.Context) error
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the given Store is undone.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Reset clears both tables.
	Reset(ctx context.Context) error

	// Load replaces both tables with snap in one step. It publishes a single
	// KindAll/OpLoad event instead of one event per record.
	Load(ctx context.Context, snap Snapshot) error
}

// Observable stores publish a ChangeEvent per committed write.
type Observable interface {
	Subscribe(fn Observer) (unsubscribe func())
}

// =============================================================================
// PERSISTER - Durable write-behind target
// =============================================================================

// Persister mirrors committed changes to durable storage.
// Failures are the persister's problem: the in-memory store has already
// committed and is never rolled back because a durable write failed.
type Persister interface {
	SaveIdentity(ctx context.Context, identity Identity) error
	DeleteIdentity(ctx context.Context, id IdentityID) error
	SaveRequest(ctx context.Context, request LeaveRequest) error
	ClearRequests(ctx context.Context) error
	ClearAll(ctx context.Context) error
}

// Snapshot is the full content of both tables, used to load a store.
type Snapshot struct {
	Identities []Identity
	Requests   []LeaveRequest
}
