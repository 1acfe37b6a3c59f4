package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/hr-engine/generic"
	"github.com/warp/hr-engine/generic/store"
	"github.com/warp/hr-engine/store/sqlite"
)

func openTemp(t *testing.T) (*sqlite.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hr.db")
	db, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, path
}

func sampleIdentity(id generic.IdentityID, manager *generic.IdentityID) generic.Identity {
	return generic.Identity{
		ID:                    id,
		EmployeeCode:          "EMP001",
		Name:                  "John Doe",
		Email:                 "john@company.com",
		Role:                  generic.RoleEmployee,
		Department:            "Engineering",
		ManagerID:             manager,
		JoinDate:              generic.NewDate(2023, time.January, 15),
		Status:                generic.StatusActive,
		TotalLeaveEntitlement: generic.NewDays(15),
		UsedLeaveDays:         generic.NewDays(8),
		CreatedAt:             generic.NewDate(2023, time.January, 15),
	}
}

func sampleRequest(id generic.RequestID) generic.LeaveRequest {
	return generic.LeaveRequest{
		ID:            id,
		EmployeeID:    "emp001",
		LeaveType:     generic.LeaveSick,
		StartDate:     generic.NewDate(2025, time.September, 1),
		EndDate:       generic.NewDate(2025, time.September, 3),
		Reason:        "flu",
		Status:        generic.StatusPendingManager,
		AppliedDate:   generic.NewDate(2025, time.August, 28),
		AppliedAt:     time.Date(2025, time.August, 28, 10, 30, 0, 123, time.UTC),
		ManagerID:     generic.IdentityPtr("mgr001"),
		EmployeeName:  "John Doe",
		EmployeeEmail: "john@company.com",
		Department:    "Engineering",
	}
}

func TestStore_RoundTrip(t *testing.T) {
	// GIVEN: An identity and a request with a full decision trail
	// WHEN: The database is closed and reopened
	// THEN: Load returns identical records
	ctx := context.Background()
	db, path := openTemp(t)

	identity := sampleIdentity("emp001", generic.IdentityPtr("mgr001"))
	req := sampleRequest("1")
	req.Status = generic.StatusApproved
	req.ManagerDecision = &generic.StageDecision{
		Decision: generic.DecisionApproved, Date: generic.NewDate(2025, time.August, 29),
		Comments: "ok", ActorID: "mgr001",
	}
	req.HRDecision = &generic.StageDecision{
		Decision: generic.DecisionApproved, Date: generic.NewDate(2025, time.August, 30),
		ActorID: "guest-x", ActorSynthesized: true,
	}

	require.NoError(t, db.SaveIdentity(ctx, identity))
	require.NoError(t, db.SaveRequest(ctx, req))
	require.NoError(t, db.Close())

	reopened, err := sqlite.New(path)
	require.NoError(t, err)
	defer reopened.Close()

	snap, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Identities, 1)
	require.Len(t, snap.Requests, 1)

	got := snap.Identities[0]
	assert.Equal(t, identity.ID, got.ID)
	assert.Equal(t, identity.EmployeeCode, got.EmployeeCode)
	assert.Equal(t, "mgr001", string(*got.ManagerID))
	assert.True(t, got.JoinDate.Equal(identity.JoinDate))
	assert.True(t, got.UsedLeaveDays.Equal(generic.NewDays(8)))
	assert.Empty(t, got.Phone)

	r := snap.Requests[0]
	assert.Equal(t, generic.StatusApproved, r.Status)
	assert.True(t, r.AppliedAt.Equal(req.AppliedAt))
	assert.Equal(t, 3, r.Days())
	require.NotNil(t, r.ManagerDecision)
	assert.Equal(t, "ok", r.ManagerDecision.Comments)
	require.NotNil(t, r.HRDecision)
	assert.True(t, r.HRDecision.ActorSynthesized)
	assert.True(t, r.HRDecision.Date.Equal(generic.NewDate(2025, time.August, 30)))
}

func TestStore_UpsertKeepsInsertOrder(t *testing.T) {
	ctx := context.Background()
	db, _ := openTemp(t)

	for _, id := range []generic.RequestID{"b", "a", "c"} {
		require.NoError(t, db.SaveRequest(ctx, sampleRequest(id)))
	}
	updated := sampleRequest("b")
	updated.Status = generic.StatusRejectedManager
	require.NoError(t, db.SaveRequest(ctx, updated))

	snap, err := db.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Requests, 3)
	assert.Equal(t, generic.RequestID("b"), snap.Requests[0].ID)
	assert.Equal(t, generic.StatusRejectedManager, snap.Requests[0].Status)
	assert.Nil(t, snap.Requests[1].ManagerDecision)
}

func TestStore_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	db, _ := openTemp(t)

	require.NoError(t, db.SaveIdentity(ctx, sampleIdentity("emp001", nil)))
	require.NoError(t, db.SaveIdentity(ctx, sampleIdentity("emp002", nil)))
	require.NoError(t, db.SaveRequest(ctx, sampleRequest("1")))

	require.NoError(t, db.DeleteIdentity(ctx, "emp001"))
	require.NoError(t, db.DeleteIdentity(ctx, "missing"))
	require.NoError(t, db.ClearRequests(ctx))

	snap, err := db.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Identities, 1)
	assert.Empty(t, snap.Requests)

	require.NoError(t, db.ClearAll(ctx))
	empty, err := db.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestStore_MirrorsMemoryThroughWriteBehind(t *testing.T) {
	// GIVEN: A memory store mirrored to SQLite
	// WHEN: Records are written and the persister flushed
	// THEN: A fresh memory store loaded from SQLite matches the original
	ctx := context.Background()
	db, _ := openTemp(t)

	mem := store.NewMemory()
	persister := store.NewAsyncPersister(mem, db, store.WithLogger(zap.NewNop()))

	require.NoError(t, mem.PutIdentity(ctx, sampleIdentity("emp001", nil)))
	require.NoError(t, mem.PutRequest(ctx, sampleRequest("1")))
	persister.Close()

	snap, err := db.Load(ctx)
	require.NoError(t, err)
	loaded := store.NewMemoryFrom(snap)

	got, err := loaded.GetRequest(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "flu", got.Reason)
	people, err := loaded.ListIdentities(ctx)
	require.NoError(t, err)
	assert.Len(t, people, 1)
}
