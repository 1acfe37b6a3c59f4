package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/hr-engine/config"
	"github.com/warp/hr-engine/generic"
	"github.com/warp/hr-engine/store/sqlite"
	"github.com/warp/hr-engine/telemetry"
)

func TestSeedDatabase(t *testing.T) {
	// GIVEN: A database holding a previous scenario
	// WHEN: Another scenario is seeded over it
	// THEN: Only the new scenario's rows remain
	ctx := context.Background()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "hr.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, seedDatabase(ctx, db, "demo"))
	snap, err := db.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Identities, 8)
	assert.Len(t, snap.Requests, 5)

	require.NoError(t, seedDatabase(ctx, db, "fresh-start"))
	snap, err = db.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Identities, 1)
	assert.Equal(t, generic.IdentityID("hr001"), snap.Identities[0].ID)
	assert.Empty(t, snap.Requests)

	assert.ErrorIs(t, seedDatabase(ctx, db, "nope"), generic.ErrInvalidInput)
}

func TestLoadMemory_SeedsOnlyEmptyDatabase(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "hr.db"))
	require.NoError(t, err)
	defer db.Close()

	conf := &config.Configuration{Seed: config.Seed{Scenario: "directory-only"}}
	mem, err := loadMemory(ctx, db, conf, zap.NewNop())
	require.NoError(t, err)
	people, err := mem.ListIdentities(ctx)
	require.NoError(t, err)
	assert.Len(t, people, 8)

	// A non-empty database is left as it is.
	require.NoError(t, seedDatabase(ctx, db, "fresh-start"))
	mem, err = loadMemory(ctx, db, conf, zap.NewNop())
	require.NoError(t, err)
	people, err = mem.ListIdentities(ctx)
	require.NoError(t, err)
	assert.Len(t, people, 1)
}

func TestBuildPortal_RejectsUnknownSelfRegisterRole(t *testing.T) {
	conf := &config.Configuration{
		Leave: config.Leave{DefaultEntitlement: 15, RecentWindow: 5},
		Authz: config.Authz{SelfRegisterRoles: []string{"employee", "intern"}},
	}
	_, _, err := buildPortal(conf, nil, telemetry.New(telemetry.Config{}), zap.NewNop())
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}
