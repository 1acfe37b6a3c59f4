package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/hr-engine/api"
	"github.com/warp/hr-engine/generic"
	"github.com/warp/hr-engine/generic/store"
	"github.com/warp/hr-engine/portal"
	"github.com/warp/hr-engine/store/sqlite"
)

func newResetCmd(flags *rootFlags) *cobra.Command {
	var scenario string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the database, optionally loading a demo scenario",
		Long: "Deletes every identity and leave request from the configured database.\n" +
			"With --scenario the database is then filled with that scenario.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(flags)
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			dbPath := a.loader.Current().Storage.DBPath

			db, err := sqlite.New(dbPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			if scenario == "" {
				if err := db.ClearAll(ctx); err != nil {
					return err
				}
				a.logger.Info("database cleared", zap.String("db", dbPath))
				return nil
			}
			if err := seedDatabase(ctx, db, scenario); err != nil {
				return err
			}
			a.logger.Info("scenario loaded", zap.String("db", dbPath), zap.String("scenario", scenario))
			return nil
		},
	}
	cmd.Flags().StringVarP(&scenario, "scenario", "s", "", "Scenario to load after clearing (demo, directory-only, fresh-start)")
	return cmd
}

// seedDatabase replaces the database contents with a scenario. The data is
// written through an in-memory store and the write-behind persister, the
// same path the server uses.
func seedDatabase(ctx context.Context, db *sqlite.Store, scenario string) error {
	snap, err := api.BuildScenario(scenario)
	if err != nil {
		return err
	}

	var failed error
	mem := store.NewMemory()
	persister := store.NewAsyncPersister(mem, db, store.WithErrorHook(func(_ generic.ChangeEvent, err error) {
		if failed == nil {
			failed = err
		}
	}))
	if err := portal.Seed(ctx, mem, snap); err != nil {
		persister.Close()
		return err
	}
	persister.Close()
	if failed != nil {
		return fmt.Errorf("seed %s: %w", scenario, failed)
	}
	return nil
}
