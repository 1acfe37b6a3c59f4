package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/hr-engine/api"
	"github.com/warp/hr-engine/authz"
	"github.com/warp/hr-engine/config"
	"github.com/warp/hr-engine/directory"
	"github.com/warp/hr-engine/generic"
	"github.com/warp/hr-engine/generic/store"
	"github.com/warp/hr-engine/leave"
	"github.com/warp/hr-engine/notify"
	"github.com/warp/hr-engine/portal"
	"github.com/warp/hr-engine/session"
	"github.com/warp/hr-engine/store/sqlite"
	"github.com/warp/hr-engine/telemetry"
	"github.com/warp/hr-engine/views"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(flags)
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()
			return serve(cmd.Context(), a)
		},
	}
}

// serve wires the components and runs until SIGINT/SIGTERM.
//
// STARTUP SEQUENCE:
//  1. Open SQLite and load it into the in-memory store
//  2. Seed an empty database when seed.scenario is set
//  3. Start the write-behind persister and the store observers
//  4. Build directory, ledger, views, authz, sessions and the portal
//  5. Start the HTTP server
//
// SHUTDOWN:
//  1. Stop accepting new connections
//  2. Wait for active requests (server.shutdown_timeout)
//  3. Drain pending writes to SQLite
//  4. Close the database
func serve(ctx context.Context, a *app) error {
	if ctx == nil {
		ctx = context.Background()
	}
	conf := a.loader.Current()
	logger := a.logger

	db, err := sqlite.New(conf.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	mem, err := loadMemory(ctx, db, conf, logger)
	if err != nil {
		return err
	}

	metrics := telemetry.New(telemetry.Config{
		Enabled:   conf.Metrics.Enabled,
		Namespace: conf.Metrics.Namespace,
		Buckets:   conf.Metrics.Buckets,
	})
	persister := store.NewAsyncPersister(mem, db,
		store.WithLogger(logger.Named("store.async")),
		store.WithWriteTimeout(conf.Storage.WriteTimeout),
		store.WithErrorHook(metrics.PersistFailed),
	)
	mem.Subscribe(metrics.Observe)

	svc, sessions, err := buildPortal(conf, mem, metrics, logger)
	if err != nil {
		persister.Close()
		return err
	}
	metrics.RegisterGauge(conf.Metrics.Namespace+"_active_sessions", "Open login sessions",
		func() float64 { return float64(sessions.Active()) })

	handler := api.NewHandler(svc, sessions, api.WithLogger(logger.Named("api")))
	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins: conf.Server.CORSOrigins,
		Metrics:     metrics,
		Logger:      logger.Named("api.http"),
		StaticDir:   conf.Server.StaticDir,
	})

	server := &http.Server{
		Addr:         conf.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("db", conf.Storage.DBPath),
			zap.Bool("metrics", metrics.Enabled()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		persister.Close()
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	persister.Close()
	logger.Info("server stopped")
	return nil
}

// loadMemory restores the in-memory store from SQLite, seeding it first
// when the database is empty and a scenario is configured.
func loadMemory(ctx context.Context, db *sqlite.Store, conf *config.Configuration, logger *zap.Logger) (*store.Memory, error) {
	if conf.Seed.Scenario != "" {
		empty, err := db.IsEmpty(ctx)
		if err != nil {
			return nil, fmt.Errorf("inspect database: %w", err)
		}
		if empty {
			if err := seedDatabase(ctx, db, conf.Seed.Scenario); err != nil {
				return nil, err
			}
			logger.Info("database seeded", zap.String("scenario", conf.Seed.Scenario))
		}
	}

	snap, err := db.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load database: %w", err)
	}
	logger.Info("state loaded",
		zap.Int("identities", len(snap.Identities)),
		zap.Int("requests", len(snap.Requests)),
	)
	return store.NewMemoryFrom(snap), nil
}

func buildPortal(conf *config.Configuration, mem *store.Memory, metrics *telemetry.Metrics, logger *zap.Logger) (*portal.Service, *session.Sessions, error) {
	roles := make([]generic.Role, 0, len(conf.Authz.SelfRegisterRoles))
	for _, name := range conf.Authz.SelfRegisterRoles {
		role, err := generic.ParseRole(name)
		if err != nil {
			return nil, nil, fmt.Errorf("authz.self_register_roles: %w", err)
		}
		roles = append(roles, role)
	}

	dir := directory.New(mem,
		directory.WithLogger(logger.Named("directory")),
		directory.WithDefaultEntitlement(generic.NewDays(conf.Leave.DefaultEntitlement)),
	)
	ledger := leave.NewLedger(mem, leave.WithLogger(logger.Named("leave.ledger")))

	center := notify.New(dir,
		notify.WithLogger(logger.Named("notify")),
		notify.WithCaps(conf.Leave.UserInboxCap, conf.Leave.GlobalFeedCap),
	)
	mem.Subscribe(center.Observe)

	az, err := authz.New(
		authz.WithLogger(logger.Named("authz")),
		authz.WithGuestMutations(conf.Authz.AllowGuestMutations),
	)
	if err != nil {
		return nil, nil, err
	}

	resolver := session.NewResolver(dir, session.WithResolverLogger(logger.Named("session.resolver")))
	sessions := session.NewSessions(dir, resolver,
		session.WithSessionsLogger(logger.Named("session")),
		session.WithSelfRegisterRoles(roles...),
	)

	svc := portal.New(portal.Deps{
		Directory:  dir,
		Ledger:     ledger,
		Views:      views.New(dir, ledger, views.WithRecentWindow(conf.Leave.RecentWindow)),
		Authorizer: az,
		Notify:     center,
		Store:      mem,
		Metrics:    metrics,
		Logger:     logger.Named("portal"),
	})
	return svc, sessions, nil
}
