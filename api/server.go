/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. AccessLog:  zap request logging (see middleware.go)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend
  5. Metrics:    Prometheus count/latency per route pattern
  6. Session:    Resolves X-Session-Token on /api routes (see middleware.go)

ROUTE GROUPS:
  /api/auth/*           Login, register, logout, current principal
  /api/employees/*      Identity directory
  /api/managers         Manager list
  /api/leave/*          Leave ledger and approval queues
  /api/team/*           Team rollups
  /api/notifications    Caller's inbox
  /api/scenarios/*      Demo scenarios
  /api/admin/*          Maintenance
  /metrics              Prometheus scrape endpoint
  /*                    Static files (frontend)

AUTHENTICATION:
  Sessions are mock logins without passwords. Every /api route except the
  public group requires a session; what the principal may do is decided in
  portal/authz, not here.

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Session and access log middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/warp/hr-engine/telemetry"
)

// RouterOptions configure NewRouter. The zero value is usable.
type RouterOptions struct {
	CORSOrigins []string
	Metrics     *telemetry.Metrics
	Logger      *zap.Logger
	// StaticDir is the built front end. Empty or missing serves a landing page.
	StaticDir string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = zap.L().Named("api.http")
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.New(telemetry.Config{})
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(AccessLog(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", SessionHeader},
		AllowCredentials: true,
	}))
	r.Use(metrics.Middleware)

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Group(func(r chi.Router) {
			r.Post("/auth/login", h.Login)
			r.Post("/auth/register", h.Register)
			r.Get("/leave/types", h.ListLeaveTypes)
			r.Get("/scenarios", h.ListScenarios)
			r.Get("/scenarios/current", h.GetCurrentScenario)
		})

		// Session routes
		r.Group(func(r chi.Router) {
			r.Use(h.RequireSession)

			r.Route("/auth", func(r chi.Router) {
				r.Post("/logout", h.Logout)
				r.Get("/me", h.Me)
			})

			r.Route("/employees", func(r chi.Router) {
				r.Get("/", h.ListEmployees)
				r.Post("/", h.CreateEmployee)
				r.Get("/stats", h.GetDirectoryStats)
				r.Get("/{id}", h.GetEmployee)
				r.Put("/{id}", h.UpdateEmployee)
				r.Delete("/{id}", h.DeleteEmployee)
				r.Get("/{id}/reports", h.ListDirectReports)
			})
			r.Get("/managers", h.ListManagers)

			r.Route("/leave", func(r chi.Router) {
				r.Get("/", h.ListLeaveRequests)
				r.Post("/", h.ApplyLeave)
				r.Get("/mine", h.ListMyLeaveRequests)
				r.Get("/stats", h.GetLeaveStats)
				r.Get("/pending/manager", h.ListPendingManager)
				r.Get("/pending/hr", h.ListPendingHR)
				r.Get("/{id}", h.GetLeaveRequest)
				r.Post("/{id}/manager-decision", h.DecideAsManager)
				r.Post("/{id}/hr-decision", h.DecideAsHR)
			})

			r.Get("/team/{managerId}/rollup", h.GetTeamRollup)
			r.Get("/notifications", h.ListNotifications)

			r.Post("/scenarios/load", h.LoadScenario)
			r.Route("/admin", func(r chi.Router) {
				r.Post("/reset", h.ResetData)
			})
		})
	})

	mountStatic(r, opts.StaticDir)
	return r
}

// mountStatic serves the built React app, falling back to index.html for
// client-side routing.
func mountStatic(r chi.Router, staticDir string) {
	if staticDir != "" {
		if _, err := os.Stat(staticDir); err == nil {
			fileServer := http.FileServer(http.Dir(staticDir))
			r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
				fullPath := filepath.Join(staticDir, filepath.Clean(r.URL.Path))
				if _, err := os.Stat(fullPath); os.IsNotExist(err) {
					http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
					return
				}
				fileServer.ServeHTTP(w, r)
			})
			return
		}
	}

	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>HR Leave Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>HR Leave Engine API</h1>
<p>The frontend is not built. Log in with <code>POST /api/auth/login</code> and pass the
returned token in the <code>X-Session-Token</code> header.</p>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/leave/types">/api/leave/types</a> - Leave types</li>
<li><a href="/api/scenarios">/api/scenarios</a> - Demo scenarios</li>
<li><a href="/metrics">/metrics</a> - Prometheus metrics</li>
</ul>
</body>
</html>`))
	})
}
