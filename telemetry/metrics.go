// Package telemetry exposes Prometheus metrics for the HR engine: workflow
// transitions fed from store change events, authorization denials, HTTP
// traffic and write-behind failures.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/hr-engine/authz"
	"github.com/warp/hr-engine/generic"
)

type Config struct {
	Enabled   bool
	Namespace string
	Buckets   []float64
}

// Metrics is safe to use when disabled: every recorder becomes a no-op and
// Handler serves 404.
type Metrics struct {
	registry *prometheus.Registry

	LeaveTransitions    *prometheus.CounterVec
	LeaveApplied        *prometheus.CounterVec
	IdentityChanges     *prometheus.CounterVec
	AuthzDenied         *prometheus.CounterVec
	PersistFailures     *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

func New(cfg Config) *Metrics {
	if !cfg.Enabled {
		return &Metrics{}
	}
	buckets := prometheus.DefBuckets
	if len(cfg.Buckets) > 0 {
		buckets = cfg.Buckets
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	ns := cfg.Namespace

	return &Metrics{
		registry: reg,
		LeaveTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "leave_transitions_total",
			Help:      "Leave requests entering each status",
		}, []string{"status"}),
		LeaveApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "leave_applied_total",
			Help:      "Leave applications by leave type",
		}, []string{"leave_type"}),
		IdentityChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "identity_changes_total",
			Help:      "Directory writes by operation",
		}, []string{"op"}),
		AuthzDenied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "authz_denied_total",
			Help:      "Denied actions by object and action",
		}, []string{"object", "action"}),
		PersistFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "persist_failures_total",
			Help:      "Write-behind failures by record kind",
		}, []string{"kind"}),
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   buckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) Enabled() bool { return m.registry != nil }

// Registry is nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Observe is a store observer counting workflow movement.
func (m *Metrics) Observe(ev generic.ChangeEvent) {
	if !m.Enabled() {
		return
	}
	switch ev.Kind {
	case generic.KindRequest:
		if ev.Op != generic.OpPut || ev.Request == nil {
			return
		}
		if ev.Previous != nil && ev.Previous.Status == ev.Request.Status {
			return
		}
		if ev.Previous == nil {
			m.LeaveApplied.WithLabelValues(string(ev.Request.LeaveType)).Inc()
		}
		m.LeaveTransitions.WithLabelValues(string(ev.Request.Status)).Inc()
	case generic.KindIdentity:
		m.IdentityChanges.WithLabelValues(string(ev.Op)).Inc()
	}
}

// Denied counts an authorization denial.
func (m *Metrics) Denied(object authz.Object, action authz.Action) {
	if !m.Enabled() {
		return
	}
	m.AuthzDenied.WithLabelValues(string(object), string(action)).Inc()
}

// PersistFailed matches store.WithErrorHook.
func (m *Metrics) PersistFailed(ev generic.ChangeEvent, _ error) {
	if !m.Enabled() {
		return
	}
	m.PersistFailures.WithLabelValues(string(ev.Kind)).Inc()
}

// RegisterGauge exposes fn as a gauge, e.g. the number of open sessions.
func (m *Metrics) RegisterGauge(name, help string, fn func() float64) {
	if !m.Enabled() {
		return
	}
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn)
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if !m.Enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records count and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if !m.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
