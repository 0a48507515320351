// Package metrics holds the Prometheus collectors for the access-control
// layer and the HTTP surface. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Access control
	PermissionDecisions *prometheus.CounterVec
	TenantResolutions   *prometheus.CounterVec
	ModuleAccessChecks  *prometheus.CounterVec

	// Auth
	LoginAttempts *prometheus.CounterVec
}

// New creates the collectors and registers them, plus the Go and process
// collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learnhub_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "learnhub_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		PermissionDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learnhub_permission_decisions_total",
				Help: "Capability checks by capability, outcome and deciding rule",
			},
			[]string{"capability", "outcome", "rule"},
		),
		TenantResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learnhub_tenant_resolutions_total",
				Help: "Tenant context resolutions by outcome",
			},
			[]string{"outcome"},
		),
		ModuleAccessChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learnhub_module_access_checks_total",
				Help: "Module access checks by outcome and deciding rule",
			},
			[]string{"outcome", "rule"},
		),
		LoginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learnhub_login_attempts_total",
				Help: "Login attempts by method and outcome",
			},
			[]string{"method", "outcome"},
		),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PermissionDecisions,
		m.TenantResolutions,
		m.ModuleAccessChecks,
		m.LoginAttempts,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func outcome(allowed bool) string {
	if allowed {
		return "allow"
	}
	return "deny"
}

// Decision counts one capability check.
func (m *Metrics) Decision(capability string, allowed bool, rule string) {
	if m == nil {
		return
	}
	m.PermissionDecisions.WithLabelValues(capability, outcome(allowed), rule).Inc()
}

// Resolution counts one tenant resolution. result is "ok" or an access
// error code.
func (m *Metrics) Resolution(result string) {
	if m == nil {
		return
	}
	m.TenantResolutions.WithLabelValues(result).Inc()
}

// ModuleAccess counts one module access check.
func (m *Metrics) ModuleAccess(allowed bool, rule string) {
	if m == nil {
		return
	}
	m.ModuleAccessChecks.WithLabelValues(outcome(allowed), rule).Inc()
}

// Login counts one login attempt.
func (m *Metrics) Login(method, result string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(method, result).Inc()
}

/*─────────────────────────────────────────────────────────────────────────────*
| HTTP middleware                                                              |
*─────────────────────────────────────────────────────────────────────────────*/

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument records request count and latency labelled by the chi route
// pattern so ids in paths do not explode cardinality.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.code)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
