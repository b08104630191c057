package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/auth"
)

// Metrics owns every collector exported by the service.
type Metrics struct {
	reg *prometheus.Registry

	decisions        *prometheus.CounterVec
	tokenValidations *prometheus.CounterVec
	logins           *prometheus.CounterVec

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	buildInfo           *prometheus.GaugeVec
}

// NewMetrics registers the collectors on a fresh registry together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "access_decisions_total",
			Help: "Permission evaluator decisions.",
		}, []string{"resource", "action", "outcome", "reason"}),
		tokenValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "access_token_validations_total",
			Help: "Session token validations by result.",
		}, []string{"result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "access_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Inventory access service build information.",
		}, []string{"version", "commit"}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.decisions, m.tokenValidations, m.logins,
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
		m.buildInfo,
	)
	return m
}

// Registry exposes the underlying registry, e.g. for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// RecordDecision matches auth.DecisionHook.
func (m *Metrics) RecordDecision(target auth.Target, action auth.Action, d auth.Decision) {
	outcome := "deny"
	if d.Allowed {
		outcome = "allow"
	}
	m.decisions.WithLabelValues(string(target.Type), string(action), outcome, string(d.Reason)).Inc()
}

// RecordLogin matches auth.OutcomeHook.
func (m *Metrics) RecordLogin(result string) {
	m.logins.WithLabelValues(result).Inc()
}

// RecordSession matches auth.OutcomeHook.
func (m *Metrics) RecordSession(result string) {
	m.tokenValidations.WithLabelValues(result).Inc()
}

// Instrument measures request count, latency and in-flight requests.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		m.httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// routeTemplates lists parameterised routes; ":x" matches any segment.
var routeTemplates = [][]string{
	{"v1", "roles", ":id"},
	{"v1", "roles", ":id", "permissions"},
	{"v1", "permissions", ":id"},
	{"v1", "users", ":id"},
	{"v1", "users", ":id", "role"},
	{"v1", "users", ":id", "status"},
	{"v1", "users", ":id", "owned", ":type"},
	{"v1", "resources", ":type", ":id", "owners"},
	{"v1", "resources", ":type", ":id", "owners", ":user"},
	{"v1", "resources", ":type", ":id", "claim"},
}

var staticRoutes = map[string]struct{}{
	"/healthz":         {},
	"/readyz":          {},
	"/metrics":         {},
	"/v1/info":         {},
	"/v1/auth/login":   {},
	"/v1/auth/verify":  {},
	"/v1/auth/me":      {},
	"/v1/access/check": {},
	"/v1/audit/events": {},
	"/v1/roles":        {},
	"/v1/permissions":  {},
	"/v1/users":        {},
}

// unmatchedPath labels requests for routes the API does not serve.
const unmatchedPath = "unmatched"

// CanonicalPath collapses ids in known routes so metric label cardinality
// stays bounded. Paths outside the API collapse to a single label.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" || raw == "/" {
		return "/"
	}
	if _, ok := staticRoutes[raw]; ok {
		return raw
	}
	segs := strings.Split(strings.Trim(raw, "/"), "/")
	for _, tpl := range routeTemplates {
		if matchTemplate(tpl, segs) {
			return "/" + strings.Join(tpl, "/")
		}
	}
	return unmatchedPath
}

func matchTemplate(tpl, segs []string) bool {
	if len(tpl) != len(segs) {
		return false
	}
	for i, t := range tpl {
		if strings.HasPrefix(t, ":") {
			if segs[i] == "" {
				return false
			}
			continue
		}
		if t != segs[i] {
			return false
		}
	}
	return true
}
