package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/audit"
	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/auth"
	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/obs"
	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/stream"
)

const serviceName = "inventory-access"

// Pinger is implemented by backing stores that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks the database and any additional dependencies.
type ReadyProbe struct {
	DB   *sql.DB
	Deps []Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	for _, d := range rp.Deps {
		if err := d.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Deps wires the API to the access-control services.
type Deps struct {
	Service   *auth.Service
	Evaluator *auth.Evaluator
	Graph     *auth.AuthorityGraph
	Users     *auth.Users
	Ownership *auth.Ownership
	Audit     *audit.Logger
	Metrics   *obs.Metrics
	Events    *stream.Broker
	Log       *zap.Logger
	Ready     ReadyProbe
	Version   string

	RateBurst  int
	RatePerSec float64
}

// API is the HTTP layer.
type API struct {
	mux       *http.ServeMux
	svc       *auth.Service
	evaluator *auth.Evaluator
	graph     *auth.AuthorityGraph
	users     *auth.Users
	ownership *auth.Ownership
	audit     *audit.Logger
	metrics   *obs.Metrics
	events    *stream.Broker
	log       *zap.Logger
	validate  *validator.Validate
	ready     ReadyProbe
	version   string

	rateBurst  int
	ratePerSec float64
}

func New(d Deps) (*API, error) {
	if d.Service == nil || d.Evaluator == nil || d.Graph == nil || d.Users == nil || d.Ownership == nil {
		return nil, errors.New("httpapi: auth services are required")
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Audit == nil {
		d.Audit = audit.New(d.Log)
	}
	if d.Metrics == nil {
		d.Metrics = obs.NewMetrics()
	}
	if d.RateBurst <= 0 {
		d.RateBurst = 40
	}
	if d.RatePerSec <= 0 {
		d.RatePerSec = 20
	}
	a := &API{
		mux:        http.NewServeMux(),
		svc:        d.Service,
		evaluator:  d.Evaluator,
		graph:      d.Graph,
		users:      d.Users,
		ownership:  d.Ownership,
		audit:      d.Audit,
		metrics:    d.Metrics,
		events:     d.Events,
		log:        d.Log,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		ready:      d.Ready,
		version:    d.Version,
		rateBurst:  d.RateBurst,
		ratePerSec: d.RatePerSec,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", a.metrics.Handler())

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/verify", a.handleVerify)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)
	a.mux.HandleFunc("/v1/access/check", a.handleAccessCheck)
	a.mux.HandleFunc("/v1/audit/events", a.handleAuditEvents)

	a.mux.HandleFunc("/v1/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/roles/{id}", a.handleRole)
	a.mux.HandleFunc("/v1/roles/{id}/permissions", a.handleRolePermissions)
	a.mux.HandleFunc("/v1/permissions", a.handlePermissions)
	a.mux.HandleFunc("/v1/permissions/{id}", a.handlePermission)
	a.mux.HandleFunc("/v1/users", a.handleUsers)
	a.mux.HandleFunc("/v1/users/{id}", a.handleUser)
	a.mux.HandleFunc("/v1/users/{id}/role", a.handleUserRole)
	a.mux.HandleFunc("/v1/users/{id}/status", a.handleUserStatus)
	a.mux.HandleFunc("/v1/users/{id}/owned/{type}", a.handleOwnedBy)

	a.mux.HandleFunc("/v1/resources/{type}/{id}/owners", a.handleOwners)
	a.mux.HandleFunc("/v1/resources/{type}/{id}/owners/{user}", a.handleOwner)
	a.mux.HandleFunc("/v1/resources/{type}/{id}/claim", a.handleClaim)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	return a, nil
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = a.metrics.Instrument(h)
	h = LoggingJSON(a.log)(h)
	h = SecurityHeaders(h)
	return RequestID(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.ready.Check(ctx); err != nil {
		a.log.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
