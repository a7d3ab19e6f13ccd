package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"staffroster.org/internal/apperr"
	"staffroster.org/internal/auth"
	"staffroster.org/internal/obs"
	"staffroster.org/internal/users"
)

const (
	serviceName         = "staffroster-api"
	apiPrefix           = "/api/v1"
	defaultMaxBodyBytes = 1 << 20
)

// ReadinessChecker reports whether the service can serve traffic.
type ReadinessChecker interface {
	Check(ctx context.Context) error
}

// PingFunc adapts a ping function (for example a store's Ping) to
// ReadinessChecker. A nil PingFunc is always ready.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Check(ctx context.Context) error {
	if f == nil {
		return nil
	}
	return f(ctx)
}

// API is the HTTP layer.
type API struct {
	mux   *http.ServeMux
	auth  *auth.Service
	users *users.Service

	ready       ReadinessChecker
	version     string
	corsOrigins []string
	maxBody     int64
	ratePerSec  float64
	rateBurst   int
}

// Option configures API.
type Option func(*API)

func WithVersion(v string) Option {
	return func(a *API) { a.version = v }
}

// WithReadiness sets the probe behind /readyz.
func WithReadiness(rc ReadinessChecker) Option {
	return func(a *API) {
		if rc != nil {
			a.ready = rc
		}
	}
}

// WithCORSOrigins lists the browser origins allowed to call the API.
func WithCORSOrigins(origins ...string) Option {
	return func(a *API) { a.corsOrigins = append([]string(nil), origins...) }
}

// WithRateLimit enables a per client IP token bucket. perSecond <= 0
// disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(a *API) {
		a.ratePerSec = perSecond
		a.rateBurst = burst
	}
}

func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBody = n
		}
	}
}

// New wires the HTTP routes around the auth and users services.
func New(authSvc *auth.Service, userSvc *users.Service, opts ...Option) *API {
	a := &API{
		mux:     http.NewServeMux(),
		auth:    authSvc,
		users:   userSvc,
		ready:   PingFunc(nil),
		version: "dev",
		maxBody: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.routes()
	return a
}

func (a *API) routes() {
	// health/ready/metrics
	a.mux.HandleFunc("GET /ping", a.Ping)
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("POST "+apiPrefix+"/auth/login", a.handleLogin)
	a.mux.HandleFunc("POST "+apiPrefix+"/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("POST "+apiPrefix+"/auth/verify", a.handleVerify)
	a.mux.Handle("GET "+apiPrefix+"/auth/me", a.authenticated(a.handleMe))
	a.mux.Handle("POST "+apiPrefix+"/auth/change-password", a.authenticated(a.handleChangePassword))

	a.mux.Handle("POST "+apiPrefix+"/users/register", a.protected(auth.EndpointRegisterUser, a.handleRegister))
	a.mux.Handle("GET "+apiPrefix+"/users", a.protected(auth.EndpointViewUsers, a.handleListUsers))
	a.mux.Handle("GET "+apiPrefix+"/users/manageable", a.protected(auth.EndpointViewUsers, a.handleManageable))
	a.mux.Handle("GET "+apiPrefix+"/users/statistics", a.protected(auth.EndpointViewUsers, a.handleStatistics))
	a.mux.Handle("POST "+apiPrefix+"/users/status", a.protected(auth.EndpointUpdateUser, a.handleBulkStatus))
	a.mux.Handle("GET "+apiPrefix+"/users/{id}", a.protected(auth.EndpointViewUsers, a.handleGetUser))
	a.mux.Handle("PATCH "+apiPrefix+"/users/{id}", a.protected(auth.EndpointUpdateUser, a.handleUpdateUser))
	a.mux.Handle("DELETE "+apiPrefix+"/users/{id}", a.protected(auth.EndpointDeleteUser, a.handleDeactivateUser))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, apperr.New(apperr.KindNotFound, "", "Route not found"))
	})
}

// Handler returns the routes wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, a.maxBody)
	if a.ratePerSec > 0 {
		h = RateLimit(h, a.rateBurst, a.ratePerSec)
	}
	h = SecurityHeaders(h)
	h = CORS(h, a.corsOrigins)
	h = LoggingJSON(h)
	h = Recover(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ping": "pong!"})
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		obs.Logger().Warn().Err(err).Msg("readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads exactly one JSON value into dst. Failures are reported
// as validation errors on the request body.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return bodyError("missing", "Request body is required")
		case errors.As(err, &maxErr):
			return bodyError("too_large", "Request body is too large")
		default:
			return bodyError("json_invalid", err.Error())
		}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return bodyError("json_invalid", "Unexpected data after JSON body")
	}
	return nil
}

func bodyError(typ, msg string) error {
	return apperr.Validation(apperr.FieldError{Field: "body", Message: msg, Type: typ})
}
