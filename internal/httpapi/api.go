package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"coursehub.org/internal/academics"
	"coursehub.org/internal/auth"
	"coursehub.org/internal/obs"
)

const serviceName = "coursehub-api"

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options carries the HTTP-facing configuration.
type Options struct {
	Version      string
	Development  bool
	CORSOrigins  []string
	RateBurst    int
	RatePerSec   int
	MaxBodyBytes int64

	// TrustedProxies may set X-Forwarded-For; empty trusts nobody.
	TrustedProxies []netip.Prefix
	// Policy overrides AccessPolicy; every route must have a rule in it.
	Policy *auth.Policy
}

// API is the HTTP layer.
type API struct {
	mux       *http.ServeMux
	auth      *auth.Service
	academics *academics.Service
	pinger    Pinger
	policy    *auth.Policy
	opts      Options
	dev       bool
}

// New registers every route behind its access rule. It fails when a route has
// no rule in the policy.
func New(authSvc *auth.Service, acad *academics.Service, pinger Pinger, opts Options) (*API, error) {
	if authSvc == nil || acad == nil {
		return nil, errors.New("httpapi: auth and academics services are required")
	}
	a := &API{
		mux:       http.NewServeMux(),
		auth:      authSvc,
		academics: acad,
		pinger:    pinger,
		policy:    opts.Policy,
		opts:      opts,
		dev:       opts.Development,
	}
	if a.policy == nil {
		a.policy = AccessPolicy()
	}

	routes := []struct {
		pattern string
		handler http.Handler
	}{
		{"GET /healthz", http.HandlerFunc(a.Healthz)},
		{"GET /readyz", http.HandlerFunc(a.Ready)},
		{"GET /v1/info", http.HandlerFunc(a.Info)},
		{"GET /metrics", obs.Handler()},

		{"POST /v1/auth/register", http.HandlerFunc(a.handleRegister)},
		{"POST /v1/auth/login", http.HandlerFunc(a.handleLogin)},
		{"GET /v1/auth/me", http.HandlerFunc(a.handleMe)},

		{"GET /v1/courses", http.HandlerFunc(a.listCourses)},
		{"GET /v1/courses/{id}", http.HandlerFunc(a.getCourse)},
		{"POST /v1/courses", http.HandlerFunc(a.createCourse)},
		{"PUT /v1/courses/{id}", http.HandlerFunc(a.updateCourse)},
		{"DELETE /v1/courses/{id}", http.HandlerFunc(a.deleteCourse)},

		{"GET /v1/assessments", http.HandlerFunc(a.listAssessments)},
		{"GET /v1/assessments/{id}", http.HandlerFunc(a.getAssessment)},
		{"POST /v1/assessments", http.HandlerFunc(a.createAssessment)},
		{"PUT /v1/assessments/{id}", http.HandlerFunc(a.updateAssessment)},
		{"DELETE /v1/assessments/{id}", http.HandlerFunc(a.deleteAssessment)},

		{"GET /v1/results", http.HandlerFunc(a.listResults)},
		{"GET /v1/results/{id}", http.HandlerFunc(a.getResult)},
		{"POST /v1/results", http.HandlerFunc(a.createResult)},
		{"PUT /v1/results/{id}", http.HandlerFunc(a.updateResult)},
		{"DELETE /v1/results/{id}", http.HandlerFunc(a.deleteResult)},

		{"GET /v1/users", http.HandlerFunc(a.listUsers)},
		{"GET /v1/users/{id}", http.HandlerFunc(a.getUser)},
		{"PUT /v1/users/{id}", http.HandlerFunc(a.updateUser)},
		{"DELETE /v1/users/{id}", http.HandlerFunc(a.deleteUser)},
	}
	for _, rt := range routes {
		rule, ok := a.policy.Rule(rt.pattern)
		if !ok {
			return nil, fmt.Errorf("httpapi: route %q has no access rule", rt.pattern)
		}
		a.mux.Handle(rt.pattern, a.gate(rule, rt.handler))
	}

	a.mux.HandleFunc("/", a.unmatched)
	return a, nil
}

// unmatched answers requests no route accepted: 405 with an Allow header when
// the path is served under other methods, 404 otherwise.
func (a *API) unmatched(w http.ResponseWriter, r *http.Request) {
	var allowed []string
	for _, m := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete} {
		if m == r.Method {
			continue
		}
		alt := new(http.Request)
		*alt = *r
		alt.Method = m
		if _, pattern := a.mux.Handler(alt); pattern != "" && pattern != "/" {
			allowed = append(allowed, m)
		}
	}
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeError(w, r, http.StatusNotFound, "not found")
}

// Handler returns the mux wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = RateLimit(h, a.opts.RateBurst, a.opts.RatePerSec)
	h = MaxBodyBytes(h, a.opts.MaxBodyBytes)
	h = CORS(a.opts.CORSOrigins)(h)
	h = SecurityHeaders(h)
	h = obs.Instrument(h)
	h = LoggingJSON(h)
	h = a.Recover(h)
	h = ClientIP(a.opts.TrustedProxies)(h)
	return RequestID(h)
}

// Healthz is the liveness check; it never touches the store.
func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.opts.Version,
	})
}

// Ready pings the store with a short timeout and mirrors the result in the
// readiness gauge.
func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if a.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.pinger.Ping(ctx); err != nil {
			obs.SetReady(false)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
			})
			return
		}
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// Info reports the service name, version and server time.
func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.opts.Version,
	})
}
