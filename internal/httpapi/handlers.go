// Package httpapi is the HTTP face of the gateway: the auth endpoints
// mounted under the configured prefix, and the interceptor that
// authenticates and authorizes every other request before handing it to the
// storage upstream.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ostiary.org/internal/auth"
	"ostiary.org/internal/obs"
)

// Options configures the API.
type Options struct {
	// Service implements authentication, identity and authorization.
	Service *auth.Service
	// Upstream receives storage requests that pass authorization, usually a
	// reverse proxy to the storage cluster.
	Upstream http.Handler
	// AuthPrefix mounts the auth endpoints. Default "/auth/".
	AuthPrefix string
	Version    string
	Logger     *slog.Logger
	// Ready reports backend readiness for the readyz probe.
	Ready func(ctx context.Context) error
	// BodyMaxBytes caps request bodies on the auth endpoints.
	BodyMaxBytes int64
	// RatePerSec and RateBurst rate limit token issuance per client IP.
	// Zero RatePerSec disables the limit.
	RatePerSec float64
	RateBurst  int
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	svc        *auth.Service
	upstream   http.Handler
	authPrefix string
	version    string
	log        *slog.Logger
	ready      func(ctx context.Context) error
	now        func() time.Time
	tokens     http.Handler
}

func New(opts Options) (*API, error) {
	if opts.Service == nil {
		return nil, errors.New("httpapi: auth service is required")
	}
	prefix := opts.AuthPrefix
	if prefix == "" {
		prefix = "/auth/"
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	logger := opts.Logger
	if logger == nil {
		logger = obs.Logger()
	}

	a := &API{
		mux:        http.NewServeMux(),
		svc:        opts.Service,
		upstream:   opts.Upstream,
		authPrefix: prefix,
		version:    opts.Version,
		log:        logger,
		ready:      opts.Ready,
		now:        time.Now,
	}

	a.tokens = http.HandlerFunc(a.handleGetToken)
	if opts.RatePerSec > 0 {
		a.tokens = RateLimit(a.tokens, opts.RateBurst, opts.RatePerSec)
	}

	var admin http.Handler = http.HandlerFunc(a.handleAuth)
	if opts.BodyMaxBytes > 0 {
		admin = MaxBodyBytes(admin, opts.BodyMaxBytes)
	}

	// health/ready/metrics
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	// Auth endpoints under the prefix; the bare prefix without its trailing
	// slash redirects. Everything else is a storage request.
	a.mux.Handle(prefix, admin)
	a.mux.HandleFunc("/", a.intercept)

	return a, nil
}

// Handler returns the complete middleware stack for the server.
func (a *API) Handler() http.Handler {
	return RequestID(obs.Instrument(LoggingJSON(a.log, a.mux)))
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "ostiary",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if a.ready != nil {
		if err := a.ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
