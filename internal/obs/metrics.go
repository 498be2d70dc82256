package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets, // [0.005..10]
		},
		[]string{"method", "path", "status"},
	)
)

// Gateway metrics.
var (
	authzDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ostiary_authz_decisions_total",
			Help: "Authorization verdicts on proxied storage requests.",
		},
		[]string{"decision"},
	)

	tokenValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ostiary_token_validations_total",
			Help: "Token validation outcomes.",
		},
		[]string{"result"},
	)

	cacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ostiary_cache_events_total",
			Help: "Validation cache lookups by keyspace and outcome.",
		},
		[]string{"cache", "outcome"},
	)

	storeOpSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ostiary_store_op_seconds",
			Help:    "Backing store operation latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		authzDecisions,
		tokenValidations,
		cacheEvents,
		storeOpSeconds,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// AuthzDecision counts one allow or deny verdict on the proxy path.
func AuthzDecision(allowed bool) {
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	authzDecisions.WithLabelValues(decision).Inc()
}

// TokenValidation counts one validation outcome: ok, invalid, expired or error.
func TokenValidation(result string) {
	tokenValidations.WithLabelValues(result).Inc()
}

// CacheEvent counts one lookup outcome for the named cache keyspace.
func CacheEvent(cache, outcome string) {
	cacheEvents.WithLabelValues(cache, outcome).Inc()
}

// ObserveStoreOp records the latency of one backing store call.
func ObserveStoreOp(op string, seconds float64) {
	storeOpSeconds.WithLabelValues(op).Observe(seconds)
}

// Instrument wraps a handler to record RPS, latency and in-flight counts.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses request paths onto route templates so metric
// labels stay bounded regardless of account, container or token names.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "/"
	}
	segs := strings.Split(strings.TrimPrefix(p, "/"), "/")
	switch segs[0] {
	case "v1":
		switch len(segs) {
		case 1:
			return "/v1"
		case 2:
			return "/v1/:account"
		case 3:
			return "/v1/:account/:container"
		default:
			return "/v1/:account/:container/:object"
		}
	case "auth":
		if len(segs) < 2 {
			return p
		}
		switch segs[1] {
		case "v1":
			if len(segs) == 4 && segs[3] == "auth" {
				return "/auth/v1/:account/auth"
			}
		case "v2":
			switch {
			case len(segs) == 2:
				return "/auth/v2"
			case segs[2] == ".prep":
				return "/auth/v2/.prep"
			case segs[2] == ".token":
				return "/auth/v2/.token/:token"
			case len(segs) == 3:
				return "/auth/v2/:account"
			case segs[3] == ".services":
				return "/auth/v2/:account/.services"
			case segs[3] == ".groups":
				return "/auth/v2/:account/.groups"
			case len(segs) == 4:
				return "/auth/v2/:account/:user"
			}
		}
	}
	return p
}

// statusWriter captures the response code for labeling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
