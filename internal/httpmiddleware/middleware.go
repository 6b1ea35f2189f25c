// Package httpmiddleware assembles opsdec's HTTP middleware stack: request
// ID propagation, CORS, tiered rate limiting, Prometheus instrumentation,
// security headers, and panic recovery.
package httpmiddleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"

	"github.com/mondominator/opsdec/internal/config"
	"github.com/mondominator/opsdec/internal/logging"
	"github.com/mondominator/opsdec/internal/metrics"
)

// RequestID generates a request ID (honoring an inbound X-Request-ID) and
// attaches it to the response header and the logging context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CORS builds a go-chi/cors middleware from the configured allowed origins.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// RateLimit returns an IP-keyed rate limiter for general API traffic.
func RateLimit(cfg config.SecurityConfig) func(http.Handler) http.Handler {
	requests := cfg.RateLimitRequests
	if requests <= 0 {
		requests = 100
	}
	window := cfg.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	return withRateLimitMetric("api", requests, window)
}

// RateLimitLogin returns a stricter IP-keyed rate limiter for the login
// endpoint, guarding against credential-stuffing and brute force attempts.
func RateLimitLogin(cfg config.SecurityConfig) func(http.Handler) http.Handler {
	requests := cfg.LoginRateLimitRequests
	if requests <= 0 {
		requests = 5
	}
	window := cfg.LoginRateLimitWindow
	if window <= 0 {
		window = 5 * time.Minute
	}
	return withRateLimitMetric("login", requests, window)
}

func withRateLimitMetric(route string, requests int, window time.Duration) func(http.Handler) http.Handler {
	limiter := httprate.Limit(requests, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.HTTPRateLimitHits.WithLabelValues(route).Inc()
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
		}),
	)
	return limiter
}

// SecurityHeaders sets the baseline hardening headers for a JSON API.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// Prometheus records per-request count, duration, and in-flight gauge,
// labeled by the chi route pattern rather than the raw path so cardinality
// stays bounded.
func Prometheus(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.HTTPActiveRequests.Inc()
		defer metrics.HTTPActiveRequests.Dec()

		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := routePattern(r)
		duration := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, statusLabel(status)).Inc()
	})
}

// routePattern prefers chi's matched route pattern ("/api/servers/{id}")
// over the raw URL path so per-route metrics don't explode in cardinality
// on path parameters.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}

// Recoverer wraps chi's panic recovery middleware so a handler panic
// produces a 500 response and a logged stack trace instead of crashing the
// whole server.
func Recoverer(next http.Handler) http.Handler {
	return chimiddleware.Recoverer(next)
}
