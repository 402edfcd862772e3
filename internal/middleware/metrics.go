package middleware

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"spacewh/mis/internal/auth"
	"spacewh/mis/internal/logging"
	"spacewh/mis/internal/metrics"
)

// MetricsMiddleware records HTTP metrics and writes one log line per request
func MetricsMiddleware(metricsReg *metrics.MetricsRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			// The pattern is only complete once routing has finished.
			routePattern := "unknown"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				routePattern = rctx.RoutePattern()
			}

			duration := time.Since(start).Seconds()
			statusCode := strconv.Itoa(wrapped.statusCode)

			metricsReg.HTTPRequestsTotal.WithLabelValues(routePattern, r.Method, statusCode).Inc()
			metricsReg.HTTPRequestDuration.WithLabelValues(routePattern, r.Method).Observe(duration)

			logging.Info("HTTP request completed",
				"request_id", auth.GetRequestID(r.Context()),
				"method", r.Method,
				"endpoint", routePattern,
				"status_code", wrapped.statusCode,
				"duration_ms", int(duration*1000),
				"admin_user", auth.GetAdminUser(r.Context()),
			)
		})
	}
}

// InFlightMiddleware tracks requests currently being served, per route group
func InFlightMiddleware(metricsReg *metrics.MetricsRegistry, group string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			metricsReg.HTTPRequestsInFlight.WithLabelValues(group).Inc()
			defer metricsReg.HTTPRequestsInFlight.WithLabelValues(group).Dec()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestIDMiddleware adds a request ID to the context if not present
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}

		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(auth.SetRequestID(r.Context(), requestID)))
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.written {
		r.statusCode = code
		r.written = true
		r.ResponseWriter.WriteHeader(code)
	}
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.statusCode = http.StatusOK
		r.written = true
	}
	return r.ResponseWriter.Write(b)
}

// Hijack lets the websocket upgrade take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, rw, err := http.NewResponseController(r.ResponseWriter).Hijack()
	if err == nil && !r.written {
		r.statusCode = http.StatusSwitchingProtocols
		r.written = true
	}
	return conn, rw, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
