package request

import (
	"log/slog"
	"net/http"
	"regexp"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"enrollgate/pkg/requestcontext"
)

// MaxHeaderIDLength bounds X-Request-ID and X-Operator-ID to keep logs clean.
const MaxHeaderIDLength = 128

// validHeaderID matches alphanumeric characters, dashes, underscores, and periods.
var validHeaderID = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// Recovery recovers from panics and returns a 500 error, preventing server crashes.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					ctx := r.Context()
					logger.ErrorContext(ctx, "panic recovered",
						"error", err,
						"stack", string(debug.Stack()),
						"path", r.URL.Path,
						"method", r.Method,
						"request_id", requestcontext.RequestID(ctx),
					)
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID adds a request ID to the context and response headers. A valid client-supplied
// X-Request-ID is reused; anything else is replaced with a fresh UUID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if !isValidHeaderID(requestID) {
			requestID = uuid.New().String()
		}

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestTime pins one "now" for the whole request so every timestamp written while serving
// it agrees.
func RequestTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Operator copies X-Operator-ID into the context for audit trails (alarm resets, removals).
// It is attribution only; access control happens in front of this service.
func Operator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		operator := r.Header.Get("X-Operator-ID")
		if isValidHeaderID(operator) {
			r = r.WithContext(requestcontext.WithActor(r.Context(), operator))
		}
		next.ServeHTTP(w, r)
	})
}

func isValidHeaderID(id string) bool {
	if id == "" || len(id) > MaxHeaderIDLength {
		return false
	}
	return validHeaderID.MatchString(id)
}

// BodyLimit limits the size of request bodies via http.MaxBytesReader.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// Logger logs HTTP requests with method, path, status code, duration, and request ID.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			ctx := r.Context()
			if r.URL.Path == "/health" && wrapped.statusCode < http.StatusInternalServerError {
				return
			}

			logger.InfoContext(ctx, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", requestcontext.RequestID(ctx),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Metrics holds HTTP latency collectors.
type Metrics struct {
	EndpointLatency *prometheus.HistogramVec
}

// NewMetrics registers HTTP collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		EndpointLatency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "enrollgate_http_request_duration_seconds",
			Help:    "Latency of HTTP endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
}

// Latency records request duration labelled by chi route pattern, which keeps national IDs
// out of metric labels.
func Latency(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			if m == nil {
				return
			}
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			m.EndpointLatency.WithLabelValues(route, r.Method, http.StatusText(wrapped.statusCode)).
				Observe(time.Since(start).Seconds())
		})
	}
}
