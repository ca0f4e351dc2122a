// Package trace assigns request ids and logs and measures every request.
package trace

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"aviary/internal/log"
	"aviary/internal/observability"
)

// ContextKey type for context keys
type ContextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey ContextKey = "request_id"
	// HeaderRequestID is read from the request and echoed on the response.
	HeaderRequestID = "X-Request-ID"
)

// Middleware handles request tracing and logging
type Middleware struct {
	extractIP func(*http.Request) string
	// route maps a request to its metric label, e.g. the mux path template.
	route   func(*http.Request) string
	logger  *log.StructuredLogger
	metrics *observability.Metrics
	clock   clockwork.Clock
}

// Options configures the trace middleware. Every field is optional.
type Options struct {
	ExtractIP func(*http.Request) string
	Route     func(*http.Request) string
	Logger    *log.Logger
	Metrics   *observability.Metrics
	Clock     clockwork.Clock
}

// NewMiddleware creates a new trace middleware
func NewMiddleware(opts Options) *Middleware {
	if opts.ExtractIP == nil {
		opts.ExtractIP = func(r *http.Request) string { return r.RemoteAddr }
	}
	if opts.Route == nil {
		opts.Route = func(r *http.Request) string { return r.URL.Path }
	}
	if opts.Logger == nil {
		opts.Logger = log.FromContext(context.Background())
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Middleware{
		extractIP: opts.ExtractIP,
		route:     opts.Route,
		logger:    log.NewStructuredLogger(opts.Logger),
		metrics:   opts.Metrics,
		clock:     opts.Clock,
	}
}

// Middleware returns HTTP middleware for request tracing. The context logger
// carries the request id for everything logged downstream.
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := m.clock.Now()
		clientIP := m.extractIP(r)

		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" || len(requestID) > 64 {
			requestID = GenerateRequestID()
		}
		w.Header().Set(HeaderRequestID, requestID)

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		ctx = log.NewContext(ctx, log.FromContext(ctx).With(log.FieldRequestID, requestID))
		r = r.WithContext(ctx)

		m.logger.LogHTTPStart(ctx, r, requestID, clientIP)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := m.clock.Since(start)
		m.metrics.ObserveHTTP(r.Method, m.route(r), rw.statusCode, duration)
		m.logger.LogHTTPEnd(ctx, r, rw.statusCode, duration.Milliseconds(), requestID, clientIP)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// GenerateRequestID creates a unique request ID for tracing
func GenerateRequestID() string {
	return "req_" + uuid.NewString()
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
