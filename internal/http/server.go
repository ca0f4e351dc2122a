// Package http exposes the aviary records, derived views and reports as a
// JSON API.
package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aviary/internal/log"
	"aviary/internal/middleware/ratelimit"
	"aviary/internal/middleware/security"
	"aviary/internal/middleware/trace"
	"aviary/internal/observability"
	"aviary/internal/services"
)

// Options configures the API server. Services is required.
type Options struct {
	Addr     string
	Services *services.Services
	// Ready reports whether dependencies (the store) are usable.
	Ready              func(ctx context.Context) error
	Metrics            *observability.Metrics
	Gatherer           prometheus.Gatherer
	Logger             *log.Logger
	CORSAllowedOrigins []string
	RateLimitPerMinute int
}

type Server struct {
	http.Server
	svc     *services.Services
	ready   func(ctx context.Context) error
	limiter *ratelimit.Limiter
	logger  *log.Logger

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)
	if len(opts.CORSAllowedOrigins) == 0 {
		opts.CORSAllowedOrigins = []string{"*"}
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		svc:    opts.Services,
		ready:  opts.Ready,
		logger: logger,
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
			Methods:           []string{http.MethodPost, http.MethodPut, http.MethodDelete},
		}),
	}

	detector := security.NewDetector()
	tracer := trace.NewMiddleware(trace.Options{
		ExtractIP: detector.ExtractClientIP,
		Route:     routeTemplate,
		Logger:    logger,
		Metrics:   opts.Metrics,
	})

	router := mux.NewRouter()
	router.StrictSlash(true)
	router.Use(tracer.Middleware)
	router.Use(s.limiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request, retry int) {
		logger.WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, detector.ExtractClientIP(r), log.FieldMethod, r.Method, log.FieldPath, r.URL.Path)
		TooManyRequestsError(retry).Write(w)
	}))
	notFound := tracer.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("not found").Write(w)
	}))
	methodNotAllowed := tracer.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		MethodNotAllowedError(strings.Join(allowedMethods(router, r), ", ")).Write(w)
	}))
	router.NotFoundHandler = notFound
	router.MethodNotAllowedHandler = methodNotAllowed

	router.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	// Subrouters do not inherit the fallback handlers.
	api := router.PathPrefix("/api").Subrouter()
	api.NotFoundHandler = notFound
	api.MethodNotAllowedHandler = methodNotAllowed
	s.registerRecordRoutes(api)
	s.registerMonitoringRoutes(api)
	s.registerViewRoutes(api)

	var h http.Handler = router
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = detector.Middleware(logger)(h)
	h = log.Middleware(logger)(h)
	h = handlers.CORS(
		handlers.AllowedOrigins(opts.CORSAllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", trace.HeaderRequestID}),
		handlers.ExposedHeaders([]string{trace.HeaderRequestID}),
	)(h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger}),
		handlers.PrintRecoveryStack(true),
	)(h)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and the limiter cleanup loop.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// allowedMethods lists the methods router serves for r's path.
func allowedMethods(router *mux.Router, r *http.Request) []string {
	var allowed []string
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete} {
		req := r.Clone(r.Context())
		req.Method = method
		var match mux.RouteMatch
		if router.Match(req, &match) && match.MatchErr == nil {
			allowed = append(allowed, method)
		}
	}
	return allowed
}

// routeTemplate labels metrics with the matched path template so ids do not
// explode label cardinality.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// recoveryLogger adapts log.Logger to handlers.RecoveryHandlerLogger.
type recoveryLogger struct{ logger *log.Logger }

func (l recoveryLogger) Println(args ...any) {
	l.logger.Error("Recovered from panic", "panic", fmt.Sprint(args...))
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.WarnContext(ctx, "Readiness check failed", log.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, "not ready").Write(w)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
