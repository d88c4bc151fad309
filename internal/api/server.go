package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/graphkeep/internal/cache"
	"github.com/seantiz/graphkeep/internal/health"
	"github.com/seantiz/graphkeep/internal/model"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
)

// EntryLog records and lists greeted names.
type EntryLog interface {
	AddEntry(ctx context.Context, name string) (model.LogEntry, error)
	Entries(ctx context.Context) ([]model.LogEntry, error)
	EntriesFor(ctx context.Context, name string) ([]model.LogEntry, error)
}

// GreetingSource stores greeting messages and picks one at random.
type GreetingSource interface {
	Greeting(ctx context.Context) (string, error)
	AddGreeting(ctx context.Context, message string) error
}

// EntrySubscriber streams added log entries by topic.
type EntrySubscriber interface {
	Subscribe(topic string) (<-chan model.LogEntry, func())
}

// HealthChecker reports the health of the store.
type HealthChecker interface {
	Check(ctx context.Context) health.Response
}

// Deps are the services behind the HTTP handlers.
type Deps struct {
	Log       EntryLog
	Greetings GreetingSource
	Entries   EntrySubscriber
	Health    HealthChecker

	// EntryCache holds per-name entry lists. Optional.
	EntryCache *cache.Typed[string, []model.LogEntry]

	// Greeting is the salutation used by /greet. Defaults to
	// model.DefaultGreeting.
	Greeting string

	// Metrics receives the request metrics and is served on /metrics.
	// A private registry is used when nil.
	Metrics MetricsRegistry
}

// Server wraps the chi router and application dependencies.
type Server struct {
	router  *chi.Mux
	deps    Deps
	metrics *httpMetrics
	entries *entryCache
	logger  *slog.Logger
	addr    string
}

// NewServer creates and configures a new HTTP server.
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	if deps.Greeting == "" {
		deps.Greeting = model.DefaultGreeting
	}
	if deps.Metrics == nil {
		deps.Metrics = prometheus.NewRegistry()
	}
	srv := &Server{
		router:  chi.NewRouter(),
		deps:    deps,
		metrics: newHTTPMetrics(deps.Metrics),
		entries: newEntryCache(deps.EntryCache),
		logger:  logger,
		addr:    addr,
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(srv.metrics.middleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()

	return srv
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", metricsHandler(s.deps.Metrics))

	s.router.Route("/greet", func(r chi.Router) {
		r.Get("/", s.handleDefaultGreeting)
		r.Put("/greeting", s.handleAddGreeting)
		r.Get("/logs", s.handleListEntries)
		r.Get("/logs/stream", s.handleStreamEntries)
		r.Get("/logs/{name}", s.handleEntriesFor)
		r.Get("/random/{name}", s.handleRandomGreeting)
		r.Get("/{name}", s.handleGreet)
	})
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run serves HTTP until ctx is done, then shuts the server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down", "reason", context.Cause(ctx))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
