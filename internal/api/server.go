// Package api exposes the simulation driver's subscription registry and
// per-tariff storage engines over HTTP: subscription lifecycle endpoints
// plus a read-only view of each tariff's current feasible usage band.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/gridsim/ev-tariff-storage/internal/storage"
	"github.com/gridsim/ev-tariff-storage/internal/subscription"
)

// Config holds API server configuration.
type Config struct {
	Listen         string
	AllowedOrigins []string
}

// Server is the HTTP API surface over a subscription registry and the
// storage engines bound to each tariff.
type Server struct {
	config    Config
	registry  *subscription.Registry
	logger    *log.Logger
	server    *http.Server
	startedAt time.Time

	mu      sync.RWMutex
	engines map[string]*storage.State

	wsHandler http.Handler
	wsPath    string
}

// New creates a Server with no tariffs registered yet; call RegisterTariff
// for each one the driver configures before calling Start.
func New(config Config, registry *subscription.Registry, logger *log.Logger) *Server {
	return &Server{
		config:    config,
		registry:  registry,
		logger:    logger,
		startedAt: time.Now(),
		engines:   make(map[string]*storage.State),
	}
}

// RegisterTariff binds a tariff name to its storage engine, making it
// visible to GET /tariffs and GET /tariffs/{tariff}/minmax.
func (s *Server) RegisterTariff(name string, engine *storage.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engines[name] = engine
}

// RegisterWebSocket mounts a handler (typically a *ws.Handler) at the
// given path on the same listener as the REST routes, so the driver binds
// one address instead of two.
func (s *Server) RegisterWebSocket(path string, handler http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wsHandler = handler
	s.wsPath = path
}

func (s *Server) engine(name string) (*storage.State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.engines[name]
	return e, ok
}

func (s *Server) tariffNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.engines))
	for name := range s.engines {
		out = append(out, name)
	}
	return out
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Printf("api: listening on %s", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Printf("api: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api: shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("api: server error: %w", err)
	}
}

func (s *Server) setupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: s.allowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	})
	r.Use(corsMiddleware.Handler)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/tariffs", s.handleListTariffs)
	r.Get("/tariffs/{tariff}/minmax", s.handleGetMinMax)
	r.Post("/subscriptions", s.handleCreateSubscription)
	r.Get("/subscriptions/{id}", s.handleGetSubscription)
	r.Post("/subscriptions/{id}/move", s.handleMoveSubscription)

	if s.wsHandler != nil {
		r.Handle(s.wsPath, s.wsHandler)
	}

	return r
}

func (s *Server) allowedOrigins() []string {
	if len(s.config.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.config.AllowedOrigins
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Printf("api: %s %s status=%d duration=%s request_id=%s",
			r.Method, r.URL.Path, ww.Status(), time.Since(start), middleware.GetReqID(r.Context()))
	})
}
