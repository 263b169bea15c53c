// Package httpapi serves the GitHub webhook and the public read-only REST
// API over chi.
package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/custodia-labs/knowledge-server/internal/core/ports/driven"
	"github.com/custodia-labs/knowledge-server/internal/core/ports/driving"
	"github.com/custodia-labs/knowledge-server/internal/logger"
)

// MaxWebhookBody bounds the size of a push payload.
const MaxWebhookBody = 25 << 20

// Config configures the webhook endpoint.
type Config struct {
	// Branch is the only branch whose pushes trigger a sync.
	Branch string
	// WebhookSecret signs push payloads. Empty rejects every delivery.
	WebhookSecret string
	// SyncTimeout bounds a background sync run. Zero means no limit.
	SyncTimeout time.Duration
}

// Server routes HTTP requests to the core services.
type Server struct {
	search     driving.SearchService
	documents  driving.DocumentService
	syncer     driving.SyncService
	deliveries driven.DeliveryLog
	cfg        Config

	router chi.Router

	// runs tracks background sync runs started by webhooks.
	runs   sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Server. syncer and deliveries may be nil, in which case
// the webhook route is not mounted.
func New(
	search driving.SearchService,
	documents driving.DocumentService,
	syncer driving.SyncService,
	deliveries driven.DeliveryLog,
	cfg Config,
) *Server {
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		search:     search,
		documents:  documents,
		syncer:     syncer,
		deliveries: deliveries,
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", s.health)

	if s.syncer != nil && s.deliveries != nil {
		r.Post("/webhooks/github", s.handleWebhook)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(publicCORS)
		r.Use(cacheHeaders)
		r.Get("/search", s.handleSearch)
		r.Get("/entries", s.handleListEntries)
		r.Get("/entries/{contentType}/{id}", s.handleGetEntry)
	})

	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Wait blocks until every background sync run has finished.
func (s *Server) Wait() {
	s.runs.Wait()
}

// Shutdown waits for background sync runs, cancelling them if ctx ends
// first.
func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Debug("%s %s %d %s [%s]", r.Method, r.URL.Path, ww.Status(), time.Since(start),
			middleware.GetReqID(r.Context()))
	})
}

// publicCORS allows any origin to read the API.
func publicCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Accept")
		h.Set("Access-Control-Max-Age", "86400")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func cacheHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Header().Set("Cache-Control", "public, max-age=300, stale-while-revalidate=3600")
		}
		next.ServeHTTP(w, r)
	})
}
