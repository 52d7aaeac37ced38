package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/literature-crawler/internal/config"
	"github.com/JakeFAU/literature-crawler/internal/crawler"
	"github.com/JakeFAU/literature-crawler/internal/crawlstats"
	"github.com/JakeFAU/literature-crawler/internal/metrics"
	"github.com/JakeFAU/literature-crawler/internal/store"
)

const (
	apiPrefix             = "/api/crawler/v2"
	defaultRequestTimeout = 120 * time.Second
)

// Crawler runs synchronous crawls and reports source status.
type Crawler interface {
	Crawl(ctx context.Context, req crawler.CrawlRequest) crawler.CrawlResult
	GetStatus(ctx context.Context) crawler.Status
}

// TaskSubmitter accepts asynchronous crawl tasks.
type TaskSubmitter interface {
	Submit(ctx context.Context, req crawler.CrawlRequest) (crawler.Task, error)
}

// Stats is the read side of the crawl statistics aggregator.
type Stats interface {
	Overall() crawlstats.Overall
	Sources() map[string]crawlstats.SourceSummary
	Recent(limit int) []crawlstats.CrawlRecord
	Trends(hours int) []crawlstats.TrendPoint
	Health() crawlstats.Health
	Reset()
}

// Dependencies are the collaborators behind the handlers. Runs may be nil, in
// which case the run history routes are not mounted.
type Dependencies struct {
	Crawler   Crawler
	Tasks     crawler.TaskStore
	Submitter TaskSubmitter
	Stats     Stats
	Runs      store.RunRepository
	Logger    *zap.Logger
}

// Server wires HTTP handlers to the orchestrator, task dispatcher and stores.
type Server struct {
	router    chi.Router
	crawler   Crawler
	tasks     crawler.TaskStore
	submitter TaskSubmitter
	stats     Stats
	cfg       config.Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Dependencies, cfg config.Config) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		crawler:   deps.Crawler,
		tasks:     deps.Tasks,
		submitter: deps.Submitter,
		stats:     deps.Stats,
		cfg:       cfg,
		logger:    logger,
	}
	timeout := time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route(apiPrefix, func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Get("/crawl", s.crawlQuery)
		r.Post("/crawl", s.crawlJSON)
		r.Get("/status", s.status)

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.submitTask)
			r.Get("/", s.listTasks)
			r.Get("/{task_id}", s.getTask)
		})

		r.Get("/metrics", s.crawlMetrics)
		r.Get("/metrics/trends", s.crawlTrends)
		r.Post("/metrics/reset", s.resetMetrics)
		r.Get("/health", s.health)

		if deps.Runs != nil {
			runs := NewRunHandler(deps.Runs, logger.Named("runs"))
			r.Get("/runs", runs.ListRuns)
			r.Get("/runs/{run_id}", runs.GetRun)
			r.Get("/runs/{run_id}/sources", runs.ListRunSources)
		}
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.crawler == nil || s.submitter == nil {
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the request ID stored by the middleware, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("request_id", RequestID(r.Context())),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("path", r.URL.Path),
					)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
