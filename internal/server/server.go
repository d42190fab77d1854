package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/datalens/datalens-ai/internal/analytics/anomaly"
	"github.com/datalens/datalens-ai/internal/analytics/cluster"
	"github.com/datalens/datalens-ai/internal/cache"
	"github.com/datalens/datalens-ai/internal/config"
	"github.com/datalens/datalens-ai/internal/db"
	"github.com/datalens/datalens-ai/internal/insights"
	"github.com/datalens/datalens-ai/internal/middleware"
)

// Server hosts the DataLens statistical engine behind a REST API plus a
// WebSocket progress channel for the dashboard.
type Server struct {
	config *config.Config
	logger *zap.Logger

	// Core components
	store    db.Store
	ai       *insights.Service
	scorer   *anomaly.Scorer
	cluster  *cluster.Engine
	hub      *progressHub
	datasets *cache.Cache // decoded rows, keyed by dataset ID
	aiLimit  *middleware.RateLimiter

	// HTTP server
	httpServer *http.Server

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// State
	mu      sync.RWMutex
	running bool
}

// NewServer wires the engine components behind the HTTP surface. store and ai
// must be non-nil; the caller owns the store's lifetime.
func NewServer(cfg *config.Config, store db.Store, ai *insights.Service, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if ai == nil {
		return nil, fmt.Errorf("insights service cannot be nil (build one with a nil chatter for template-only mode)")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	srv := &Server{
		config: cfg,
		logger: logger,
		store:  store,
		ai:     ai,
		scorer: anomaly.NewScorer(anomaly.Config{
			MaxResults:         cfg.Engine.MaxAnomalyResults,
			CandidateThreshold: cfg.Engine.CandidateThreshold,
		}, ai),
		cluster:  cluster.NewEngine(cfg.Engine.MaxFeatures),
		hub:      newProgressHub(logger),
		datasets: cache.New(5*time.Minute, 32),
		aiLimit:  middleware.NewRateLimiter(30),
		ctx:      ctx,
		cancel:   cancel,
	}

	return srv, nil
}

// Start starts the HTTP listener.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("http server listening", zap.Int("port", s.config.Server.Port))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is not running")
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("stopping server")

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http shutdown error", zap.Error(err))
		}
	}

	s.aiLimit.Stop()
	s.cancel()
	s.wg.Wait()

	s.logger.Info("server stopped")
	return nil
}

// Wait blocks until the server is stopped.
func (s *Server) Wait() {
	<-s.ctx.Done()
}

// IsRunning reports whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Handler returns the full route table wrapped in the CORS layer.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHandlers(mux)
	return s.withCORS(mux)
}

// registerHandlers registers all HTTP routes.
func (s *Server) registerHandlers(mux *http.ServeMux) {
	// Health and observability
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Datasets
	mux.HandleFunc("POST /api/datasets", s.handleDatasetUpload)
	mux.HandleFunc("GET /api/datasets", s.handleDatasetList)
	mux.HandleFunc("GET /api/datasets/{id}", s.handleDatasetGet)
	mux.HandleFunc("DELETE /api/datasets/{id}", s.handleDatasetDelete)
	mux.HandleFunc("GET /api/datasets/{id}/runs", s.handleRunList)
	mux.HandleFunc("GET /api/runs/{id}", s.handleRunGet)

	// Exploration
	mux.HandleFunc("POST /api/analyze/{id}/eda", s.handleEDA)
	mux.HandleFunc("POST /api/analyze/{id}/correlations", s.handleCorrelations)
	mux.HandleFunc("POST /api/analyze/{id}/outliers", s.handleOutliers)
	mux.HandleFunc("POST /api/analyze/{id}/distribution", s.handleDistribution)

	// Statistical engine
	mux.HandleFunc("POST /api/ml/{id}/anomalies", s.handleAnomalies)
	mux.HandleFunc("POST /api/ml/{id}/clusters", s.handleClusters)
	mux.HandleFunc("POST /api/forecast/{id}", s.handleForecast)

	// AI enrichment sits behind a rate limit: each request may become a
	// paid LLM call.
	mux.HandleFunc("POST /api/ai/{id}/insights", s.aiLimit.Middleware(s.handleInsights))
	mux.HandleFunc("POST /api/ai/{id}/query", s.aiLimit.Middleware(s.handleQuery))

	// WebSocket progress stream
	mux.HandleFunc("GET /ws/progress", s.handleProgressWS)
}

// withCORS answers preflight requests and stamps the allowed origin on every
// response so the dashboard can call from its own port.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(origin, s.config.Server.AllowedOrigins) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleReady reports readiness: the server is up and the store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()

	if !running || s.store.Ping(r.Context()) != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ready",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
