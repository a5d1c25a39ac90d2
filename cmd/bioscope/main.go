package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/bioscope-cloud/bioscope/internal/config"
	"github.com/bioscope-cloud/bioscope/internal/db"
	dbRedis "github.com/bioscope-cloud/bioscope/internal/db/redis"
	"github.com/bioscope-cloud/bioscope/internal/domain"
	logpkg "github.com/bioscope-cloud/bioscope/internal/logger"
	"github.com/bioscope-cloud/bioscope/internal/metrics"
	"github.com/bioscope-cloud/bioscope/internal/repository/embcache"
	chiTransport "github.com/bioscope-cloud/bioscope/internal/transport/chi"
	"github.com/bioscope-cloud/bioscope/internal/transport/graphrag"
	openaiEmb "github.com/bioscope-cloud/bioscope/internal/transport/openai"
	"github.com/bioscope-cloud/bioscope/internal/transport/qdrant"
	healthuc "github.com/bioscope-cloud/bioscope/internal/usecase/health"
	searchuc "github.com/bioscope-cloud/bioscope/internal/usecase/search"
	"github.com/bioscope-cloud/bioscope/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting bioscope search gateway",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Bool("qdrant", cfg.Qdrant.Configured()),
		zap.Bool("graphrag", cfg.GraphRAG.Configured()),
		zap.Bool("cache", cfg.Cache.Enabled()),
	)

	// Register pipeline metrics explicitly (no init())
	metrics.Register()

	ctx := context.Background()

	// Embedding cache store (optional)
	var store db.Store
	if cfg.Cache.Enabled() {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer store.Close()

		if err := store.WaitForReady(ctx, 30*time.Second); err != nil {
			logger.Fatal("Cache store not ready", zap.Error(err))
		}
		logger.Info("Connected to embedding cache")
	}

	// Embedder chain: OpenAI -> Cached
	var embedder domain.Embedder
	var baseEmbedder *openaiEmb.Embedder
	if cfg.Embedding.APIKey != "" {
		baseEmbedder = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Logger:     logger,
		})
		embedder = baseEmbedder
		if store != nil {
			ttl := time.Duration(cfg.Cache.TTLHours) * time.Hour
			embedder = embcache.New(baseEmbedder, store, ttl, metrics.EmbeddingCacheTotal, logger)
		}
		logger.Info("Embedder created",
			zap.String("model", cfg.Embedding.Model),
			zap.Int("dimensions", cfg.Embedding.Dimensions),
		)
	}

	// Vector store (optional)
	var vectors *qdrant.Client
	if cfg.Qdrant.Configured() {
		vectors = qdrant.NewClient(&qdrant.Config{
			URL:    cfg.Qdrant.URL,
			APIKey: cfg.Qdrant.APIKey,
			Logger: logger,
		})
	}

	// Orchestration backend (optional)
	var orch *graphrag.Client
	if cfg.GraphRAG.Configured() {
		orch = graphrag.NewClient(&graphrag.Config{
			URL:     cfg.GraphRAG.URL,
			Timeout: time.Duration(cfg.GraphRAG.TimeoutSec) * time.Second,
			Logger:  logger,
		})
	}

	// Search service
	searchSvc := newSearchService(cfg, vectors, orch, embedder, logger)

	// Health service
	var cachePinger healthuc.CachePinger
	if store != nil {
		cachePinger = store
	}
	var embChecker healthuc.EmbeddingChecker
	if baseEmbedder != nil {
		embChecker = baseEmbedder
	}
	var orchPinger healthuc.OrchestratorPinger
	if orch != nil {
		orchPinger = orch
	}
	healthSvc := healthuc.New(cachePinger, embChecker, orchPinger)

	// HTTP server
	var collections chiTransport.CollectionStore
	if vectors != nil {
		collections = vectors
	}
	var graph chiTransport.GraphStatsProvider
	if orch != nil {
		graph = orch
	}
	server := chiTransport.NewServer(searchSvc, healthSvc, collections, graph, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// newSearchService assembles the search pipeline from configured backends.
func newSearchService(
	cfg config.Config,
	vectors *qdrant.Client,
	orch *graphrag.Client,
	embedder domain.Embedder,
	logger *zap.Logger,
) *searchuc.Service {
	// Pass nil interfaces (not typed nil pointers!) for missing backends.
	// Go gotcha: (*qdrant.Client)(nil) wrapped in VectorStore != nil.
	var vectorStore searchuc.VectorStore
	if vectors != nil {
		vectorStore = vectors
	}
	var orchestrator searchuc.Orchestrator
	if orch != nil {
		orchestrator = orch
	}

	svc := searchuc.New(vectorStore, orchestrator, embedder, logger).
		WithCollection(cfg.Qdrant.Collection, cfg.Qdrant.VectorName).
		WithScrollPageSize(cfg.Qdrant.ScrollPageSize).
		WithTokenDelay(time.Duration(cfg.Stream.TokenDelayMS) * time.Millisecond)

	if cfg.Summary.Enabled && cfg.Embedding.APIKey != "" {
		svc = svc.WithSummarizer(openaiEmb.NewSummarizer(
			cfg.Embedding.APIKey, cfg.Embedding.BaseURL, cfg.Summary.Model,
		))
	}
	return svc
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
