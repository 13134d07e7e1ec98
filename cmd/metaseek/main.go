package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/datacove/metaseek/internal/config"
	"github.com/datacove/metaseek/internal/domain"
	logpkg "github.com/datacove/metaseek/internal/logger"
	"github.com/datacove/metaseek/internal/metrics"
	catalogrepo "github.com/datacove/metaseek/internal/repository/catalog"
	"github.com/datacove/metaseek/internal/repository/embcache"
	embeddingsrepo "github.com/datacove/metaseek/internal/repository/embeddings"
	graphstorerepo "github.com/datacove/metaseek/internal/repository/graphstore"
	interactionsrepo "github.com/datacove/metaseek/internal/repository/interactions"
	"github.com/datacove/metaseek/internal/repository/postgres"
	chiTransport "github.com/datacove/metaseek/internal/transport/chi"
	openaiProvider "github.com/datacove/metaseek/internal/transport/openai"
	"github.com/datacove/metaseek/internal/transport/qdrant"
	classifyuc "github.com/datacove/metaseek/internal/usecase/classify"
	embeddinguc "github.com/datacove/metaseek/internal/usecase/embedding"
	graphuc "github.com/datacove/metaseek/internal/usecase/graph"
	learninguc "github.com/datacove/metaseek/internal/usecase/learning"
	searchuc "github.com/datacove/metaseek/internal/usecase/search"
	vectorsearchuc "github.com/datacove/metaseek/internal/usecase/vectorsearch"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting metaseek API server",
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("vector_index", cfg.VectorIndex.BaseURL),
	)

	ctx := context.Background()

	pool, err := postgres.Connect(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
	if err != nil {
		logger.Fatal("Failed to connect to catalog store", zap.Error(err))
	}
	defer pool.Close()

	if err := postgres.EnsureSchema(ctx, pool, cfg.VectorIndex.VectorSize); err != nil {
		logger.Fatal("Failed to ensure schema", zap.Error(err))
	}
	logger.Info("Connected to catalog store")

	metrics.RegisterEngineMetrics()

	// Vector index client, one logical collection per embedding kind.
	index := qdrant.New(cfg.VectorIndex.BaseURL,
		time.Duration(cfg.VectorIndex.TimeoutSec)*time.Second, logger)
	for _, collection := range []string{
		cfg.VectorIndex.NaturalCollection,
		cfg.VectorIndex.StructuredCollection,
	} {
		if err := index.EnsureCollection(ctx, collection, cfg.VectorIndex.VectorSize); err != nil {
			logger.Fatal("Failed to ensure vector collection",
				zap.String("collection", collection), zap.Error(err))
		}
	}

	provider := openaiProvider.New(&openaiProvider.Config{
		APIKey:         cfg.Provider.APIKey,
		BaseURL:        cfg.Provider.BaseURL,
		EmbeddingModel: cfg.Provider.EmbeddingModel,
		ChatModel:      cfg.Provider.ChatModel,
		Dimensions:     cfg.Provider.Dimensions,
		Logger:         logger,
	})

	// Query embeddings go through a transient read-through cache when a
	// cache backend is configured.
	queryEmbedder := buildQueryEmbedder(cfg, provider, logger)

	// Repositories.
	catalogRepo := catalogrepo.New(pool)
	embeddingsRepo := embeddingsrepo.New(pool)
	graphStore := graphstorerepo.New(pool)
	interactionsRepo := interactionsrepo.New(pool)

	// Use cases.
	embeddingGen := embeddinguc.New(embeddingsRepo, catalogRepo, index, queryEmbedder,
		cfg.VectorIndex.NaturalCollection, cfg.VectorIndex.StructuredCollection,
		cfg.Embedding.StaleBatchLimit, logger)

	vectorSvc := vectorsearchuc.New(index, queryEmbedder,
		cfg.VectorIndex.NaturalCollection, cfg.VectorIndex.StructuredCollection, logger)

	graphEngine, err := graphuc.New(graphStore, logger)
	if err != nil {
		logger.Fatal("Failed to create graph engine", zap.Error(err))
	}
	if err := graphEngine.Rebuild(ctx); err != nil {
		logger.Fatal("Initial graph rebuild failed", zap.Error(err))
	}

	classifier := classifyuc.New(provider,
		cfg.Classifier.AIEnabled, cfg.Classifier.ConfidenceThreshold, logger)

	learner := learninguc.New(interactionsRepo,
		cfg.Learning.BatchThreshold, cfg.Learning.MinClickCount, logger)

	searchSvc := searchuc.New(classifier, vectorSvc, catalogRepo, graphEngine,
		interactionsRepo, nil, logger)

	server := chiTransport.NewServer(searchSvc, learner, graphEngine, embeddingGen,
		[]chiTransport.HealthChecker{poolHealthChecker{pool}, index, provider}, logger)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Register(r)
	r.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// wideEventMiddleware emits one canonical log line per request and makes a
// request-scoped logger available downstream via the request context.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi's RequestID middleware runs before us.
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.WithContext(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

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

// buildQueryEmbedder layers the optional hot cache over the provider.
func buildQueryEmbedder(cfg config.Config, provider domain.Embedder, logger *zap.Logger) domain.Embedder {
	if len(cfg.Redis.Addrs) == 0 {
		return provider
	}
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: cfg.Redis.Addrs,
		Password:    cfg.Redis.Password,
	})
	if err != nil {
		logger.Warn("Query embedding cache unavailable, continuing without it", zap.Error(err))
		return provider
	}
	logger.Info("Query embedding cache enabled", zap.Strings("addrs", cfg.Redis.Addrs))
	return embcache.New(provider, client, logger)
}

// poolHealthChecker adapts the connection pool to the health contract.
type poolHealthChecker struct {
	pool *pgxpool.Pool
}

func (p poolHealthChecker) HealthCheck(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("catalog store health check: %w", err)
	}
	return nil
}
