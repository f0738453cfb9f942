package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"graphfeed/backend/internal/api"
	"graphfeed/backend/internal/content"
	"graphfeed/backend/internal/graph"
	"graphfeed/backend/internal/store"
	"graphfeed/backend/internal/store/memstore"
	"graphfeed/backend/internal/thread"
	"graphfeed/backend/internal/timeline"
	"graphfeed/backend/internal/toggle"
	"graphfeed/backend/pkg/config"
	"graphfeed/backend/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting HTTP API server...", zap.String("store", cfg.StoreBackend))

	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to open store", zap.Error(err))
	}
	defer st.Close(context.Background())

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(newHandlers(cfg, st, log))

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// openStore connects the configured backend. Neo4j gets its schema ensured
// before the first request.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.StoreBackend == config.StoreMemory {
		return memstore.New(memstore.WithTimeout(cfg.StoreOpTimeout)), nil
	}

	driver, err := graph.Connect(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		return nil, err
	}
	repo := graph.NewRepository(driver,
		graph.WithDatabase(cfg.Neo4jDatabase),
		graph.WithOpTimeout(cfg.StoreOpTimeout),
	)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = repo.Close(ctx)
		return nil, err
	}
	return repo, nil
}

func newHandlers(cfg *config.Config, st store.Store, log *zap.Logger) *api.Handlers {
	policy := store.RetryPolicy{
		MaxAttempts: cfg.ToggleMaxAttempts,
		BaseBackoff: cfg.RetryBaseBackoff,
		MaxBackoff:  store.DefaultRetryPolicy.MaxBackoff,
	}
	return &api.Handlers{
		Toggler: toggle.NewToggler(st, toggle.WithRetryPolicy(policy)),
		Threads: thread.NewService(st, thread.WithRetryPolicy(policy)),
		Timeline: timeline.NewRanker(st,
			timeline.WithLimits(cfg.TimelineDefaultLimit, cfg.TimelineMaxLimit),
			timeline.WithRetryPolicy(policy),
		),
		Content: content.NewService(st, content.WithRetryPolicy(policy)),
		Logger:  log,
	}
}
