package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/antoniostano/scenegen/internal/auth"
	"github.com/antoniostano/scenegen/internal/cache"
	"github.com/antoniostano/scenegen/internal/config"
	"github.com/antoniostano/scenegen/internal/conversation"
	"github.com/antoniostano/scenegen/internal/generate"
	"github.com/antoniostano/scenegen/internal/httpapi"
	"github.com/antoniostano/scenegen/internal/memory"
	"github.com/antoniostano/scenegen/internal/observability"
	"github.com/antoniostano/scenegen/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	st, err := store.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("store init failed: %v", err)
	}
	defer st.Close()
	if cfg.DatabaseURL == "" {
		log.Printf("durable store: in-memory (DATABASE_URL not set)")
	} else {
		log.Printf("durable store: postgres")
	}

	kv, err := cache.NewKV(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatalf("cache init failed: %v", err)
	}
	defer kv.Close()
	if cfg.RedisAddr == "" {
		log.Printf("history cache: in-memory (REDIS_ADDR not set)")
	} else {
		log.Printf("history cache: redis at %s", cfg.RedisAddr)
	}

	gen, err := generate.NewGenerator(generate.GeneratorConfig{
		Mode:   cfg.GeneratorMode,
		URL:    cfg.GeneratorURL,
		APIKey: cfg.GeneratorAPIKey,
		Model:  cfg.GeneratorModel,
	})
	if err != nil {
		log.Fatalf("generator init failed: %v", err)
	}

	rend, err := generate.NewRenderer(cfg.RendererMode, cfg.RendererBinary, cfg.MediaDir)
	if err != nil {
		log.Fatalf("renderer init failed: %v", err)
	}

	for _, dir := range []string{cfg.MediaDir, cfg.ScriptsDir, cfg.VideosDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("cannot create %s: %v", dir, err)
		}
	}

	coord := memory.NewCoordinator(st, cache.NewHistory(kv), metrics, logger)
	reconciler := memory.NewReconciler(coord, cfg.SyncInterval, metrics, logger)
	reconciler.Start()

	pipeline := generate.NewPipeline(gen, rend, generate.PipelineConfig{
		MaxAttempts: cfg.MaxAttempts,
		ScriptsDir:  cfg.ScriptsDir,
		VideosDir:   cfg.VideosDir,
		BackoffBase: cfg.RetryBackoff,
	}, metrics, logger)

	svc := conversation.NewService(st, coord, pipeline, logger)
	authSvc := auth.NewService(st, cfg.AuthSecret, cfg.TokenTTL)

	api := httpapi.New(cfg, svc, authSvc, reconciler, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	// Stop the timer loop before the final flush so the flush cannot
	// overlap an in-flight pass; TriggerNow serializes on the pass lock.
	reconciler.Stop()
	if err := reconciler.TriggerNow(shutdownCtx); err != nil {
		log.Printf("final sync failed: %v", err)
	}

	log.Printf("shutdown complete")
}
