package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/your-org/cellar/internal/ai"
	"github.com/your-org/cellar/internal/api"
	"github.com/your-org/cellar/internal/api/handlers"
	"github.com/your-org/cellar/internal/api/ws"
	"github.com/your-org/cellar/internal/cellar"
	"github.com/your-org/cellar/internal/config"
	"github.com/your-org/cellar/internal/observability"
	"github.com/your-org/cellar/internal/queue"
	"github.com/your-org/cellar/internal/storage"
	"github.com/your-org/cellar/internal/web"
)

func main() {
	if os.Getenv("CELLAR_ENV") != "production" {
		_ = godotenv.Load()
	}

	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting cellar", "port", cfg.Server.Port, "database", cfg.Database.Driver)

	store, err := openStore(cfg.Database)
	if err != nil {
		slog.Error("open wine store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	images, err := openImages(cfg)
	if err != nil {
		slog.Error("open image store", "error", err)
		os.Exit(1)
	}

	if cfg.AI.APIKey == "" {
		slog.Warn("no recognition API key configured; analyze, drink and pair will report an error")
	}
	recognizer := ai.NewClient(cfg.AI)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()
	defer hub.Stop()

	// Changes go through NATS when configured so every API instance sees
	// them; otherwise straight to the local hub.
	var notifier cellar.Notifier = hub
	checks := map[string]handlers.Pinger{}
	if cfg.NATS.URL != "" {
		producer, err := queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		if err := producer.EnsureStream(ctx); err != nil {
			slog.Warn("ensure nats stream", "error", err)
		}

		consumer, err := queue.NewConsumer(cfg.NATS.URL)
		if err != nil {
			slog.Error("create event consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		if err := consumer.ConsumeWineEvents(ctx, consumerName(), hub.HandleEvent); err != nil {
			slog.Warn("start event consumer", "error", err)
		}

		notifier = producer
		checks["nats"] = producer
	}

	svc := cellar.NewService(store, images, recognizer, notifier)

	pages, err := web.NewPages(svc)
	if err != nil {
		slog.Error("load page templates", "error", err)
		os.Exit(1)
	}

	staticDir := ""
	if !cfg.MinIO.Enabled() {
		staticDir = cfg.Server.StaticDir
	}

	router := api.NewRouter(api.RouterConfig{
		Service:        svc,
		Pages:          pages,
		Hub:            hub,
		Checks:         checks,
		StaticDir:      staticDir,
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
		AllowOrigins:   cfg.Server.AllowOrigins,
		RatePerMinute:  cfg.RateLimit.PerMinute,
		RateBurst:      cfg.RateLimit.Burst,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
		// analysis requests wait on the recognition service
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.AI.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}

func openStore(cfg config.DatabaseConfig) (storage.WineStore, error) {
	if cfg.Driver == "postgres" {
		pg, err := storage.NewPostgresStore(cfg)
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	lite, err := storage.NewSQLiteStore(cfg.Path)
	if err != nil {
		return nil, err
	}
	return lite, nil
}

func openImages(cfg *config.Config) (storage.ImageStore, error) {
	if !cfg.MinIO.Enabled() {
		local, err := storage.NewLocalImages(cfg.Server.StaticDir)
		if err != nil {
			return nil, err
		}
		return local, nil
	}
	images, err := storage.NewMinIOImages(cfg.MinIO)
	if err != nil {
		return nil, err
	}
	if err := images.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}
	return images, nil
}

// consumerName is per host so each API instance gets every event.
func consumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "cellar-api"
	}
	return "cellar-api-" + strings.NewReplacer(".", "-", " ", "-").Replace(host)
}
