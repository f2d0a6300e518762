package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskboard/internal/auth"
	"taskboard/internal/cache"
	"taskboard/internal/config"
	"taskboard/internal/database"
	"taskboard/internal/handlers"
	"taskboard/internal/models"
	"taskboard/internal/routes"
	"taskboard/internal/telemetry"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "", "path to a taskboard.yaml config file")
	production := flag.Bool("production", false, "refuse to start with the development JWT secret")
	flag.Parse()

	if err := run(*configPath, *production); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, production bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateServer(production); err != nil {
		return err
	}

	log := telemetry.NewLogger(cfg.Log.Level, os.Stderr)
	slog.SetDefault(log)
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelProvider, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			log.Warn("telemetry shutdown", "error", err)
		}
	}()
	metrics, err := telemetry.NewMetrics(otelProvider.Meter)
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.Server.DBPath, database.LogLevel(cfg.Log.Level))
	if err != nil {
		return err
	}
	log.Info("database ready", "path", cfg.Server.DBPath)

	drafts := cache.NewSimpleCache[string, []models.TaskGenerationItem](cache.Options{MaxEntries: cfg.Server.DraftCacheSize})
	tokens := auth.NewManager(cfg.Server.JWTSecret, cfg.Server.JWTIssuer, cfg.Server.JWTAudience, cfg.Server.TokenTTL)
	h := handlers.New(db, tokens,
		handlers.WithDrafts(drafts),
		handlers.WithDraftTTL(cfg.Server.DraftTTL),
		handlers.WithLogger(log),
	)
	go purgeDrafts(ctx, drafts, cfg.Server.DraftTTL)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           routes.SetupRoutes(h, routes.Options{Telemetry: otelProvider, Metrics: metrics}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down", "grace", cfg.Server.ShutdownGrace)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err == nil {
		_ = sqlDB.Close()
	}
	return nil
}

func purgeDrafts(ctx context.Context, c cache.Cache[string, []models.TaskGenerationItem], every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.PurgeExpired()
		}
	}
}
