package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"redline/api/internal/app"
	"redline/api/internal/config"
	"redline/api/internal/projcache"
	"redline/api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	db, err := store.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		return err
	}

	var cache projcache.Cache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		logger.Info("caching projections in redis", "ttl", cfg.CacheTTL)
		redisCache, err := projcache.NewRedis(cfg.RedisURL, cfg.CacheTTL, logger)
		if err != nil {
			return err
		}
		defer redisCache.Close()
		cache = redisCache
	} else {
		logger.Info("caching projections in process", "size", cfg.CacheSize)
		memoryCache, err := projcache.NewMemory(cfg.CacheSize)
		if err != nil {
			return err
		}
		cache = memoryCache
	}

	service := app.New(cfg, store.NewPostgresStore(db), cache, logger)
	if cfg.SeedDemo {
		if err := service.Bootstrap(ctx); err != nil {
			logger.Warn("demo bootstrap failed, will retry on next restart", "error", err)
		}
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewHTTPServer(service, cfg.CORSOrigin, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("redline api listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("redline api stopped")
	return nil
}
