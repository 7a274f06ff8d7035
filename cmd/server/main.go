// Command server runs the re-folio web application.
//
// Configuration comes from the environment, optionally layered over a YAML
// file named by REFOLIO_CONFIG. See internal/config for every key.
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/refolio/refolio/internal/config"
	"github.com/refolio/refolio/internal/realtime"
	"github.com/refolio/refolio/internal/server"
	"github.com/refolio/refolio/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", filepath.Dir(cfg.DBPath)),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := newStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to set up media storage", slog.String("error", err.Error()))
		os.Exit(1)
	}

	bus, err := newBus(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect change bus", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv, err := server.New(cfg, store, bus, logger)
	if err != nil {
		_ = bus.Close()
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT or SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// newStore picks S3 when a bucket is configured and local disk otherwise.
func newStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	s3cfg := cfg.Storage.S3
	if s3cfg.Bucket == "" {
		return storage.NewDiskStore(cfg.Storage.MediaDir, cfg.BaseURL+"/media")
	}
	return storage.NewS3Store(ctx, storage.S3Config{
		Bucket:    s3cfg.Bucket,
		Region:    s3cfg.Region,
		Endpoint:  s3cfg.Endpoint,
		AccessKey: s3cfg.AccessKey,
		SecretKey: s3cfg.SecretKey,
		PublicURL: s3cfg.PublicURL,
	})
}

// newBus picks Redis when an address is configured so several instances
// share change notifications.
func newBus(ctx context.Context, cfg config.Config, logger *slog.Logger) (realtime.Bus, error) {
	if cfg.Redis.Addr == "" {
		return realtime.NewMemoryBus(logger), nil
	}
	return realtime.NewRedisBus(ctx, realtime.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
}
