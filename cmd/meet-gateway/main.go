package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/linguameet/meet-lite/internal/dotenv"
	"github.com/linguameet/meet-lite/pkg/gateway/ai"
	"github.com/linguameet/meet-lite/pkg/gateway/config"
	"github.com/linguameet/meet-lite/pkg/gateway/meeting"
	"github.com/linguameet/meet-lite/pkg/gateway/server"
	"github.com/linguameet/meet-lite/pkg/gateway/store"
)

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	gemini, err := ai.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return fmt.Errorf("gemini: %w", err)
	}

	var directory meeting.Directory
	if cfg.DatabaseURL != "" {
		st, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
		directory = meeting.NewStoreDirectory(st)
		logger.Info("persistence enabled")
	} else {
		directory = meeting.NewMemoryDirectory()
		logger.Warn("no database configured, meetings are in-memory only")
	}

	hub := meeting.NewHub(logger)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		layer := meeting.NewRedisLayer(ctx, hub, client, logger)
		defer layer.Close()
		hub.SetLayer(layer)
		logger.Info("redis channel layer enabled")
	} else {
		hub.SetLayer(meeting.NewLocalLayer(hub))
	}

	srv := server.New(cfg, logger, hub, directory, gemini.Services())
	logger.Info("gateway listening", "addr", cfg.Addr)
	return srv.Run(ctx)
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "meet-gateway: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		fmt.Fprintf(os.Stderr, "meet-gateway: %v\n", err)
		os.Exit(1)
	}
	logger.Info("gateway stopped")
}
