package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blockgrower/blockgrower/internal/cache"
	"github.com/blockgrower/blockgrower/internal/config"
	"github.com/blockgrower/blockgrower/internal/gateway"
	"github.com/blockgrower/blockgrower/internal/telemetry"
)

// app bundles the objects every subcommand needs, assembled once from
// the loaded config.
type app struct {
	cfg      *config.Config
	store    *cache.Store
	gw       *gateway.Gateway
	shutdown telemetry.Shutdown
}

func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.ApplyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	shutdown, err := telemetry.Init(traceFlag)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	store, err := cache.Open(cfg.CacheDBPath())
	if err != nil {
		shutdown(ctx)
		return nil, fmt.Errorf("open cache: %w", err)
	}

	gw := gateway.New(gateway.Options{
		SessionPath: cfg.SessionFilePath(),
		Identifier:  cfg.User,
		Password:    cfg.Password,
		RateLimit:   cfg.RateLimit,
	})
	if err := gw.Login(ctx); err != nil {
		store.Close()
		shutdown(ctx)
		return nil, fmt.Errorf("login: %w", err)
	}

	return &app{cfg: cfg, store: store, gw: gw, shutdown: shutdown}, nil
}

func (a *app) Close(ctx context.Context) {
	if err := a.store.Close(); err != nil {
		slog.Error("close cache", "error", err)
	}
	if err := a.shutdown(ctx); err != nil {
		slog.Error("shutdown telemetry", "error", err)
	}
}
