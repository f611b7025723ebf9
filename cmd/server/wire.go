//go:build wireinject
// +build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"github.com/rs/zerolog"

	"collab-server/services/groupchat-api/internal/config"
	"collab-server/services/groupchat-api/internal/infrastructure/cache"
)

// ProviderSet is the wire provider set for the application.
var ProviderSet = wire.NewSet(
	// Infrastructure providers
	ProvideStores,
	ProvideRedis,

	// Application
	BuildApplication,
)

// ProvideStores provides the store selected by STORE_DRIVER.
func ProvideStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Stores, error) {
	return OpenStores(ctx, cfg, log)
}

// ProvideRedis provides the optional Redis connection.
func ProvideRedis(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*cache.Redis, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	return cache.NewRedis(ctx, cfg.RedisURL, log)
}

// CreateApplication creates the application with all dependencies wired.
func CreateApplication(
	ctx context.Context,
	cfg *config.Config,
	log zerolog.Logger,
) (*Application, error) {
	wire.Build(ProviderSet)
	return nil, nil
}
