package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"

	"raffle-system/config"
	"raffle-system/internal/store"
	"raffle-system/internal/store/memory"
	"raffle-system/internal/store/pbstore"
	"raffle-system/internal/store/redisstore"
	"raffle-system/internal/store/sqlstore"
	"raffle-system/utils"
)

// backend is the selected store with its health probe and cleanup.
type backend struct {
	store  store.Store
	health func(ctx context.Context) error
	close  func()
}

func openBackend(app core.App, cfg *config.Config, redisClient *redis.Client) (*backend, error) {
	switch cfg.StoreBackend {
	case config.BackendPocketBase:
		return &backend{
			store: pbstore.New(app),
			health: func(ctx context.Context) error {
				var one int
				return app.DB().NewQuery("SELECT 1").WithContext(ctx).Row(&one)
			},
			close: func() {},
		}, nil

	case config.BackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("store backend %q needs a reachable REDIS_URL", cfg.StoreBackend)
		}
		return &backend{
			store:  redisstore.New(redisClient),
			health: func(context.Context) error { return utils.RedisHealthCheck(redisClient) },
			close:  func() {},
		}, nil

	case config.BackendSQL:
		conn, err := sqlstore.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		sqlDB, err := conn.DB()
		if err != nil {
			return nil, err
		}
		return &backend{
			store:  sqlstore.New(conn),
			health: sqlDB.PingContext,
			close: func() {
				if err := sqlDB.Close(); err != nil {
					slog.Warn("Failed to close database", "error", err)
				}
			},
		}, nil

	case config.BackendMemory:
		slog.Warn("Using the in-memory store, data is lost on restart")
		return &backend{
			store:  memory.New(),
			health: func(context.Context) error { return nil },
			close:  func() {},
		}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
