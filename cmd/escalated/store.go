package main

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/escalate/store"
	"github.com/xraph/escalate/store/memory"
	"github.com/xraph/escalate/store/postgres"
	redisstore "github.com/xraph/escalate/store/redis"
	sqlitestore "github.com/xraph/escalate/store/sqlite"
)

// openStore constructs the configured backend.
func openStore(ctx context.Context, cfg storeConfig, logger *slog.Logger) (store.Store, error) {
	switch cfg.Backend {
	case "memory":
		return memory.New(), nil

	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "file:escalate.db?_pragma=busy_timeout(5000)"
		}
		return sqlitestore.Open(dsn, sqlitestore.WithLogger(logger))

	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return redisstore.New(client, redisstore.WithLogger(logger)), nil

	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres backend requires store.dsn")
		}
		return postgres.New(ctx, cfg.DSN, postgres.WithLogger(logger))

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
