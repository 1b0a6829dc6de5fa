package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrWong99/intervox/internal/config"
	"github.com/MrWong99/intervox/pkg/memory"
	"github.com/MrWong99/intervox/pkg/memory/postgres"
	"github.com/MrWong99/intervox/pkg/memory/redis"
)

// History is an opened conversation store.
type History struct {
	memory.HistoryStore

	// Ping probes the backing database. Nil for the in-memory store.
	Ping func(context.Context) error

	// Close releases connections. Never nil.
	Close func() error
}

// OpenHistory connects the conversation store selected by cfg and wraps it
// in a [memory.Guard] so that storage outages degrade to stateless replies.
func OpenHistory(ctx context.Context, cfg config.HistoryConfig) (*History, error) {
	switch cfg.Store {
	case config.HistoryPostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("app: open postgres history: %w", err)
		}
		return &History{
			HistoryStore: memory.NewGuard(store),
			Ping:         store.Ping,
			Close:        func() error { store.Close(); return nil },
		}, nil

	case config.HistoryRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		store := redis.NewStore(client, redis.WithTTL(cfg.TTL))
		if err := store.Ping(ctx); err != nil {
			client.Close()
			return nil, fmt.Errorf("app: open redis history: %w", err)
		}
		return &History{
			HistoryStore: memory.NewGuard(store),
			Ping:         store.Ping,
			Close:        client.Close,
		}, nil

	case config.HistoryMemory, "":
		return &History{
			HistoryStore: memory.NewMemStore(),
			Close:        func() error { return nil },
		}, nil
	}
	return nil, fmt.Errorf("app: unknown history store %q", cfg.Store)
}
