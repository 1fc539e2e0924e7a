package database

import (
	"context"
	"log/slog"

	"github.com/go-redis/redis/v8"
)

// NewRedis connects to Redis for event publishing. A failed ping is
// logged but not fatal: the ledger keeps working and event delivery is
// best-effort anyway.
func NewRedis(addr, password string, db int) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		slog.Warn("redis unreachable, ledger events will be dropped", "addr", addr, "error", err)
	}

	return rdb
}
