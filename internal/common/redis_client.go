package common

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"spacewh/mis/internal/logging"
)

// NewRedisClient builds a client for the shared approval lock. A failed ping
// is logged but the client is still returned; the pool reconnects on use.
func NewRedisClient(addr, password string) *redis.Client {
	logging.Info("Initializing Redis client", "addr", addr)

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logging.Warn("Failed to ping Redis", "addr", addr, "error", err)
		return client
	}

	logging.Info("Connected to Redis", "addr", addr)
	return client
}
