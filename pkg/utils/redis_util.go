package utils

import (
	"context"
	"fmt"

	"auction-storefront/internal/config"
	"auction-storefront/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// InitializeRedis connects a client described by cfg and verifies it with a ping.
func InitializeRedis(ctx context.Context, cfg config.RedisConfig, log logger.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info("Connected to Redis", "address", cfg.Address)
	return rdb, nil
}
