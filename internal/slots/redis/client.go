package redis

import (
	"context"
	"fmt"
	"time"

	"ms-reviews/internal/config"
	"ms-reviews/internal/logger"

	"github.com/go-redis/redis/v8"
)

// Connect creates the Redis client used for claim locks and sync markers and
// checks that the server answers.
func Connect(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: 10,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		log.Error("REDIS", fmt.Sprintf("failed to connect to %s: %v", cfg.Addr, err))
		return nil, err
	}

	log.Info("REDIS", fmt.Sprintf("connected to %s for claim locks and sync markers", cfg.Addr))
	return client, nil
}
