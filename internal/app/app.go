// Package app holds the wiring shared by the service and the batch commands.
package app

import (
	"context"
	"fmt"
	"time"

	"ms-reviews/internal/config"
	"ms-reviews/internal/database/migrations"
	"ms-reviews/internal/logger"
	"ms-reviews/internal/slots/db"
	rediswrap "ms-reviews/internal/slots/redis"

	"github.com/go-redis/redis/v8"
)

const maxRetries = 5

// OpenStore connects to the configured database, retrying while it starts up, and
// brings the schema up to date when auto-migration is on.
func OpenStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (*db.DB, error) {
	var store *db.DB
	var err error
	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("connecting to %s (attempt %d/%d)", cfg.Database.Driver, i+1, maxRetries))
		store, err = db.Open(cfg.Database)
		if err == nil {
			if err = store.Ping(ctx); err == nil {
				break
			}
			store.Close()
		}
		log.Error("DATABASE", fmt.Sprintf("failed to connect: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to database after %d attempts: %w", maxRetries, err)
	}
	log.Info("DATABASE", "connection successful")

	if !cfg.Database.AutoMigrate {
		return store, nil
	}
	if err := Migrate(ctx, store, cfg, log); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// Migrate applies the SQL migrations on postgres and creates the schema directly
// on sqlite.
func Migrate(ctx context.Context, store *db.DB, cfg *config.Config, log *logger.Logger) error {
	if cfg.Database.Driver == "sqlite" {
		log.Info("MIGRATE", "creating sqlite schema")
		return store.CreateSchema(ctx)
	}
	runner := migrations.NewRunner(store.Bun.DB, cfg.Database.MigrationsDir, log)
	if err := runner.MigrateUp(); err != nil {
		return err
	}
	// Closing the runner would close the shared *sql.DB, so it is left open.
	return nil
}

// OpenRedis returns the adapters for claim locks and sync markers, or nil when
// Redis is disabled or unreachable; callers then fall back to in-process ones.
func OpenRedis(ctx context.Context, cfg *config.Config, log *logger.Logger) (*redis.Client, *rediswrap.Redis) {
	if !cfg.Redis.Enabled {
		log.Warn("REDIS", "disabled, using in-process claim locks and sync markers")
		return nil, nil
	}
	client, err := rediswrap.Connect(ctx, cfg.Redis, log)
	if err != nil {
		log.Warn("REDIS", "unavailable, using in-process claim locks and sync markers")
		return nil, nil
	}
	return client, rediswrap.NewRedis(client, cfg.Redis.ClaimLockTTL, cfg.Redis.SyncMarkerTTL, log)
}
