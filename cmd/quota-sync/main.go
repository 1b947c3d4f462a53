// Command quota-sync synchronizes every approved campaign once and exits. It is
// meant to run from a scheduler shortly after midnight in the service time zone.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"ms-reviews/internal/app"
	"ms-reviews/internal/config"
	"ms-reviews/internal/events"
	"ms-reviews/internal/kafka"
	"ms-reviews/internal/logger"
	"ms-reviews/internal/quota"
	"ms-reviews/internal/utils"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logger.NewLogger("quota-sync", cfg.App.LogDir, logger.ParseLevel(cfg.App.LogLevel))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	loc, err := utils.LoadLocation(cfg.App.TimeZone)
	if err != nil {
		log.Fatal("CONFIG", err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	store, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer store.Close()

	redisClient, locks := app.OpenRedis(ctx, cfg, log)
	if redisClient != nil {
		defer redisClient.Close()
	}
	var marker quota.Marker
	if locks != nil {
		marker = locks
	}

	var pub events.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics, log)
		defer producer.Close()
		pub = producer
	}

	svc := quota.NewService(store, marker, pub, log, loc)
	start := time.Now()
	results, err := svc.SyncAll(ctx, start)

	var opened, closed, repaired int
	for _, r := range results {
		opened += r.Opened
		closed += r.Closed
		repaired += r.Repaired
	}
	log.LogProcess("quota-sync", fmt.Sprintf("%d campaigns synchronized in %s: opened=%d closed=%d repaired=%d",
		len(results), time.Since(start).Round(time.Millisecond), opened, closed, repaired))
	if err != nil {
		log.Error("QUOTA", fmt.Sprintf("some campaigns failed: %v", err))
		log.Close()
		os.Exit(1)
	}
}
