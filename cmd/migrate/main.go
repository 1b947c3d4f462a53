// Command migrate manages the review slot schema and can seed sample campaigns
// for local development.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"ms-reviews/internal/app"
	"ms-reviews/internal/config"
	"ms-reviews/internal/database/migrations"
	"ms-reviews/internal/logger"
	"ms-reviews/internal/models"
	"ms-reviews/internal/quota"
	"ms-reviews/internal/slots/db"
	"ms-reviews/internal/utils"

	"github.com/joho/godotenv"
)

func main() {
	action := flag.String("action", "up", "migration action: up, down or to")
	version := flag.Uint("version", 0, "target version for -action=to")
	seed := flag.Bool("seed", false, "insert and approve sample campaigns after migrating")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	// Migrations run explicitly below.
	cfg.Database.AutoMigrate = false

	log, err := logger.NewLogger("migrate", cfg.App.LogDir, logger.ParseLevel(cfg.App.LogLevel))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer store.Close()

	switch {
	case cfg.Database.Driver == "sqlite":
		if *action != "up" {
			log.Fatal("MIGRATE", fmt.Sprintf("action %q is not supported on sqlite", *action))
		}
		err = app.Migrate(ctx, store, cfg, log)
	default:
		runner := migrations.NewRunner(store.Bun.DB, cfg.Database.MigrationsDir, log)
		switch *action {
		case "up":
			err = runner.MigrateUp()
		case "down":
			err = runner.MigrateDown()
		case "to":
			err = runner.MigrateTo(*version)
		default:
			err = fmt.Errorf("unknown action %q", *action)
		}
	}
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}

	if *seed {
		loc, err := utils.LoadLocation(cfg.App.TimeZone)
		if err != nil {
			log.Fatal("CONFIG", err.Error())
		}
		if err := seedCampaigns(ctx, store, log, loc); err != nil {
			log.Fatal("SEED", err.Error())
		}
	}
	log.Info("MIGRATE", "done")
}

func seedCampaigns(ctx context.Context, store db.Store, log *logger.Logger, loc *time.Location) error {
	now := time.Now().In(loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	samples := []models.Campaign{
		{Title: "Coffee grinder blog review", Platform: "blog", TotalSlots: 20, DailyCount: 4},
		{Title: "Skin care reels", Platform: "instagram", TotalSlots: 10, DailyCount: 2},
		{Title: "Headphones unboxing", Platform: "youtube", TotalSlots: 6, DailyCount: 3},
	}

	q := quota.NewService(store, nil, nil, log, loc)
	for i := range samples {
		c := &samples[i]
		c.Status = models.CampaignPending
		c.StartDate = start
		c.EndDate = start.AddDate(0, 0, 14)
		if err := store.CreateCampaign(ctx, c); err != nil {
			return fmt.Errorf("create campaign %q: %w", c.Title, err)
		}
		res, err := q.Approve(ctx, c.ID, now)
		if err != nil {
			return fmt.Errorf("approve campaign %d: %w", c.ID, err)
		}
		log.Info("SEED", fmt.Sprintf("campaign %d (%s): %d slots, %d opened today", c.ID, c.Platform, res.SlotsCreated, res.Sync.Opened))
	}
	return nil
}
