package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ms-reviews/internal/admin"
	"ms-reviews/internal/app"
	"ms-reviews/internal/auth"
	"ms-reviews/internal/config"
	"ms-reviews/internal/events"
	"ms-reviews/internal/kafka"
	"ms-reviews/internal/logger"
	"ms-reviews/internal/quota"
	"ms-reviews/internal/reservation"
	"ms-reviews/internal/slots/slot_api"
	"ms-reviews/internal/sse"
	"ms-reviews/internal/submission"
	"ms-reviews/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.App.Name, cfg.App.LogDir, logger.ParseLevel(cfg.App.LogLevel))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}
	log.Info("APP", "Starting review slot service initialization")

	loc, err := utils.LoadLocation(cfg.App.TimeZone)
	if err != nil {
		log.Fatal("CONFIG", fmt.Sprintf("invalid time zone %q: %v", cfg.App.TimeZone, err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
	var locker reservation.Locker
	if locks != nil {
		marker, locker = locks, locks
	}

	// Events go to the SSE clients and, when enabled, to Kafka.
	emitter := sse.NewSlotEventEmitter()
	sinks := []events.Publisher{emitter}
	var attachments events.AttachmentSink
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topics.All(), log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		if existing, err := kafka.ListTopics(ctx, cfg.Kafka.Brokers); err == nil {
			log.Info("KAFKA", fmt.Sprintf("%d topics on the cluster, %d expected", len(existing), len(cfg.Kafka.Topics.All())))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics, log)
		defer producer.Close()
		sinks = append(sinks, producer)
		attachments = producer
		log.Info("KAFKA", "Kafka producer initialized successfully")
	}
	publisher := events.NewFanout(sinks...)

	limits := reservation.Limits{
		CampaignLimit:        cfg.Reservation.CampaignLimit,
		DailyLimit:           cfg.Reservation.DailyLimit,
		RateLimitedPlatforms: cfg.Reservation.RateLimitedPlatforms,
	}
	quotaService := quota.NewService(store, marker, publisher, log, loc)
	reservationService := reservation.NewService(store, locker, quotaService, publisher, attachments, log, loc, limits)
	submissionService := submission.NewService(store, publisher, attachments, log)
	adminService := admin.NewService(store, publisher, attachments, log, loc)

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.CampaignUpdated, cfg.Kafka.GroupID, quotaService, log)
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Error("KAFKA", fmt.Sprintf("campaign update consumer stopped: %v", err))
			}
		}()
	}

	verifier, err := newVerifier(ctx, cfg, log)
	if err != nil {
		log.Fatal("AUTH", err.Error())
	}

	handler := &slot_api.Handler{
		Reservations: reservationService,
		Quotas:       quotaService,
		Submissions:  submissionService,
		Admin:        adminService,
		Events:       emitter,
		Logger:       log,
	}

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(slot_api.RequestLogger(log))

	slot_api.RegisterHealth(r, store, log)
	handler.RegisterRoutes(r, auth.Middleware(verifier, log), auth.RequireRole(cfg.Auth.AdminRole, log))
	log.Info("ROUTER", "Slot, submission and admin routes registered under /api")

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		// No WriteTimeout: it would cut long-lived SSE streams.
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Review slot service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	<-ctx.Done()
	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "Review slot service shutdown complete")
	}
}

func newVerifier(ctx context.Context, cfg *config.Config, log *logger.Logger) (auth.Verifier, error) {
	if cfg.Auth.IssuerURL == "" {
		log.Warn("AUTH", "OIDC_ISSUER_URL not set, accepting unverified tokens (development only)")
		return auth.UnverifiedParser{}, nil
	}
	v, err := auth.NewOIDCVerifier(ctx, cfg.Auth.IssuerURL)
	if err != nil {
		return nil, err
	}
	log.Info("AUTH", fmt.Sprintf("verifying tokens issued by %s", cfg.Auth.IssuerURL))
	return v, nil
}
