// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ArafathHabib/telegpbuyer2/internal/config"
	"github.com/ArafathHabib/telegpbuyer2/internal/controller"
	"github.com/ArafathHabib/telegpbuyer2/internal/db"
	"github.com/ArafathHabib/telegpbuyer2/internal/logging"
	"github.com/ArafathHabib/telegpbuyer2/internal/model"
	"github.com/ArafathHabib/telegpbuyer2/internal/platform/bridge"
	"github.com/ArafathHabib/telegpbuyer2/internal/queue"
	"github.com/ArafathHabib/telegpbuyer2/internal/repository"
	"github.com/ArafathHabib/telegpbuyer2/internal/service"
	"github.com/ArafathHabib/telegpbuyer2/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").WithError(err).Fatal("invalid configuration")
	}
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init DB
	database, err := db.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Fatal("database unavailable")
	}
	defer database.Close()
	if err := db.Migrate(ctx, database); err != nil {
		logger.WithError(err).Fatal("schema migration failed")
	}

	q, closeQueue, err := queue.Open(cfg.AMQPURL, logger)
	if err != nil {
		logger.WithError(err).Fatal("queue unavailable")
	}
	defer closeQueue()
	if err := queue.StartListingEventSubscriber(q, logger); err != nil {
		logger.WithError(err).Fatal("failed to subscribe listing events")
	}

	userRepo := &repository.UserRepository{DB: database}
	campaignRepo := &repository.CampaignRepository{DB: database}
	listingRepo := &repository.ListingRepository{DB: database}
	sessionRepo := &repository.SessionRepository{DB: database}

	// Confirmations drive receiver connections the worker also uses, so the
	// server holds its own and serializes with the worker through Redis.
	if err := cfg.RequireSessionLocks(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
	defer rdb.Close()
	registry := session.NewRegistry(cfg.PlatformCallTimeout, logger)
	defer registry.Close()
	registry.SetLocker(session.NewRedisLocker(rdb, cfg.PlatformCallTimeout, 2*cfg.PlatformCallTimeout))

	pool := session.NewPool(sessionRepo, registry, logger)
	if _, err := pool.Load(ctx, bridge.NewDialer(cfg.PlatformGatewayURL, nil), model.RoleReceiver); err != nil {
		logger.WithError(err).Fatal("failed to load sessions")
	}

	handoff := &service.Handoff{
		Receivers:      pool,
		Connections:    registry,
		Listings:       listingRepo,
		Campaigns:      campaignRepo,
		Users:          userRepo,
		Queue:          q,
		Logger:         logger,
		CapacityLimit:  cfg.MaxGroupsPerReceiver,
		CleanupMembers: cfg.CleanupMembers,
	}

	campaignService := &service.CampaignService{CampaignRepo: campaignRepo}
	listingService := service.NewListingService(listingRepo, campaignRepo, userRepo, sessionRepo, handoff, logger)

	r := controller.NewRouter(
		&controller.CampaignController{CampaignService: campaignService, Logger: logger},
		&controller.ListingController{Listings: listingService, Logger: logger},
	)
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.WithField("addr", cfg.HTTPAddr).Info("🚀 Server running")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("server stopped")
	}
}
