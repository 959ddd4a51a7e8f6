package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ArafathHabib/telegpbuyer2/internal/config"
	"github.com/ArafathHabib/telegpbuyer2/internal/db"
	"github.com/ArafathHabib/telegpbuyer2/internal/listing"
	"github.com/ArafathHabib/telegpbuyer2/internal/logging"
	"github.com/ArafathHabib/telegpbuyer2/internal/platform/bridge"
	"github.com/ArafathHabib/telegpbuyer2/internal/queue"
	"github.com/ArafathHabib/telegpbuyer2/internal/repository"
	"github.com/ArafathHabib/telegpbuyer2/internal/service"
	"github.com/ArafathHabib/telegpbuyer2/internal/session"
	"github.com/ArafathHabib/telegpbuyer2/internal/verification"
)

// deps is what every dispatcher loop of this process shares.
type deps struct {
	Listings  repository.ListingRepositoryInterface
	Campaigns repository.CampaignRepositoryInterface
	Users     repository.UserRepositoryInterface
	Pool      *session.Pool
	Queue     queue.Queue
	Logger    logrus.FieldLogger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").WithError(err).Fatal("invalid configuration")
	}
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Fatal("database unavailable")
	}
	defer database.Close()

	q, closeQueue, err := openEvents(cfg.AMQPURL, logger)
	if err != nil {
		logger.WithError(err).Fatal("queue unavailable")
	}
	defer closeQueue()

	registry := session.NewRegistry(cfg.PlatformCallTimeout, logger)
	defer registry.Close()
	if cfg.RedisAddress != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		defer rdb.Close()
		registry.SetLocker(session.NewRedisLocker(rdb, cfg.PlatformCallTimeout, 2*cfg.PlatformCallTimeout))
		logger.WithField("redis", cfg.RedisAddress).Info("distributed session locks enabled")
	} else {
		logger.Warn("⚠️ REDIS_ADDRESS not set: session locks are process-local, run no server against this database")
	}

	pool := session.NewPool(&repository.SessionRepository{DB: database}, registry, logger)
	if _, err := pool.Load(ctx, bridge.NewDialer(cfg.PlatformGatewayURL, nil)); err != nil {
		logger.WithError(err).Fatal("failed to load sessions")
	}

	host, _ := os.Hostname()
	dispatchers := newDispatchers(cfg, deps{
		Listings:  &repository.ListingRepository{DB: database},
		Campaigns: &repository.CampaignRepository{DB: database},
		Users:     &repository.UserRepository{DB: database},
		Pool:      pool,
		Queue:     q,
		Logger:    logger,
	}, fmt.Sprintf("%s-%d", host, os.Getpid()))

	logger.WithField("dispatchers", len(dispatchers)).Info("🚀 Worker running")
	if err := runDispatchers(ctx, dispatchers); err != nil {
		logger.WithError(err).Fatal("worker stopped")
	}
	logger.Info("worker stopped")
}

// openEvents opens the listing event queue and subscribes the event logger,
// so dispatcher transitions published on it are logged and counted.
func openEvents(url string, logger logrus.FieldLogger) (queue.Queue, func() error, error) {
	q, closeQueue, err := queue.Open(url, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := queue.StartListingEventSubscriber(q, logger); err != nil {
		_ = closeQueue()
		return nil, nil, err
	}
	return q, closeQueue, nil
}

// newDispatchers builds cfg.DispatcherCount loops sharing d. Each gets its own
// lease owner derived from prefix.
func newDispatchers(cfg *config.Config, d deps, prefix string) []*service.Dispatcher {
	pipeline := verification.NewPipeline(cfg.Keywords, d.Logger)
	handoff := &service.Handoff{
		Receivers:      d.Pool,
		Connections:    d.Pool.Registry,
		Listings:       d.Listings,
		Campaigns:      d.Campaigns,
		Users:          d.Users,
		Queue:          d.Queue,
		Logger:         d.Logger,
		CapacityLimit:  cfg.MaxGroupsPerReceiver,
		CleanupMembers: cfg.CleanupMembers,
	}
	policy := listing.RetryPolicy{
		MaxAttempts:     cfg.VerifyMaxAttempts,
		FailOnExhausted: cfg.FailOnExhaustedRetries,
	}

	out := make([]*service.Dispatcher, cfg.DispatcherCount)
	for i := range out {
		owner := fmt.Sprintf("%s-%d", prefix, i)
		out[i] = &service.Dispatcher{
			Listings:         d.Listings,
			Campaigns:        d.Campaigns,
			Checkers:         d.Pool,
			Receivers:        d.Pool,
			Connections:      d.Pool.Registry,
			Verifier:         pipeline,
			Handoff:          handoff,
			Queue:            d.Queue,
			Logger:           d.Logger.WithField("dispatcher", owner),
			Policy:           policy,
			Owner:            owner,
			Lease:            cfg.ListingLease,
			PollInterval:     cfg.PollInterval,
			IdleBackoff:      cfg.IdleBackoff,
			NoCheckerBackoff: cfg.NoCheckerBackoff,
		}
	}
	return out
}

// runDispatchers runs every loop until ctx is done.
func runDispatchers(ctx context.Context, dispatchers []*service.Dispatcher) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, d := range dispatchers {
		d := d
		g.Go(func() error { return d.Run(ctx) })
	}
	return g.Wait()
}
