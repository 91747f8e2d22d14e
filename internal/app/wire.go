package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pilotdeskhq/pilotdesk/internal/cache/redis"
	"github.com/pilotdeskhq/pilotdesk/internal/config"
	"github.com/pilotdeskhq/pilotdesk/internal/domain"
	"github.com/pilotdeskhq/pilotdesk/internal/notify"
	"github.com/pilotdeskhq/pilotdesk/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Database
	PG *postgres.Client
	DB domain.Transactor

	// Stores
	OpportunityStore  domain.OpportunityStore
	BidStore          domain.BidStore
	HoldingStore      domain.HoldingStore
	OrgStore          domain.OrgStore
	NotificationStore domain.NotificationStore

	// Caches
	ActorCache  domain.ActorCache
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter
	EventBus    domain.EventBus

	// Notifications
	Gateway *notify.Gateway
}

// needsRedis returns true for modes that require a Redis connection. The
// migrate mode only touches PostgreSQL.
func needsRedis(mode string) bool {
	switch mode {
	case "serve", "sweep":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	// Run migrations if enabled.
	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.PG = pgClient
	deps.DB = postgres.NewTransactor(pool)
	deps.OpportunityStore = postgres.NewOpportunityStore(pool)
	deps.BidStore = postgres.NewBidStore(pool)
	deps.HoldingStore = postgres.NewHoldingStore(pool)
	deps.OrgStore = postgres.NewOrgStore(pool)
	deps.NotificationStore = postgres.NewNotificationStore(pool)

	// --- Redis (only for modes that need caching, locks, and events) ---
	if needsRedis(cfg.Mode) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.ActorCache = redis.NewActorCache(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.EventBus = redis.NewEventBus(redisClient)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.WebhookURL != "" {
		senders = append(senders, notify.NewWebhookSender(
			"webhook",
			cfg.Notify.WebhookURL,
			cfg.Notify.WebhookField,
		))
	}
	notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger)
	deps.Gateway = notify.NewGateway(notifier, logger)

	return deps, cleanup, nil
}
