package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/predictpool/internal/blob/s3"
	"github.com/alanyoungcy/predictpool/internal/cache/redis"
	"github.com/alanyoungcy/predictpool/internal/config"
	"github.com/alanyoungcy/predictpool/internal/domain"
	"github.com/alanyoungcy/predictpool/internal/events"
	"github.com/alanyoungcy/predictpool/internal/metrics"
	"github.com/alanyoungcy/predictpool/internal/notify"
	"github.com/alanyoungcy/predictpool/internal/server/handler"
	"github.com/alanyoungcy/predictpool/internal/server/middleware"
	"github.com/alanyoungcy/predictpool/internal/service"
	"github.com/alanyoungcy/predictpool/internal/store/memory"
	"github.com/alanyoungcy/predictpool/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the run modes need.
// It is constructed by Wire and torn down by the returned cleanup function.
// Optional collaborators are nil interfaces when their backend is disabled.
type Dependencies struct {
	// Stores
	Markets     domain.MarketStore
	Bets        domain.BetStore
	Leaderboard domain.LeaderboardStore
	Ledger      domain.Ledger
	Audit       domain.AuditStore

	// Caches and coordination
	MarketCache domain.MarketCache
	Limiter     domain.RateLimiter
	Locks       domain.LockManager

	// Bus is subscribed to by the WebSocket hub. Publisher is what services
	// write to: the bus, plus Kafka when enabled.
	Bus       domain.SignalBus
	Publisher domain.EventPublisher

	// Blob storage
	Archiver domain.SettlementArchiver

	Notifier service.Notifier
	Metrics  *metrics.Metrics

	// HealthChecks probes each external backend for GET /api/health.
	HealthChecks map[string]handler.HealthCheck
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{
		Metrics:      metrics.New(),
		HealthChecks: make(map[string]handler.HealthCheck),
	}

	// --- Ledger storage ---
	switch strings.ToLower(cfg.Storage.Driver) {
	case "memory":
		st := memory.New()
		deps.Markets = st.Markets()
		deps.Bets = st.Bets()
		deps.Leaderboard = st.Leaderboard()
		deps.Ledger = st.Ledger()
		deps.Audit = st.Audit()
		logger.WarnContext(ctx, "wire: using in-memory storage, state is lost on exit")
	default:
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		deps.Markets = postgres.NewMarketStore(pool)
		deps.Bets = postgres.NewBetStore(pool)
		deps.Leaderboard = postgres.NewLeaderboardStore(pool)
		deps.Ledger = postgres.NewLedger(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.HealthChecks["postgres"] = pgClient.Ping
	}

	// --- Redis, or in-process stand-ins ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.MarketCache = redis.NewMarketCache(redisClient, cfg.Redis.CacheTTL.Duration)
		deps.Limiter = redis.NewRateLimiter(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.Bus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.HealthChecks["redis"] = redisClient.Ping
	} else {
		// No cache, and settlement locks fall back to the service's
		// process-local lock. Events and rate limits stay in process.
		deps.Limiter = middleware.NewLocalLimiter()
		deps.Bus = events.NewMemoryBus()
		logger.InfoContext(ctx, "wire: redis disabled, using in-process bus and rate limiter")
	}
	deps.Publisher = deps.Bus

	// --- Kafka export ---
	if cfg.Kafka.Enabled {
		kafka := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		})
		closers = append(closers, func() {
			if err := kafka.Close(); err != nil {
				logger.Warn("wire: kafka close", slog.String("error", err.Error()))
			}
		})
		deps.Publisher = events.NewFanout(deps.Bus, kafka)
	}

	// --- S3 settlement archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.HealthChecks["s3"] = s3Client.Health
		if cfg.Settlement.Archive {
			deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client), deps.Audit)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	return deps, cleanup, nil
}

// Services holds the engine services built over a Dependencies.
type Services struct {
	Markets     *service.MarketService
	Bets        *service.BetService
	Resolution  *service.ResolutionService
	Leaderboard *service.LeaderboardService
}

// NewServices builds the engine services.
func NewServices(deps *Dependencies, cfg *config.Config, logger *slog.Logger) *Services {
	return &Services{
		Markets: service.NewMarketService(
			deps.Markets, deps.Bets, deps.MarketCache, deps.Publisher, deps.Audit, deps.Metrics, logger,
		),
		Bets: service.NewBetService(
			deps.Ledger, deps.Markets, deps.Bets, deps.MarketCache, deps.Publisher, deps.Audit, deps.Metrics, logger,
		),
		Resolution: service.NewResolutionService(deps.Markets, deps.Bets, deps.Ledger, service.ResolutionDeps{
			Locks:    deps.Locks,
			Archiver: deps.Archiver,
			Notifier: deps.Notifier,
			Cache:    deps.MarketCache,
			Bus:      deps.Publisher,
			Audit:    deps.Audit,
			Metrics:  deps.Metrics,
		}, service.SettlementConfig{
			Workers:   cfg.Settlement.Workers,
			LockTTL:   cfg.Settlement.LockTTL.Duration,
			BatchSize: cfg.Settlement.BatchSize,
		}, logger),
		Leaderboard: service.NewLeaderboardService(deps.Leaderboard),
	}
}
