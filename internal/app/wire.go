package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/equitybot/internal/blob/s3"
	"github.com/alanyoungcy/equitybot/internal/cache/redis"
	"github.com/alanyoungcy/equitybot/internal/config"
	"github.com/alanyoungcy/equitybot/internal/crypto"
	"github.com/alanyoungcy/equitybot/internal/domain"
	"github.com/alanyoungcy/equitybot/internal/events/kafka"
	"github.com/alanyoungcy/equitybot/internal/notify"
	"github.com/alanyoungcy/equitybot/internal/platform/broker"
	"github.com/alanyoungcy/equitybot/internal/scheduler"
	"github.com/alanyoungcy/equitybot/internal/store/postgres"
)

// Dependencies bundles the infrastructure the modes are assembled from.
// Interface fields stay nil when the backing service is disabled.
type Dependencies struct {
	// Stores
	HoldingStore  domain.HoldingPeriodStore
	IntentStore   domain.IntentStore
	UniverseStore domain.UniverseStore
	AuditStore    domain.AuditStore

	// Caches
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	// Downstream fan-out, Redis first.
	Publishers []domain.IntentPublisher

	// Blob storage
	Archiver *s3blob.Archiver

	// Broker
	Broker *broker.Client
	Stream *broker.Stream

	Calendar *scheduler.Calendar
	Notifier *notify.Notifier

	// Health lists the reachable infrastructure by name for /api/health.
	Health map[string]pinger
}

type pinger interface {
	Ping(ctx context.Context) error
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Wire constructs the concrete dependencies from cfg and returns them with a
// cleanup function that releases them in reverse order.
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

	deps := &Dependencies{Health: map[string]pinger{}}

	cal, err := newCalendar(cfg.Schedule)
	if err != nil {
		return fail(fmt.Errorf("wire: calendar: %w", err))
	}
	deps.Calendar = cal

	// --- PostgreSQL ---
	if cfg.Supabase.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		deps.HoldingStore = postgres.NewHoldingStore(pool)
		deps.IntentStore = postgres.NewIntentStore(pool)
		deps.UniverseStore = postgres.NewUniverseStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Health["postgres"] = pgClient
	}

	// --- Redis ---
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

		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		bus := redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.Publishers = append(deps.Publishers, redis.NewIntentBus(redisClient, bus))
		deps.Health["redis"] = redisClient
	}

	// --- Kafka ---
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:        cfg.Kafka.Brokers,
			ClientID:       cfg.Kafka.ClientID,
			DecisionsTopic: cfg.Kafka.DecisionsTopic,
			RankingsTopic:  cfg.Kafka.RankingsTopic,
		}, logger)
		if err != nil {
			return fail(fmt.Errorf("wire: kafka: %w", err))
		}
		closers = append(closers, func() { _ = producer.Close() })
		deps.Publishers = append(deps.Publishers, producer)
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.IntentStore, deps.AuditStore)
		deps.Health["s3"] = pingFunc(s3Client.Health)
	}

	// --- Broker ---
	apiSecret, err := crypto.LoadSecret(crypto.SecretSource{
		Raw:        cfg.Broker.ApiSecret,
		SealedPath: cfg.Broker.ApiSecretFile,
		Password:   cfg.Broker.ApiSecretPassword,
	})
	if err != nil && !errors.Is(err, crypto.ErrNoSecret) {
		return fail(fmt.Errorf("wire: broker secret: %w", err))
	}
	deps.Broker = broker.NewClient(broker.ClientConfig{
		BaseURL:    cfg.Broker.BaseURL,
		ApiKey:     cfg.Broker.ApiKey,
		ApiSecret:  apiSecret,
		Timeout:    cfg.Broker.Timeout.Duration,
		RateLimit:  cfg.Broker.RateLimit,
		RateWindow: cfg.Broker.RateWindow.Duration,
	}, logger)
	if deps.RateLimiter != nil {
		deps.Broker.SetRateLimiter(deps.RateLimiter)
	}
	if cfg.Broker.Stream && deps.PriceCache != nil {
		var signer *broker.Signer
		if cfg.Broker.ApiKey != "" {
			signer = &broker.Signer{Key: cfg.Broker.ApiKey, Secret: apiSecret}
		}
		deps.Stream = broker.NewStream(cfg.Broker.StreamURL, signer, deps.PriceCache, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

func newCalendar(cfg config.ScheduleConfig) (*scheduler.Calendar, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}
	return scheduler.NewCalendar(scheduler.Config{
		Location:           loc,
		MarketOpen:         cfg.MarketOpen,
		SessionMinutes:     cfg.SessionMinutes,
		DecisionInterval:   cfg.DecisionInterval.Duration,
		PreMarketLead:      cfg.PreMarketLead.Duration,
		HoldingCheckOffset: cfg.HoldingCheckOffset.Duration,
		Holidays:           cfg.Holidays,
	})
}
