// Package app wires configuration into the shared services used by the API,
// the worker and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	limitermemory "github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/backend-invoice/internal/auth"
	"github.com/noah-isme/backend-invoice/internal/config"
	"github.com/noah-isme/backend-invoice/internal/health"
	"github.com/noah-isme/backend-invoice/internal/invoice"
	"github.com/noah-isme/backend-invoice/internal/lock"
	"github.com/noah-isme/backend-invoice/internal/store/boltstore"
	"github.com/noah-isme/backend-invoice/internal/store/mongostore"
	"github.com/noah-isme/backend-invoice/internal/store/pgstore"
)

// Store is what every driver provides.
type Store interface {
	invoice.Store
	auth.AccountStore
	io.Closer
}

// Dependencies enumerates core services shared across binaries.
type Dependencies struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Store      Store
	Redis      *redis.Client
	Limiter    *limiter.Limiter
	TaskClient *asynq.Client
	Invoices   *invoice.Service
	Auth       *auth.Service
}

// OpenStore connects the driver selected by STORE_DRIVER.
func OpenStore(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		return pgstore.Open(ctx, cfg.DatabaseURL, "backend-invoice")
	case config.DriverMongo:
		return mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case config.DriverBolt:
		return boltstore.Open(cfg.BoltPath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// NewRedis parses REDIS_URL and instruments the client. An empty URL yields nil.
func NewRedis(ctx context.Context, redisURL string, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewLimiter builds a limiter from an ulule rate such as "20-M". Redis backs
// the counters when available so every replica shares them.
func NewLimiter(rate string, rdb *redis.Client) (*limiter.Limiter, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("parse rate %q: %w", rate, err)
	}
	var store limiter.Store
	if rdb != nil {
		store, err = limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "invoice:limiter"})
		if err != nil {
			return nil, fmt.Errorf("limiter store: %w", err)
		}
	} else {
		store = limitermemory.NewStoreWithOptions(limiter.StoreOptions{Prefix: "invoice:limiter", CleanUpInterval: time.Minute})
	}
	return limiter.New(store, parsed), nil
}

// AsynqRedisOpt converts REDIS_URL for asynq.
func AsynqRedisOpt(redisURL string) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse asynq redis uri: %w", err)
	}
	return opt, nil
}

// New opens the store and optional Redis, then builds the services.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	d := &Dependencies{Config: cfg, Logger: logger}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	d.Store = store

	d.Redis, err = NewRedis(ctx, cfg.RedisURL, cfg.Obs.EnablePrometheus, logger)
	if err != nil {
		_ = d.Close()
		return nil, err
	}

	d.Limiter, err = NewLimiter(cfg.AuthRateLimit, d.Redis)
	if err != nil {
		_ = d.Close()
		return nil, err
	}

	var locker invoice.Locker
	if d.Redis != nil {
		locker = lock.Locker{Client: d.Redis, RetryBackoff: 20 * time.Millisecond, MaxWait: cfg.InvoiceLockTTL}
		opt, err := AsynqRedisOpt(cfg.RedisURL)
		if err != nil {
			_ = d.Close()
			return nil, err
		}
		d.TaskClient = asynq.NewClient(opt)
	}

	d.Invoices, err = invoice.NewService(invoice.Config{
		Store:             store,
		Locker:            locker,
		Logger:            logger,
		DueDays:           cfg.InvoiceDueDays,
		RequireItems:      cfg.InvoiceRequireItems,
		MaxNumberAttempts: cfg.InvoiceNumberMaxAttempts,
		StoreTimeout:      cfg.StoreTimeout,
		LockTTL:           cfg.InvoiceLockTTL,
	})
	if err != nil {
		_ = d.Close()
		return nil, err
	}

	d.Auth, err = auth.NewService(auth.Config{
		Accounts:       store,
		Secret:         cfg.JWTSecret,
		AccessTokenTTL: cfg.AccessTokenTTL,
		Issuer:         cfg.JWTIssuer,
		Audience:       cfg.JWTAudience,
		ClockSkew:      30 * time.Second,
	})
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// PingStore implements health.Checker.
func (d *Dependencies) PingStore(ctx context.Context) error {
	if d.Store == nil {
		return errors.New("store not configured")
	}
	return d.Store.Ping(ctx)
}

// PingRedis implements health.Checker. Redis is optional.
func (d *Dependencies) PingRedis(ctx context.Context) error {
	if d.Redis == nil {
		return health.ErrDisabled
	}
	return d.Redis.Ping(ctx).Err()
}

// Close releases every connection that was opened.
func (d *Dependencies) Close() error {
	var errs []error
	if d.TaskClient != nil {
		errs = append(errs, d.TaskClient.Close())
	}
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	if d.Store != nil {
		errs = append(errs, d.Store.Close())
	}
	return errors.Join(errs...)
}

var _ health.Checker = (*Dependencies)(nil)
