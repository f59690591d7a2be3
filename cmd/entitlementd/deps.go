package main

import (
	"context"
	"fmt"

	"github.com/PaulFidika/entitlekit/adapters/ginutil"
	"github.com/PaulFidika/entitlekit/config"
	"github.com/PaulFidika/entitlekit/core"
	"github.com/PaulFidika/entitlekit/entitlements"
	"github.com/PaulFidika/entitlekit/payments/razorpay"
	"github.com/PaulFidika/entitlekit/ratelimit"
	memorylimiter "github.com/PaulFidika/entitlekit/ratelimit/memory"
	redislimiter "github.com/PaulFidika/entitlekit/ratelimit/redis"
	memorystore "github.com/PaulFidika/entitlekit/storage/memory"
	pgstore "github.com/PaulFidika/entitlekit/storage/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// deps holds the process-wide collaborators; close releases them.
type deps struct {
	cfg     *config.Config
	log     *logrus.Logger
	svc     *core.Service
	limiter ginutil.RateLimiter
	close   func()
}

func openStore(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (entitlements.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set; using in-memory entitlement store")
		return memorystore.NewEntitlementStore(), func() {}, nil
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pgstore.NewEntitlementStore(pool, ""), pool.Close, nil
}

func openLimiter(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (ginutil.RateLimiter, func(), error) {
	if cfg.RedisURL == "" {
		log.Info("REDIS_URL not set; rate limits are per process")
		return memorylimiter.New(ratelimit.DefaultLimits()), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return redislimiter.New(rdb, ratelimit.DefaultLimits()), func() { _ = rdb.Close() }, nil
}

func newProvider(cfg *config.Config) (*razorpay.Client, error) {
	if cfg.RazorpayKeyID == "" {
		return nil, fmt.Errorf("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET are required")
	}
	var opts []razorpay.Option
	if cfg.RazorpayBaseURL != "" {
		opts = append(opts, razorpay.WithBaseURL(cfg.RazorpayBaseURL))
	}
	return razorpay.New(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, opts...), nil
}

func buildDeps(ctx context.Context, withLimiter bool) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := cfg.Logger()
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	d := &deps{cfg: cfg, log: log, close: closeStore}
	if withLimiter {
		rl, closeLimiter, err := openLimiter(ctx, cfg, log)
		if err != nil {
			closeStore()
			return nil, err
		}
		d.limiter = rl
		d.close = func() { closeLimiter(); closeStore() }
	}
	if cfg.RazorpayWebhookSecret == "" {
		log.Warn("RAZORPAY_WEBHOOK_SECRET not set; every webhook will be rejected")
	}
	d.svc = core.NewService(cfg.Service(), store, provider, core.WithLogger(log))
	return d, nil
}
