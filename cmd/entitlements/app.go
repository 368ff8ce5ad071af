package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/entitlements/pkg/api"
	"github.com/dmitrymomot/entitlements/pkg/audit"
	"github.com/dmitrymomot/entitlements/pkg/billing"
	"github.com/dmitrymomot/entitlements/pkg/config"
	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/fault"
	"github.com/dmitrymomot/entitlements/pkg/inbox"
	"github.com/dmitrymomot/entitlements/pkg/logger"
	"github.com/dmitrymomot/entitlements/pkg/metrics"
	"github.com/dmitrymomot/entitlements/pkg/notify"
	"github.com/dmitrymomot/entitlements/pkg/pg"
	"github.com/dmitrymomot/entitlements/pkg/redis"
	"github.com/dmitrymomot/entitlements/pkg/webhook"
)

// app holds the connections and services shared by serve and worker.
type app struct {
	cfg     config.App
	log     *slog.Logger
	metrics *metrics.Metrics

	pool  *pgxpool.Pool
	redis *goredis.Client
	hub   *notify.RedisHub

	entitlements *entitlement.Service
	repo         billing.Repository
	provider     billing.Provider
	inbox        *inbox.PgStorage
}

func newLogger() (config.App, *slog.Logger, error) {
	var cfg config.App
	if err := config.Load(&cfg); err != nil {
		return cfg, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}
	log := logger.New(
		logger.WithEnvironment(cfg.Env, cfg.ServiceName),
		logger.WithLevelName(cfg.LogLevel),
		logger.WithFormat(logger.Format(cfg.LogFormat)),
		logger.WithContextExtractors(api.RequestIDExtractor()),
	)
	return cfg, log, nil
}

func connectPostgres(ctx context.Context, log *slog.Logger) (*pgxpool.Pool, pg.Config, error) {
	var cfg pg.Config
	if err := config.Load(&cfg); err != nil {
		return nil, cfg, err
	}
	pool, err := pg.Connect(ctx, cfg)
	if err != nil {
		return nil, cfg, err
	}
	if cfg.AutoMigrate {
		if err := pg.Migrate(ctx, pool, cfg, log); err != nil {
			pool.Close()
			return nil, cfg, err
		}
	}
	return pool, cfg, nil
}

func newProvider(cfg config.Billing, appCfg config.App) (billing.Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case config.ProviderStripe:
		p, err := billing.NewStripeProvider(cfg.Stripe)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.ProviderPaddle:
		p, err := billing.NewPaddleProvider(cfg.Paddle)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		if appCfg.IsProduction() {
			return nil, errors.Join(fault.ErrConfiguration, fmt.Errorf("provider %q is not allowed in production", cfg.Provider))
		}
		return billing.NewMemoryProvider(cfg.Environment, cfg.MemoryWebhookSecret), nil
	}
}

// newApp connects Postgres and Redis and builds the entitlement core.
func newApp(ctx context.Context) (*app, error) {
	appCfg, log, err := newLogger()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: appCfg, log: log, metrics: metrics.New()}

	a.pool, _, err = connectPostgres(ctx, log)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	var redisCfg redis.Config
	if err := config.Load(&redisCfg); err != nil {
		a.close()
		return nil, err
	}
	a.redis, err = redis.Connect(ctx, redisCfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("redis: %w", err)
	}

	var billingCfg config.Billing
	if err := config.Load(&billingCfg); err != nil {
		a.close()
		return nil, err
	}
	a.provider, err = newProvider(billingCfg, appCfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("card provider: %w", err)
	}

	a.hub = notify.NewRedisHub(a.redis,
		notify.WithChannelPrefix(redisCfg.ChannelPrefix),
		notify.WithLogger(log),
	)
	auditLog := audit.NewLogger(audit.NewPgStorage(a.pool),
		audit.WithRequestIDExtractor(api.RequestIDFromContext),
	)
	a.entitlements = entitlement.NewService(entitlement.NewPgStore(a.pool),
		entitlement.WithPublisher(a.hub),
		entitlement.WithAuditLogger(auditLog),
		entitlement.WithLogger(log),
		entitlement.WithMetrics(a.metrics),
	)
	a.repo = billing.NewPgRepository(a.pool)
	a.inbox = inbox.NewPgStorage(a.pool)

	log.InfoContext(ctx, "application initialized",
		logger.Provider(a.provider.Name()),
		slog.String("billing_environment", a.provider.Environment()),
	)
	return a, nil
}

// newWorker builds the inbox worker that applies queued webhook events.
func (a *app) newWorker() (*inbox.Worker, error) {
	var cfg inbox.Config
	if err := config.Load(&cfg); err != nil {
		return nil, err
	}
	opts := append(cfg.WorkerOptions(),
		inbox.WithWorkerLogger(a.log),
		inbox.WithWorkerMetrics(a.metrics),
	)
	w, err := inbox.NewWorker(a.inbox, opts...)
	if err != nil {
		return nil, err
	}
	w.RegisterHandlers(
		webhook.PlatformHandler(a.entitlements, a.log),
		webhook.CardHandler(billing.NewWebhookProcessor(a.repo, a.entitlements, a.log), a.log),
	)
	return w, nil
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Error("failed to close redis", logger.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
