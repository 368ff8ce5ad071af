package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/entitlements/pkg/accountdeletion"
	"github.com/dmitrymomot/entitlements/pkg/api"
	"github.com/dmitrymomot/entitlements/pkg/billing"
	"github.com/dmitrymomot/entitlements/pkg/cancellation"
	"github.com/dmitrymomot/entitlements/pkg/config"
	"github.com/dmitrymomot/entitlements/pkg/httpserver"
	"github.com/dmitrymomot/entitlements/pkg/identity"
	"github.com/dmitrymomot/entitlements/pkg/inbox"
	"github.com/dmitrymomot/entitlements/pkg/pg"
	"github.com/dmitrymomot/entitlements/pkg/ratelimiter"
	"github.com/dmitrymomot/entitlements/pkg/redis"
	"github.com/dmitrymomot/entitlements/pkg/webhook"
)

func newServeCommand() *cobra.Command {
	var withWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  `Start the HTTP API and, unless disabled, the inbox worker that applies queued webhook events.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, withWorker)
		},
	}
	cmd.Flags().BoolVar(&withWorker, "worker", true, "Run the inbox worker in the same process")

	return cmd
}

func runServe(ctx context.Context, withWorker bool) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	var (
		authCfg     config.Auth
		checkoutCfg config.Checkout
		platformCfg config.Platform
		redisCfg    redis.Config
		rateCfg     ratelimiter.Config
		inboxCfg    inbox.Config
		httpCfg     httpserver.Config
	)
	for _, load := range []func() error{
		func() error { return config.Load(&authCfg) },
		func() error { return config.Load(&checkoutCfg) },
		func() error { return config.Load(&platformCfg) },
		func() error { return config.Load(&redisCfg) },
		func() error { return config.Load(&rateCfg) },
		func() error { return config.Load(&inboxCfg) },
		func() error { return config.Load(&httpCfg) },
		func() error { return authCfg.Validate() },
		func() error { return checkoutCfg.Validate(a.cfg) },
	} {
		if err := load(); err != nil {
			return err
		}
	}

	catalog, err := checkoutCfg.Catalog()
	if err != nil {
		return err
	}
	if platformCfg.WebhookSecret == "" {
		a.log.WarnContext(ctx, "PLATFORM_WEBHOOK_SECRET is not set, platform webhooks will be rejected")
	}

	identities := identity.NewPgStore(a.pool)
	auth, err := identity.NewAuthenticator(authCfg.JWTSecret, identities,
		identity.WithIssuer(authCfg.Issuer),
		identity.WithErrorHandler(api.WriteError),
		identity.WithLogger(a.log),
	)
	if err != nil {
		return err
	}

	checkout := billing.NewCheckoutService(catalog, a.repo, a.provider, a.entitlements,
		billing.WithCheckoutLogger(a.log),
		billing.WithCheckoutMetrics(a.metrics),
	)
	coordinator := cancellation.NewCoordinator(a.entitlements, a.repo, a.provider,
		cancellation.WithImmediateCancellation(checkoutCfg.ImmediateCancellation),
		cancellation.WithLogger(a.log),
		cancellation.WithMetrics(a.metrics),
	)
	deletion := accountdeletion.NewOrchestrator(a.entitlements, identities, a.repo, a.provider,
		accountdeletion.WithChildTables(accountdeletion.PgChildTables(a.pool)...),
		accountdeletion.WithLogger(a.log),
		accountdeletion.WithMetrics(a.metrics),
	)

	enqueuer, err := inbox.NewEnqueuer(a.inbox, inbox.WithDefaultMaxAttempts(inboxCfg.MaxAttempts))
	if err != nil {
		return err
	}
	bucket, err := ratelimiter.NewBucket(
		ratelimiter.NewRedisStore(a.redis, ratelimiter.WithKeyPrefix(redisCfg.RateLimitPrefix)),
		rateCfg,
	)
	if err != nil {
		return err
	}

	router, err := api.NewRouter(api.Deps{
		Entitlements: a.entitlements,
		Checkout:     checkout,
		Cancellation: coordinator,
		Deletion:     deletion,
		Changes:      a.hub,
		Identities:   identities,
		Authenticate: auth.Middleware,
		RateLimit: ratelimiter.Middleware(bucket,
			ratelimiter.UserOrIP(identity.UserIDFromContext),
			ratelimiter.WithLogger(a.log),
		),
		CardWebhook: webhook.NewCardIngestor(a.provider, enqueuer,
			webhook.WithLogger(a.log),
			webhook.WithMetrics(a.metrics),
		),
		PlatformWebhook: webhook.NewPlatformIngestor(platformCfg.WebhookSecret, enqueuer,
			webhook.WithLogger(a.log),
			webhook.WithMetrics(a.metrics),
		),
		HealthChecks: map[string]api.HealthCheck{
			"postgres": pg.Healthcheck(a.pool),
			"redis":    redis.Healthcheck(a.redis),
		},
		Metrics: a.metrics,
		Logger:  a.log,
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.New(httpCfg, router, httpserver.WithLogger(a.log)).Run(ctx)
	})
	if withWorker {
		worker, err := a.newWorker()
		if err != nil {
			return err
		}
		g.Go(worker.Run(ctx))
	}
	return g.Wait()
}
