package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrymomot/entitlements/pkg/billing"
	"github.com/dmitrymomot/entitlements/pkg/fault"
)

// Application environments.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Card providers.
const (
	ProviderStripe = "stripe"
	ProviderPaddle = "paddle"
	ProviderMemory = "memory"
)

// App holds process-wide settings.
type App struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	ServiceName string `env:"APP_NAME" envDefault:"entitlements"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	// LogFormat is json or text. Empty picks text in development and json elsewhere.
	LogFormat string `env:"LOG_FORMAT"`
}

func (a App) Validate() error {
	switch a.Env {
	case EnvDevelopment, EnvStaging, EnvProduction:
		return nil
	}
	return errors.Join(fault.ErrConfiguration, ErrInvalidEnv, fmt.Errorf("APP_ENV=%q", a.Env))
}

func (a App) IsProduction() bool { return a.Env == EnvProduction }

// Auth configures bearer token verification.
type Auth struct {
	JWTSecret string        `env:"AUTH_JWT_SECRET"`
	Issuer    string        `env:"AUTH_JWT_ISSUER" envDefault:"entitlements"`
	DevTTL    time.Duration `env:"AUTH_DEV_TOKEN_TTL" envDefault:"24h"`
}

func (a Auth) Validate() error {
	if strings.TrimSpace(a.JWTSecret) == "" {
		return errors.Join(fault.ErrConfiguration, ErrMissingJWTSecret)
	}
	return nil
}

// Billing selects and configures the card provider.
type Billing struct {
	Provider string `env:"BILLING_PROVIDER" envDefault:"stripe"`
	// Environment tags customer mappings for the memory provider. Stripe
	// derives it from the key and Paddle from its own setting.
	Environment string `env:"BILLING_ENVIRONMENT" envDefault:"test"`
	// MemoryWebhookSecret signs webhooks for the in-process provider.
	MemoryWebhookSecret string `env:"BILLING_MEMORY_WEBHOOK_SECRET" envDefault:"whsec_dev"`
	Stripe              billing.StripeConfig
	Paddle              billing.PaddleConfig
}

func (b Billing) Validate() error {
	switch b.Provider {
	case ProviderStripe, ProviderPaddle, ProviderMemory:
		return nil
	}
	return errors.Join(fault.ErrConfiguration, ErrUnknownProvider, fmt.Errorf("BILLING_PROVIDER=%q", b.Provider))
}

// Checkout configures the price allow-list and cancellation policy.
type Checkout struct {
	CatalogPath string   `env:"CHECKOUT_CATALOG_PATH"`
	PriceIDs    []string `env:"CHECKOUT_PRICE_IDS" envSeparator:","`
	// ImmediateCancellation enables the instant downgrade path used in QA.
	ImmediateCancellation bool `env:"CHECKOUT_IMMEDIATE_CANCELLATION" envDefault:"false"`
}

// Validate rejects settings that are unsafe for the environment.
func (c Checkout) Validate(app App) error {
	if c.ImmediateCancellation && app.IsProduction() {
		return errors.Join(fault.ErrConfiguration, ErrImmediateCancellationInProduction)
	}
	return nil
}

// Catalog builds the allow-list from the YAML file when set, otherwise from
// PriceIDs. An empty allow-list is a configuration error.
func (c Checkout) Catalog() (*billing.Catalog, error) {
	var (
		catalog *billing.Catalog
		err     error
	)
	if c.CatalogPath != "" {
		catalog, err = billing.LoadCatalog(c.CatalogPath)
		if err != nil {
			return nil, err
		}
	} else {
		catalog = billing.CatalogFromIDs(c.PriceIDs)
	}
	if catalog.Len() == 0 {
		return nil, errors.Join(fault.ErrConfiguration, ErrEmptyCatalog)
	}
	return catalog, nil
}

// Platform configures the platform IAP webhook. A missing secret is not a
// startup error; the webhook answers 500 until it is set.
type Platform struct {
	WebhookSecret string `env:"PLATFORM_WEBHOOK_SECRET"`
}
