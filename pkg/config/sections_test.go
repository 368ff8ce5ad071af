package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlements/pkg/billing"
	"github.com/dmitrymomot/entitlements/pkg/config"
	"github.com/dmitrymomot/entitlements/pkg/fault"
)

func TestCheckout_Catalog(t *testing.T) {
	t.Parallel()

	t.Run("from id list", func(t *testing.T) {
		t.Parallel()
		catalog, err := config.Checkout{PriceIDs: []string{"price_a", " price_b "}}.Catalog()
		require.NoError(t, err)
		assert.Equal(t, 2, catalog.Len())
		_, err = catalog.Check("price_b", billing.ModePayment)
		assert.NoError(t, err)
	})

	t.Run("from yaml file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "prices.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
prices:
  - id: price_monthly
    mode: subscription
    product: premium
  - id: price_lifetime
    mode: payment
`), 0o600))

		catalog, err := config.Checkout{CatalogPath: path, PriceIDs: []string{"ignored"}}.Catalog()
		require.NoError(t, err)
		assert.Equal(t, 2, catalog.Len())
		_, err = catalog.Check("price_monthly", billing.ModePayment)
		assert.ErrorIs(t, err, fault.ErrValidation)
	})

	t.Run("empty allow-list", func(t *testing.T) {
		t.Parallel()
		_, err := config.Checkout{}.Catalog()
		assert.ErrorIs(t, err, config.ErrEmptyCatalog)
		assert.ErrorIs(t, err, fault.ErrConfiguration)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := config.Checkout{CatalogPath: filepath.Join(t.TempDir(), "nope.yaml")}.Catalog()
		assert.ErrorIs(t, err, fault.ErrConfiguration)
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, config.App{Env: config.EnvStaging}.Validate())
	assert.ErrorIs(t, config.App{Env: "prod"}.Validate(), config.ErrInvalidEnv)
	assert.True(t, config.App{Env: config.EnvProduction}.IsProduction())

	assert.ErrorIs(t, config.Auth{JWTSecret: "  "}.Validate(), config.ErrMissingJWTSecret)
	assert.NoError(t, config.Auth{JWTSecret: "s3cret"}.Validate())

	prod, staging := config.App{Env: config.EnvProduction}, config.App{Env: config.EnvStaging}
	err := config.Checkout{ImmediateCancellation: true}.Validate(prod)
	assert.ErrorIs(t, err, config.ErrImmediateCancellationInProduction)
	assert.ErrorIs(t, err, fault.ErrConfiguration)
	assert.NoError(t, config.Checkout{ImmediateCancellation: true}.Validate(staging))
	assert.NoError(t, config.Checkout{}.Validate(prod))

	assert.NoError(t, config.Billing{Provider: config.ProviderPaddle}.Validate())
	err = config.Billing{Provider: "braintree"}.Validate()
	assert.ErrorIs(t, err, config.ErrUnknownProvider)
	assert.ErrorIs(t, err, fault.ErrConfiguration)
}
