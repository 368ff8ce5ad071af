// Package config loads application configuration from the environment.
//
// Values come from process environment variables, optionally seeded from a
// .env file through github.com/joho/godotenv, and are parsed into tagged
// structs with github.com/caarlos0/env/v11. Each struct type is parsed once
// per process and cached, so commands load only the sections they need:
//
//	var auth config.Auth
//	if err := config.Load(&auth); err != nil {
//		return err
//	}
//	if err := auth.Validate(); err != nil {
//		return err
//	}
//
// Sections owned by other packages (pg.Config, redis.Config,
// httpserver.Config, ratelimiter.Config, inbox.Config) are loaded the same way.
//
// The checkout price allow-list is read from a YAML file
// (CHECKOUT_CATALOG_PATH) or a comma separated list (CHECKOUT_PRICE_IDS).
// Both empty is a configuration error.
//
// All errors wrap fault.ErrConfiguration. Call Reset in tests after changing
// the environment.
package config
