package config

import "errors"

var (
	// ErrParsingConfig is returned when environment variables cannot be parsed into the config struct.
	ErrParsingConfig = errors.New("failed to parse environment variables into config")

	// ErrConfigNotLoaded is returned when a config type was not stored after parsing.
	ErrConfigNotLoaded = errors.New("configuration has not been loaded")

	// ErrNilPointer is returned when a nil pointer is provided to Load.
	ErrNilPointer = errors.New("nil pointer provided to config loader")

	ErrUnknownProvider  = errors.New("unknown card provider")
	ErrEmptyCatalog     = errors.New("checkout price allow-list is empty")
	ErrMissingJWTSecret = errors.New("jwt signing secret is not set")
	ErrInvalidEnv       = errors.New("invalid application environment")
	ErrProductionToken  = errors.New("development tokens are disabled in production")

	ErrImmediateCancellationInProduction = errors.New("immediate cancellation cannot be enabled in production")
)
