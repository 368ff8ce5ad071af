package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/entitlements/pkg/config"
	"github.com/dmitrymomot/entitlements/pkg/fault"
	"github.com/dmitrymomot/entitlements/pkg/identity"
)

func newTokenCommand() *cobra.Command {
	var (
		userID string
		email  string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development access token",
		Long:  `Create the identity if needed and print a signed bearer token for it. Refused when APP_ENV=production.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			appCfg, log, err := newLogger()
			if err != nil {
				return err
			}
			if appCfg.IsProduction() {
				return errors.Join(fault.ErrConfiguration, config.ErrProductionToken)
			}

			var authCfg config.Auth
			if err := config.Load(&authCfg); err != nil {
				return err
			}
			if err := authCfg.Validate(); err != nil {
				return err
			}

			id := uuid.New()
			if userID != "" {
				if id, err = uuid.Parse(userID); err != nil {
					return errors.Join(fault.ErrValidation, fmt.Errorf("user id: %w", err))
				}
			}

			pool, _, err := connectPostgres(ctx, log)
			if err != nil {
				return err
			}
			defer pool.Close()

			store := identity.NewPgStore(pool)
			if _, err := store.Ensure(ctx, id, email); err != nil {
				return err
			}
			auth, err := identity.NewAuthenticator(authCfg.JWTSecret, store, identity.WithIssuer(authCfg.Issuer))
			if err != nil {
				return err
			}
			token, err := auth.Issue(id, email, authCfg.DevTTL)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "user id: %s\n", id)
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id (default: a new random id)")
	cmd.Flags().StringVar(&email, "email", "dev@example.com", "Email stored on the identity")

	return cmd
}
