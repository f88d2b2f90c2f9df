package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/seanankenbruck/samarth-qa/internal/auth"
)

// NewTokenCommand creates the token command, which mints a bearer token
// with the configured JWT secret
func NewTokenCommand(root *RootOptions) *cobra.Command {
	var (
		name   string
		expiry time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a dashboard or script",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}
			if expiry > 0 {
				cfg.Auth.JWTExpiry = expiry
			}

			am := auth.NewAuthManager(auth.AuthConfig{
				JWTSecret: cfg.Auth.JWTSecret,
				JWTExpiry: cfg.Auth.JWTExpiry,
			}, newLogger(cfg, "auth", cmd.ErrOrStderr()))
			defer am.Close()

			token, expiresAt, err := am.CreateToken(name)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "dashboard", "client name carried in the token")
	cmd.Flags().DurationVar(&expiry, "expiry", 0, "override JWT_EXPIRY")

	return cmd
}
