// Package cli wires the samarth command tree.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/seanankenbruck/samarth-qa/internal/config"
	"github.com/seanankenbruck/samarth-qa/internal/observability"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFile  string
	LogLevel string
}

// NewRootCommand creates the root command for the samarth CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "samarth",
		Short:         "Samarth - questions over the agriculture dataset",
		Long:          "Answers natural-language questions about the Samarth dataset by generating and running read-only SQL.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file consulted after the environment")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override LOG_LEVEL (debug|info|warn|error)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewAskCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

// loadConfig reads file secrets, then the environment, then the dotenv file
func (o *RootOptions) loadConfig(ctx context.Context) (*config.Config, error) {
	loader := config.NewLoader(config.NewChainProvider(
		config.NewFileProvider("/var/secrets"),
		config.NewEnvProvider(),
		config.NewDotenvProvider(o.EnvFile),
	))

	cfg, err := loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if o.LogLevel != "" {
		cfg.Server.LogLevel = o.LogLevel
	}
	return cfg, nil
}

// newLogger builds a component logger at the configured level
func newLogger(cfg *config.Config, component string, out io.Writer) *observability.Logger {
	logger := observability.NewLogger(component).WithLevel(observability.ParseLevel(cfg.Server.LogLevel))
	if out != nil {
		logger = logger.WithOutput(out)
	}
	return logger
}
