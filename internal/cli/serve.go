package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/seanankenbruck/samarth-qa/internal/auth"
)

// Version is reported by /health
var Version = "dev"

const shutdownTimeout = 15 * time.Second

// NewServeCommand creates the serve command
func NewServeCommand(root *RootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := root.loadConfig(ctx)
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Server.Port = port
			}
			if err := cfg.ValidateWithContext(); err != nil {
				return err
			}
			gin.SetMode(cfg.Server.GinMode)

			logger := newLogger(cfg, "samarth", nil)
			defer logger.Sync()

			a, err := newApp(ctx, cfg, logger, appOptions{cache: true, history: true, refreshSchema: true})
			if err != nil {
				logger.Error(ctx, "Failed to open the dataset", err, map[string]interface{}{
					"path":     cfg.Store.Path,
					"relation": cfg.Store.Relation,
				})
				return err
			}
			defer a.Close()

			a.processor.SetHealthChecker(a.healthChecker(Version))

			authManager := auth.NewAuthManager(auth.AuthConfig{
				APIKeys:        cfg.Auth.APIKeys,
				JWTSecret:      cfg.Auth.JWTSecret,
				JWTExpiry:      cfg.Auth.JWTExpiry,
				RateLimit:      cfg.Auth.RateLimit,
				AllowAnonymous: cfg.Auth.AllowAnonymous,
			}, logger.Component("auth"))
			defer authManager.Close()

			router := a.processor.SetupRoutes(authManager)
			auth.NewAuthHandlers(authManager).SetupRoutes(router.Group("/api/v1"))

			srv := &http.Server{
				Addr:              ":" + cfg.Server.Port,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info(ctx, "Samarth QA service starting", map[string]interface{}{
					"port":    cfg.Server.Port,
					"version": Version,
					"setup":   describe(cfg),
				})
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					logger.Error(ctx, "Server failed", err, nil)
				}
				return err
			case <-ctx.Done():
			}

			logger.Info(context.Background(), "Shutting down", nil)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "override PORT")

	return cmd
}
