package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aretw0/flujos/internal/cli"
	"github.com/aretw0/flujos/pkg/adapters/console"
	httpadapter "github.com/aretw0/flujos/pkg/adapters/http"
	"github.com/aretw0/flujos/pkg/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Starts the flujos engine as an HTTP server: the flow editor API, the inbound
message endpoint for channels, the conversation monitor and /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		app, err := openApp(sigCtx, cmd, cli.AppOptions{Handoff: console.NewHandoff(os.Stdout)})
		if err != nil {
			return err
		}
		defer app.Close()

		addr := app.Config.Addr
		if cmd.Flags().Changed("addr") {
			addr, _ = cmd.Flags().GetString("addr")
		}

		handler := httpadapter.NewHandler(httpadapter.Config{
			Flows:     app.Flows,
			Engine:    app.Engine,
			Metrics:   promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{}),
			OnInbound: app.Metrics.ObserveInbound,
			Logger:    app.Logger,
		})
		srv := &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		if exp := app.Config.Expiry; exp.Enabled {
			stop, err := cli.StartExpiry(exp.Schedule, &cli.ExpiryJob{
				Expirer:   app.Engine,
				MaxIdle:   exp.MaxIdle,
				Policy:    domain.InstanceEstado(exp.Policy),
				Logger:    app.Logger,
				OnExpired: app.Metrics.ObserveExpired,
			})
			if err != nil {
				return fmt.Errorf("invalid expiry schedule: %w", err)
			}
			defer stop()
			app.Logger.Info("idle expiry scheduled", "schedule", exp.Schedule, "max_idle", exp.MaxIdle, "policy", exp.Policy)
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			app.Logger.Info("starting flujos server", "addr", srv.Addr, "storage", app.Config.Storage.Driver)
			serverErrors <- srv.ListenAndServe()
		}()

		// Blocking main and waiting for shutdown.
		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case <-sigCtx.Done():
			app.Logger.Info("shutting down", "signal", sigCtx.Signal())

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				app.Logger.Error("graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("error killing server: %w", err)
				}
			}
			app.Logger.Info("flujos server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", "", "Address to listen on (overrides addr in the config)")
}
