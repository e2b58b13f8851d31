package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/flujos/internal/cli"
	"github.com/aretw0/flujos/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "flujos",
	Short: "Flujos runs conversational flows for messaging channels",
	Long: `Flujos executes node-and-edge conversation flows triggered by inbound messages
from WhatsApp, Instagram or web chat, and exposes an HTTP API to edit flows and
monitor conversations.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to flujos.yaml (default ./"+config.DefaultPath+" when present)")
	rootCmd.PersistentFlags().Bool("debug", false, "Log every node and adapter call")
}

// loadConfig reads the configuration named by --config. --debug forces the debug log level.
func loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Log.Level = "debug"
	}
	return cfg, cfg.Logger(), nil
}

// openApp loads the configuration and wires the engine.
func openApp(ctx context.Context, cmd *cobra.Command, opts cli.AppOptions) (*cli.App, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	opts.Debug, _ = cmd.Flags().GetBool("debug")
	return cli.NewApp(ctx, cfg, logger, opts)
}
