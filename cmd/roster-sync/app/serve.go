package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/acectf/roster-sync/internal/app"
	"github.com/acectf/roster-sync/internal/config"
	"github.com/acectf/roster-sync/internal/telemetry"
	"github.com/acectf/roster-sync/internal/versions"
)

const (
	defaultGracefulTimeout  = 30 * time.Second
	telemetryShutdownBudget = 5 * time.Second
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the roster-sync server",
		Long: `Start the HTTP server and the periodic sync jobs.

The server requires a configuration file (--config) that specifies:
- the registration service URL and admin credentials
- the sync intervals and the team email domain
- the webhook and SSO secrets
- the storage backend (database or memory)

See the examples/ directory for sample configurations.`,
		RunE: runServe,
	}

	cmd.Flags().String("address", ":8080", "Address to listen on")
	cmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	if err := viper.BindPFlag("address", cmd.Flags().Lookup("address")); err != nil {
		slog.Error("Failed to bind address flag", "error", err)
	}
	if err := viper.BindPFlag("config", cmd.Flags().Lookup("config")); err != nil {
		slog.Error("Failed to bind config flag", "error", err)
	}
	if err := cmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Failed to mark config flag as required", "error", err)
	}
	return cmd
}

// loadServerConfig reads the configuration and checks the secrets the server needs
func loadServerConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(config.WithConfigPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.ValidateSecrets(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	address := viper.GetString("address")
	configPath := viper.GetString("config")

	slog.Info("Starting roster-sync", "address", address, "version", versions.Version)

	cfg, err := loadServerConfig(configPath)
	if err != nil {
		return err
	}
	slog.Info("Loaded configuration",
		"path", configPath,
		"registration", cfg.Registration.BaseURL,
		"storage", cfg.Storage.GetType())

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetryShutdownBudget)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown telemetry", "error", err)
		}
	}()

	rosterApp, err := app.NewRosterApp(ctx,
		app.WithConfig(cfg),
		app.WithAddress(address),
		app.WithMeterProvider(tel.MeterProvider()),
		app.WithTracerProvider(tel.TracerProvider()),
		app.WithMetricsHandler(tel.MetricsHandler()),
	)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- rosterApp.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			_ = rosterApp.Stop(defaultGracefulTimeout)
			return fmt.Errorf("server failed: %w", err)
		}
	}

	if err := rosterApp.Stop(defaultGracefulTimeout); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	slog.Info("Server shutdown complete")
	return nil
}
