package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/acectf/roster-sync/internal/app"
	"github.com/acectf/roster-sync/internal/config"
	pkgsync "github.com/acectf/roster-sync/internal/sync"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a sync job once",
		Long: `Run one reconciliation or score push pass outside of the server and print its report.
Only the registration credentials and the storage settings are read from the config file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}
	cmd.PersistentFlags().String("config", "", "Path to configuration file (YAML format, required)")
	if err := cmd.MarkPersistentFlagRequired("config"); err != nil {
		panic(err)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "teams",
		Short: "Reconcile the local roster with the registration service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSyncJob(cmd, pkgsync.JobTeamSync)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "scores",
		Short: "Push the local scoreboard to the registration service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSyncJob(cmd, pkgsync.JobScoreSync)
		},
	})
	return cmd
}

// offlineComponents builds the sync engines without the HTTP server
func offlineComponents(ctx context.Context, cmd *cobra.Command) (*app.AppComponents, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return app.NewSyncComponents(ctx, app.WithConfig(cfg))
}

func runSyncJob(cmd *cobra.Command, job string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	components, err := offlineComponents(ctx, cmd)
	if err != nil {
		return err
	}
	defer components.Close()

	slog.InfoContext(ctx, "Running sync job", "job", job)
	report, err := components.SyncManager.TryRun(ctx, job)
	if err != nil {
		return fmt.Errorf("%s failed: %w", job, err)
	}

	output, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format report: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(output))
	return err
}
