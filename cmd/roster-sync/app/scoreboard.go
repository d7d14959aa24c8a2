package app

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/acectf/roster-sync/internal/roster"
)

func newScoreboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scoreboard",
		Short: "Print the standings the next score push would send",
		RunE:  runScoreboard,
	}
	cmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	if err := cmd.MarkFlagRequired("config"); err != nil {
		panic(err)
	}
	return cmd
}

func runScoreboard(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	components, err := offlineComponents(ctx, cmd)
	if err != nil {
		return err
	}
	defer components.Close()

	standings, err := components.Scores.Preview(ctx)
	if err != nil {
		return fmt.Errorf("failed to read scoreboard: %w", err)
	}
	return renderStandings(cmd.OutOrStdout(), standings)
}

func renderStandings(w io.Writer, standings []roster.Standing) error {
	if len(standings) == 0 {
		_, err := fmt.Fprintln(w, "No ranked teams")
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header("Rank", "Team", "Score", "Local ID")
	for _, s := range standings {
		row := []string{
			strconv.Itoa(s.Rank),
			s.TeamName,
			strconv.FormatInt(s.Score, 10),
			strconv.FormatInt(s.TeamID, 10),
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}
