package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kardexlab/kardex/internal/app"
	"github.com/kardexlab/kardex/internal/lifecycle"
)

var (
	versionsCategory string
	versionsLimit    int
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "Show the version ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			records, err := a.Agent.VersionHistory(ctx, versionsCategory, versionsLimit)
			if err != nil {
				return err
			}
			return printJSON(records)
		})
	},
}

var (
	incidencesStatus   string
	incidencesCategory string
	incidencesLimit    int
)

var incidencesCmd = &cobra.Command{
	Use:   "incidences",
	Short: "List tracked incidences",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			incidences, err := a.Agent.Incidences(ctx,
				lifecycle.IncidenceStatus(incidencesStatus), incidencesCategory, incidencesLimit)
			if err != nil {
				return err
			}
			return printJSON(incidences)
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base and incidence statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			stats, err := a.Agent.SystemStats(ctx)
			if err != nil {
				return err
			}
			return printJSON(stats)
		})
	},
}

func init() {
	versionsCmd.Flags().StringVarP(&versionsCategory, "category", "c", "", "restrict to a category")
	versionsCmd.Flags().IntVarP(&versionsLimit, "limit", "n", 0, "maximum records")

	incidencesCmd.Flags().StringVarP(&incidencesStatus, "status", "s", "", "filter by status (open, documenting, resolved)")
	incidencesCmd.Flags().StringVarP(&incidencesCategory, "category", "c", "", "filter by category")
	incidencesCmd.Flags().IntVarP(&incidencesLimit, "limit", "n", 0, "maximum records")

	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(incidencesCmd)
	rootCmd.AddCommand(statsCmd)
}
