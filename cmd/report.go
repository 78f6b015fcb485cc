package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kardexlab/kardex/internal/app"
)

var (
	reportCategory string
	reportAuthor   string
)

var reportCmd = &cobra.Command{
	Use:   "report [description]",
	Short: "Report a problem and get a reuse-or-new decision",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description := strings.Join(args, " ")
		return withApp(func(ctx context.Context, a *app.App) error {
			result, err := a.Agent.ReceiveProblem(ctx, description, reportCategory, reportAuthor)
			if err != nil {
				return err
			}
			return printJSON(result)
		})
	},
}

var noteAuthor string

var noteCmd = &cobra.Command{
	Use:   "note [incidence-id] [content]",
	Short: "Add a report to a tracked incidence",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		content := strings.Join(args[1:], " ")
		return withApp(func(ctx context.Context, a *app.App) error {
			report, err := a.Agent.AddReport(ctx, id, noteAuthor, content)
			if err != nil {
				return err
			}
			return printJSON(report)
		})
	},
}

func init() {
	reportCmd.Flags().StringVarP(&reportCategory, "category", "c", "", "problem category (e.g. SOLDADURA)")
	reportCmd.Flags().StringVarP(&reportAuthor, "reporter", "r", "", "who reports the problem")
	_ = reportCmd.MarkFlagRequired("category")
	_ = reportCmd.MarkFlagRequired("reporter")

	noteCmd.Flags().StringVarP(&noteAuthor, "author", "a", "", "report author")

	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(noteCmd)
}
