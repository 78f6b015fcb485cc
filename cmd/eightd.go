package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kardexlab/kardex/internal/app"
)

var eightDCmd = &cobra.Command{
	Use:   "8d [incidence-id]",
	Short: "Generate an 8D report for a resolved incidence",
	Long: `8d renders a resolved incidence as a formal 8D report: the incidence,
its report thread and the applied solution are handed to the model, which
produces the eight disciplines. The incidence must already be resolved.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			result, err := a.Agent.Generate8D(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Println(result.Document)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(eightDCmd)
}
