package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kardexlab/kardex/internal/app"
)

var (
	resolveSolution  string
	resolveRootCause string
	resolveActions   string
	resolveResolver  string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [incidence-id]",
	Short: "Resolve an incidence and inherit its knowledge",
	Long: `Resolve closes an incidence: the knowledge document is rendered from the
incidence and its reports, the next version for the category is allocated,
the document is stored in the knowledge base, and the incidence is marked
resolved. An incidence can only be resolved once.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			result, err := a.Agent.ResolveIncidence(ctx, args[0],
				resolveSolution, resolveRootCause, resolveActions, resolveResolver)
			if err != nil {
				return err
			}
			return printJSON(result)
		})
	},
}

func init() {
	resolveCmd.Flags().StringVarP(&resolveSolution, "solution", "s", "", "applied solution")
	resolveCmd.Flags().StringVar(&resolveRootCause, "root-cause", "", "root cause analysis")
	resolveCmd.Flags().StringVar(&resolveActions, "actions", "", "preventive actions")
	resolveCmd.Flags().StringVarP(&resolveResolver, "resolver", "r", "", "who resolved the incidence")
	_ = resolveCmd.MarkFlagRequired("solution")
	_ = resolveCmd.MarkFlagRequired("resolver")

	rootCmd.AddCommand(resolveCmd)
}
