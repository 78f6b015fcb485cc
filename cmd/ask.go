package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kardexlab/kardex/internal/app"
)

var askCategory string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question against the knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		return withApp(func(ctx context.Context, a *app.App) error {
			result, err := a.Agent.Ask(ctx, question, askCategory)
			if err != nil {
				return err
			}

			if result.Answer != "" {
				fmt.Println(result.Answer)
			} else {
				fmt.Println("No answer could be generated.")
			}
			if len(result.SimilarCases) > 0 {
				fmt.Println("\nRelated documented cases:")
				for _, c := range result.SimilarCases {
					fmt.Printf("  %s (%s) relevance %.0f%%\n",
						c.Metadata.Version, c.Metadata.Title, c.Relevance*100)
				}
			}
			return nil
		})
	},
}

var (
	searchCategory string
	searchLimit    int
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the knowledge base for similar documented cases",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		return withApp(func(ctx context.Context, a *app.App) error {
			cases, err := a.Agent.Search(ctx, query, searchCategory, searchLimit)
			if err != nil {
				return err
			}
			return printJSON(cases)
		})
	},
}

func init() {
	askCmd.Flags().StringVarP(&askCategory, "category", "c", "", "restrict to a category")
	searchCmd.Flags().StringVarP(&searchCategory, "category", "c", "", "restrict to a category")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum results")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(searchCmd)
}
