package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kardexlab/kardex/api"
	"github.com/kardexlab/kardex/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(runServe)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, a *app.App) error {
	server, err := api.NewServer(api.ServerConfig{
		Agent:  a.Agent,
		DBPool: a.DBPool,
		Logger: a.Logger,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	return server.ListenAndServe(ctx, a.Config.ListenAddr)
}
