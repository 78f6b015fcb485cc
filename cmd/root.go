// Package cmd implements the kardex command line interface.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kardexlab/kardex/internal/app"
	"github.com/kardexlab/kardex/internal/config"
	"github.com/kardexlab/kardex/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "kardex",
	Short: "Kardex - incident knowledge lifecycle engine",
	Long: `Kardex receives problem reports, decides whether documented knowledge
already covers them, tracks open cases, and on resolution versions and
stores the resulting knowledge document for future reuse.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// initLogger builds the process logger. DEBUG in the environment enables
// debug level.
func initLogger() log.Logger {
	cfg := log.Config{}
	if os.Getenv("DEBUG") != "" {
		cfg.Level = slog.LevelDebug
	}
	logger := log.New(cfg)
	slog.SetDefault(logger)
	return logger
}

// withApp loads configuration, initializes the application and runs fn
// with a signal-aware context. Teardown is handled here.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	logger := initLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	return fn(ctx, a)
}

// printJSON renders a command result as indented JSON on stdout.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
