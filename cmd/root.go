/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"creatorguard/internal/bootstrap/logging"
	"creatorguard/internal/errs"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:          "creatorguard",
	Short:        "Content moderation queue for creator uploads",
	Long:         "Scans creator uploads against model reference anchors, queues scan jobs and serves the moderation admin API.",
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	// The configured level and format replace this logger once config is loaded.
	level := os.Getenv("CG_LOGGING_LEVEL")
	format := os.Getenv("CG_LOGGING_FORMAT")
	logger, err := logging.NewLogger(rootCmd.ErrOrStderr(), level, format)
	if err != nil {
		logger = slog.New(slog.NewTextHandler(rootCmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	ctx = logging.WithLogger(ctx, logger)
	ctx = logging.WithAttrs(ctx, slog.String("app", "creatorguard"))

	rootCmd.SetContext(ctx)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.Error(ctx, "command execution failed", slog.Any("err", errs.Loggable(err)))
		return errs.Wrap(err, "execute root command")
	}

	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file path (default configs/config.yaml when present)")
}
