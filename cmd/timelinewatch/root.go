package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"TimelineWatch/internal/app"
	"TimelineWatch/internal/config"
	"TimelineWatch/internal/logging"
)

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "timelinewatch",
		Short:         "Discover new posts on a social timeline and track activity windows",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				return os.Setenv("TIMELINEWATCH_CONFIG", cfgFile)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (default: $TIMELINEWATCH_CONFIG)")

	root.AddCommand(newRunCmd(), newScanCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Monitor the configured timeline until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

			application, err := app.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			if err := application.Run(cmd.Context()); err != nil {
				logger.Error("application stopped", "error", err)
				return err
			}
			return nil
		},
	}
}

func newScanCmd() *cobra.Command {
	var (
		profile  string
		logLevel string
	)
	cmd := &cobra.Command{
		Use:   "scan <snapshot.html>",
		Short: "Extract posts from a saved timeline snapshot and print them as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewWithWriter(cmd.ErrOrStderr(), logLevel, "text")
			res, err := app.ScanFile(cmd.Context(), profile, args[0], cmd.OutOrStdout(), logger)
			if err != nil {
				return err
			}
			logger.Info("snapshot scanned",
				"candidates", res.Candidates,
				"emitted", len(res.Emitted),
				"duplicates", res.DuplicateIDs+res.DuplicateContent,
				"failures", res.Failures)
			return nil
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "twitter", fmt.Sprintf("extraction profile %v", app.NewRegistry().Names()))
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level for diagnostics on stderr")
	return cmd
}
