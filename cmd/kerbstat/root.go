package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/kerbstat/kerbstat/internal/config"
	"github.com/kerbstat/kerbstat/pkg/logger"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "kerbstat",
		Short:         "Vehicle inspection cohort pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newRunCommand(&configFlag))
	rootCmd.AddCommand(newAliasDiscoverCommand(&configFlag))

	return rootCmd
}

// loadConfig layers the optional --config file under the environment.
func loadConfig(ctx context.Context, configFlag string) (*config.Config, error) {
	if configFlag != "" {
		if err := os.Setenv("KERBSTAT_CONFIG", configFlag); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel))
		_ = logger.SetLevelString("info")
	}
	return cfg, nil
}
