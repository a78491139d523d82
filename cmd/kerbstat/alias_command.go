package main

import (
	"fmt"

	"github.com/spf13/cobra"

	service "github.com/kerbstat/kerbstat/internal/app"
	"github.com/kerbstat/kerbstat/internal/config"
	"github.com/kerbstat/kerbstat/pkg/logger"
)

func newAliasDiscoverCommand(configFlag *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alias-discover",
		Short: "Seed the alias table with uncurated make/model pairs",
		Long: "Scans the primary record source for make/model pairs the alias " +
			"table does not cover yet and appends seed rules for them, ready " +
			"for manual curation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx, *configFlag)
			if err != nil {
				return err
			}
			if cfg.AliasPath == "" {
				return fmt.Errorf("%w: alias_path must not be empty", config.ErrInvalidConfig)
			}

			svc := service.New(cfg, service.WithLogger(logger.Get()))
			rules, err := svc.DiscoverAliases(ctx)
			if err != nil {
				return err
			}
			if len(rules) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "alias table already covers every observed pair")
				return nil
			}

			rows := make([][]string, 0, len(rules))
			for _, rule := range rules {
				rows = append(rows, []string{
					rule.RawMake, rule.RawModel,
					rule.CanonicalMake, rule.CanonicalModel,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Raw make", "Raw model", "Canonical make", "Canonical model"},
				rows, nil))
			return nil
		},
	}
	return cmd
}
