package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	service "github.com/kerbstat/kerbstat/internal/app"
	"github.com/kerbstat/kerbstat/internal/config"
	"github.com/kerbstat/kerbstat/pkg/logger"
)

func newRunCommand(configFlag *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the cohort pipeline once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx, *configFlag)
			if err != nil {
				return err
			}
			if cfg.OutputDir == "" {
				return fmt.Errorf("%w: output_dir must not be empty", config.ErrInvalidConfig)
			}

			svc := service.New(cfg, service.WithLogger(logger.Get()))
			summary, err := svc.Run(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderRunSummary(summary))
			return nil
		},
	}
	return cmd
}

func renderRunSummary(s *service.RunSummary) string {
	rows := [][]string{
		{"Run", s.RunID},
		{"Records loaded", strconv.Itoa(s.RecordsLoaded)},
		{"Records dropped", strconv.Itoa(s.RecordsDropped)},
		{"Cohorts", strconv.Itoa(s.Cohorts)},
		{"Metric rows", strconv.Itoa(s.MetricRows)},
		{"Age unknown", strconv.Itoa(s.AgeUnknown)},
		{"Age degraded", strconv.Itoa(s.AgeDegraded)},
		{"Mileage discarded", strconv.Itoa(s.MileageDiscarded)},
		{"Failure mode", orDash(string(s.FailureMode))},
		{"Published", strconv.Itoa(s.Published)},
		{"Skipped", strconv.Itoa(s.Skipped)},
		{"Duration", s.Duration.Round(roundedDuration).String()},
	}
	out := renderTable([]string{"Stat", "Value"}, rows, []columnAlignment{alignLeft, alignRight})

	if len(s.Shards) > 1 {
		out += "\n" + renderShardTable(s)
	}
	return out
}

func renderShardTable(s *service.RunSummary) string {
	shards := make([]int, 0, len(s.Shards))
	for shard := range s.Shards {
		shards = append(shards, shard)
	}
	sort.Ints(shards)

	rows := make([][]string, 0, len(shards))
	for _, shard := range shards {
		counts := s.Shards[shard]
		rows = append(rows, []string{
			strconv.Itoa(shard),
			strconv.Itoa(counts.Published),
			strconv.Itoa(counts.Skipped),
		})
	}
	return renderTable([]string{"Shard", "Published", "Skipped"}, rows,
		[]columnAlignment{alignRight, alignRight, alignRight})
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
