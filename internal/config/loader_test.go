package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/kerbstat/kerbstat/internal/config"
)

func clearConfigEnvVars(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"KERBSTAT_CONFIG",
		"KERBSTAT_RECORDS_PATH",
		"KERBSTAT_OUTPUT_DIR",
		"KERBSTAT_SHARD_COUNT",
		"KERBSTAT_SHARD_INDEX",
		"KERBSTAT_WORKER_COUNT",
		"KERBSTAT_FUZZY_THRESHOLD",
		"KERBSTAT_LOG_LEVEL",
	} {
		_ = os.Unsetenv(key)
	}
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars(t)

		convey.Convey("When loading with only required paths in env", func() {
			t.Setenv("KERBSTAT_RECORDS_PATH", "/data/results.csv")
			t.Setenv("KERBSTAT_OUTPUT_DIR", "/data/out")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load with defaults filled in", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.RecordsPath, convey.ShouldEqual, "/data/results.csv")
				convey.So(cfg.OutputDir, convey.ShouldEqual, "/data/out")
				convey.So(cfg.ShardCount, convey.ShouldEqual, 1)
				convey.So(cfg.FuzzyThreshold, convey.ShouldEqual, 92)
			})
		})

		convey.Convey("When environment overrides tuning knobs", func() {
			t.Setenv("KERBSTAT_RECORDS_PATH", "/data/results.csv")
			t.Setenv("KERBSTAT_OUTPUT_DIR", "/data/out")
			t.Setenv("KERBSTAT_SHARD_COUNT", "5")
			t.Setenv("KERBSTAT_SHARD_INDEX", "2")
			t.Setenv("KERBSTAT_FUZZY_THRESHOLD", "95")
			t.Setenv("KERBSTAT_LOG_LEVEL", "debug")

			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.ShardCount, convey.ShouldEqual, 5)
			convey.So(cfg.ShardIndex, convey.ShouldEqual, 2)
			convey.So(cfg.FuzzyThreshold, convey.ShouldEqual, 95)
			convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
		})

		convey.Convey("When a YAML file is provided it layers under env", func() {
			dir := t.TempDir()
			path := filepath.Join(dir, "kerbstat.yaml")
			yaml := "records_path: /file/results.csv\noutput_dir: /file/out\nshard_count: 2\n"
			convey.So(os.WriteFile(path, []byte(yaml), 0o644), convey.ShouldBeNil)
			t.Setenv("KERBSTAT_CONFIG", path)
			t.Setenv("KERBSTAT_OUTPUT_DIR", "/env/out")

			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.RecordsPath, convey.ShouldEqual, "/file/results.csv")
			convey.So(cfg.OutputDir, convey.ShouldEqual, "/env/out")
			convey.So(cfg.ShardCount, convey.ShouldEqual, 2)
		})

		convey.Convey("When required paths are missing it fails validation", func() {
			_, err := config.Load(ctx)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the shard index is out of range it fails validation", func() {
			t.Setenv("KERBSTAT_RECORDS_PATH", "/data/results.csv")
			t.Setenv("KERBSTAT_OUTPUT_DIR", "/data/out")
			t.Setenv("KERBSTAT_SHARD_COUNT", "2")
			t.Setenv("KERBSTAT_SHARD_INDEX", "2")

			_, err := config.Load(ctx)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

func TestLoadVEDTable(t *testing.T) {
	convey.Convey("Given a tax table on disk", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "ved.yaml")
		yaml := `era_start_year: 2001
cutover_year: 2017
pre_bands:
  - label: A
    max_co2: 100
    annual: 0
  - label: M
    max_co2: 0
    annual: 695
flat:
  standard: 195
  alternative_fuel: 185
supplement:
  annual: 425
  years: 5
  price_floor: 40000
first_year_bands:
  - label: low
    max_co2: 100
    annual: 10
  - label: rest
    max_co2: 0
    annual: 220
`
		convey.So(os.WriteFile(path, []byte(yaml), 0o644), convey.ShouldBeNil)

		convey.Convey("When loaded it validates and carries the bands", func() {
			table, err := config.LoadVEDTable(path)
			convey.So(err, convey.ShouldBeNil)
			convey.So(table.CutoverYear, convey.ShouldEqual, 2017)
			convey.So(table.PreBands, convey.ShouldHaveLength, 2)
			convey.So(table.Flat.Standard, convey.ShouldEqual, 195)
			convey.So(table.Supplement.Years, convey.ShouldEqual, 5)
			convey.So(table.Supplement.PriceFloor, convey.ShouldEqual, 40000)
		})

		convey.Convey("When the file is absent loading fails", func() {
			_, err := config.LoadVEDTable(filepath.Join(dir, "missing.yaml"))
			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		})
	})
}
