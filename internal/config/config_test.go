package config_test

import (
	"runtime"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/kerbstat/kerbstat/internal/config"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.LogLevel, convey.ShouldEqual, "info")
			convey.So(cfg.Source, convey.ShouldEqual, "dvsa")
			convey.So(cfg.ShardIndex, convey.ShouldEqual, -1)
			convey.So(cfg.ShardCount, convey.ShouldEqual, 1)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.MaxAge, convey.ShouldEqual, 40)
			convey.So(cfg.SampleCap, convey.ShouldEqual, 4096)
			convey.So(cfg.FuzzyThreshold, convey.ShouldEqual, 92)
		})
	})
}

func TestConfig_Paths(t *testing.T) {
	convey.Convey("Given a config with input paths", t, func() {
		cfg := config.New()
		cfg.RecordsPath = "/data/results.csv"
		cfg.AliasPath = "/data/aliases.csv"
		cfg.VEDTablePath = "/data/ved.yaml"

		convey.Convey("Then Paths mirrors them onto the source layer", func() {
			paths := cfg.Paths()
			convey.So(paths.Records, convey.ShouldEqual, "/data/results.csv")
			convey.So(paths.AliasTable, convey.ShouldEqual, "/data/aliases.csv")
			convey.So(paths.VEDTable, convey.ShouldEqual, "/data/ved.yaml")
			convey.So(paths.Recalls, convey.ShouldBeEmpty)
		})
	})
}
