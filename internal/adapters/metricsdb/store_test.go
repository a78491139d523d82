package metricsdb_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kerbstat/kerbstat/internal/adapters/metricsdb"
	"github.com/kerbstat/kerbstat/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestStore(t *testing.T) {
	Convey("Given an open metrics store", t, func() {
		ctx := context.Background()
		store, err := metricsdb.Open(ctx, filepath.Join(t.TempDir(), "metrics.db"))
		So(err, ShouldBeNil)
		defer store.Close()

		fiesta := model.Cohort{
			Identity:     model.Identity{Make: "ford", Model: "fiesta"},
			FirstRegYear: 2013,
		}
		rows := []model.CohortMetric{
			{Cohort: fiesta, Age: 10, FuelType: "petrol", Tests: 1, Passes: 1, PassRate: 1, HasMileage: true, P50: 72, P75: 72, P90: 72},
			{Cohort: fiesta, Age: 11, FuelType: "petrol", Tests: 1, Passes: 0, PassRate: 0},
		}

		Convey("When writing and reading back a run", func() {
			So(store.WriteMetrics(ctx, "run-1", rows), ShouldBeNil)
			got, err := store.CohortMetrics(ctx, "run-1", fiesta)

			Convey("Then rows come back age-ordered with mileage intact", func() {
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 2)
				So(got[0].Age, ShouldEqual, 10)
				So(got[0].HasMileage, ShouldBeTrue)
				So(got[0].P50, ShouldEqual, 72)
				So(got[1].Age, ShouldEqual, 11)
				So(got[1].HasMileage, ShouldBeFalse)
			})
		})

		Convey("When writing the same run twice", func() {
			So(store.WriteMetrics(ctx, "run-1", rows), ShouldBeNil)
			So(store.WriteMetrics(ctx, "run-1", rows), ShouldBeNil)
			got, err := store.CohortMetrics(ctx, "run-1", fiesta)

			Convey("Then the write is idempotent", func() {
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 2)
			})
		})

		Convey("When querying an unknown cohort", func() {
			got, err := store.CohortMetrics(ctx, "run-1", model.Cohort{
				Identity: model.Identity{Make: "rover", Model: "75"}, FirstRegYear: 2004,
			})

			Convey("Then the result is empty", func() {
				So(err, ShouldBeNil)
				So(got, ShouldBeEmpty)
			})
		})
	})
}
