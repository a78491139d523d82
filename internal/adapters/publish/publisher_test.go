package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/kerbstat/kerbstat/internal/domain/model"
	"github.com/kerbstat/kerbstat/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

// capturingLogger records entries so tests can inspect skip context.
type capturingLogger struct {
	mu      sync.Mutex
	entries []capturedEntry
}

type capturedEntry struct {
	msg    string
	fields map[string]any
}

func (c *capturingLogger) record(msg string, fields []logger.Field) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kv := make(map[string]any, len(fields))
	for _, f := range fields {
		kv[f.Key] = f.Value
	}
	c.entries = append(c.entries, capturedEntry{msg: msg, fields: kv})
}

func (c *capturingLogger) Debug(_ context.Context, msg string, fields ...logger.Field) {
	c.record(msg, fields)
}

func (c *capturingLogger) Info(_ context.Context, msg string, fields ...logger.Field) {
	c.record(msg, fields)
}

func (c *capturingLogger) Warn(_ context.Context, msg string, fields ...logger.Field) {
	c.record(msg, fields)
}

func (c *capturingLogger) Error(_ context.Context, msg string, fields ...logger.Field) {
	c.record(msg, fields)
}

func (c *capturingLogger) Named(string) logger.Logger { return c }

func (c *capturingLogger) byMessage(msg string) []capturedEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []capturedEntry
	for _, e := range c.entries {
		if e.msg == msg {
			out = append(out, e)
		}
	}
	return out
}

func fiestaCohort() model.Cohort {
	return model.Cohort{
		Identity:     model.Identity{Make: "ford", Model: "fiesta"},
		FirstRegYear: 2013,
	}
}

func fiestaCurve() []model.CohortMetric {
	cohort := fiestaCohort()
	return []model.CohortMetric{
		{Cohort: cohort, Age: 10, FuelType: "petrol", Tests: 1, Passes: 1, PassRate: 1,
			HasMileage: true, P50: 72, P75: 72, P90: 72},
		{Cohort: cohort, Age: 11, FuelType: "petrol", Tests: 1, Passes: 0, PassRate: 0},
	}
}

type staticSignal struct {
	signal model.ExternalSignal
}

func (s staticSignal) Join(model.Identity, int) model.ExternalSignal { return s.signal }

func TestAssemble(t *testing.T) {
	Convey("Given a cohort with metric rows, a failure share, and external panels", t, func() {
		cohort := fiestaCohort()
		share := &model.FailureShare{
			Cohort: cohort,
			Mode:   model.ShareModeLinked,
			Shares: map[string]float64{"brakes": 1.0},
		}
		signal := model.ExternalSignal{
			Recalls: []model.RecallEvent{{Year: 2016, Count: 2}},
			Emissions: []model.EmissionsVariant{{
				FuelType: "petrol", CO2GKm: 99, MPG: 65.7, TestCycle: "NEDC",
				VED: model.VEDQuote{Known: true, Band: "A", Annual: 0},
			}},
		}
		meta := model.DocumentMeta{RunID: "run-1", Source: "dvsa", Shard: 0}

		Convey("When the document is assembled", func() {
			doc, err := Assemble(cohort, fiestaCurve(), share, signal, meta)
			So(err, ShouldBeNil)

			Convey("Then identity, slugs, and year are set", func() {
				So(doc.Make, ShouldEqual, "Ford")
				So(doc.Model, ShouldEqual, "Fiesta")
				So(doc.MakeSlug, ShouldEqual, "ford")
				So(doc.ModelSlug, ShouldEqual, "fiesta")
				So(doc.FirstRegYear, ShouldEqual, 2013)
			})

			Convey("Then the curve is age ordered with mileage on the age that has it", func() {
				So(doc.Curve, ShouldHaveLength, 2)
				So(doc.Curve[0].Age, ShouldEqual, 10)
				So(doc.Curve[0].PassRate, ShouldEqual, 1)
				So(doc.Curve[0].Mileage, ShouldNotBeNil)
				So(doc.Curve[0].Mileage.P50, ShouldEqual, 72)
				So(doc.Curve[1].Age, ShouldEqual, 11)
				So(doc.Curve[1].PassRate, ShouldEqual, 0)
				So(doc.Curve[1].Mileage, ShouldBeNil)
			})

			Convey("Then the failure mix carries the share and its mode", func() {
				So(doc.FailureMix, ShouldHaveLength, 1)
				So(doc.FailureMix[0].Bucket, ShouldEqual, "brakes")
				So(doc.FailureMix[0].Share, ShouldEqual, 1.0)
				So(doc.Meta.FailureMode, ShouldEqual, model.ShareModeLinked)
			})

			Convey("Then the external panels survive", func() {
				So(doc.Recalls, ShouldHaveLength, 1)
				So(doc.Recalls[0].Year, ShouldEqual, 2016)
				So(doc.Recalls[0].Count, ShouldEqual, 2)
				So(doc.Emissions, ShouldHaveLength, 1)
				So(doc.Emissions[0].CO2GKm, ShouldEqual, 99)
				So(doc.Emissions[0].VEDBand, ShouldEqual, "A")
				So(*doc.Emissions[0].MPG, ShouldEqual, 65.7)
				So(doc.Fuels, ShouldResemble, []string{"petrol"})
			})
		})

		Convey("When rows of the same age span fuels they merge into one point", func() {
			curve := []model.CohortMetric{
				{Cohort: cohort, Age: 5, FuelType: "petrol", Tests: 3, Passes: 3},
				{Cohort: cohort, Age: 5, FuelType: "diesel", Tests: 1, Passes: 0},
			}
			doc, err := Assemble(cohort, curve, nil, model.ExternalSignal{}, meta)
			So(err, ShouldBeNil)
			So(doc.Curve, ShouldHaveLength, 1)
			So(doc.Curve[0].Tests, ShouldEqual, 4)
			So(doc.Curve[0].PassRate, ShouldEqual, 0.75)
			So(doc.Fuels, ShouldResemble, []string{"diesel", "petrol"})
		})

		Convey("When the failure share has many buckets only the largest five publish", func() {
			big := &model.FailureShare{
				Cohort: cohort,
				Mode:   model.ShareModeLinked,
				Shares: map[string]float64{
					"brakes": 0.30, "lighting": 0.25, "tyres": 0.15, "suspension": 0.12,
					"steering": 0.08, "visibility": 0.06, "body": 0.04,
				},
			}
			doc, err := Assemble(cohort, fiestaCurve(), big, model.ExternalSignal{}, meta)
			So(err, ShouldBeNil)
			So(doc.FailureMix, ShouldHaveLength, 5)
			So(doc.FailureMix[0].Bucket, ShouldEqual, "brakes")
			So(doc.FailureMix[4].Bucket, ShouldEqual, "steering")
		})

		Convey("When the curve is empty assembly fails", func() {
			_, err := Assemble(cohort, nil, nil, model.ExternalSignal{}, meta)
			So(err, ShouldNotBeNil)
		})

		Convey("When the identity produces no slug assembly fails", func() {
			bad := model.Cohort{Identity: model.Identity{Make: "??", Model: "??"}, FirstRegYear: 2013}
			curve := []model.CohortMetric{{Cohort: bad, Age: 3, Tests: 1, Passes: 1}}
			_, err := Assemble(bad, curve, nil, model.ExternalSignal{}, meta)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestPublish(t *testing.T) {
	Convey("Given a publisher over a temp directory", t, func() {
		dir := t.TempDir()
		p := New(dir, WithRunID("run-7"), WithSource("dvsa"))

		Convey("When a cohort publishes", func() {
			share := []model.FailureShare{{
				Cohort: fiestaCohort(),
				Mode:   model.ShareModeLinked,
				Shares: map[string]float64{"brakes": 1.0},
			}}
			summary, err := p.Publish(context.Background(), fiestaCurve(), share, staticSignal{})
			So(err, ShouldBeNil)
			So(summary.Published, ShouldEqual, 1)
			So(summary.Skipped, ShouldEqual, 0)

			Convey("Then the document lands at make-slug/model-slug/year.json", func() {
				data, err := os.ReadFile(p.DocumentPath(fiestaCohort()))
				So(err, ShouldBeNil)

				var doc model.CohortDocument
				So(json.Unmarshal(data, &doc), ShouldBeNil)
				So(doc.MakeSlug, ShouldEqual, "ford")
				So(doc.FirstRegYear, ShouldEqual, 2013)
				So(doc.Meta.RunID, ShouldEqual, "run-7")
				So(doc.Meta.Source, ShouldEqual, "dvsa")
				So(doc.FailureMix[0].Bucket, ShouldEqual, "brakes")
			})
		})

		Convey("When a cohort cannot assemble it is skipped and the rest publish", func() {
			logs := &capturingLogger{}
			p := New(dir, WithRunID("run-7"), WithSource("dvsa"), WithLogger(logs))
			bad := model.Cohort{Identity: model.Identity{Make: "??", Model: "??"}, FirstRegYear: 2014}
			rows := append(fiestaCurve(), model.CohortMetric{Cohort: bad, Age: 4, Tests: 2, Passes: 1})
			summary, err := p.Publish(context.Background(), rows, nil, nil)
			So(err, ShouldBeNil)
			So(summary.Published, ShouldEqual, 1)
			So(summary.Skipped, ShouldEqual, 1)

			Convey("Then the skip log names the cohort and its shard", func() {
				warns := logs.byMessage("skipping cohort")
				So(warns, ShouldHaveLength, 1)
				So(warns[0].fields["make"], ShouldEqual, "??")
				So(warns[0].fields["model"], ShouldEqual, "??")
				So(warns[0].fields["first_reg_year"], ShouldEqual, 2014)
				So(warns[0].fields["shard"], ShouldEqual, 0)
				So(warns[0].fields["error"], ShouldNotBeNil)
			})
		})

		Convey("When there is nothing to publish it reports ErrNoCohorts", func() {
			_, err := p.Publish(context.Background(), nil, nil, nil)
			So(err, ShouldEqual, ErrNoCohorts)
		})
	})
}

func TestShardPartition(t *testing.T) {
	Convey("Given forty cohorts across distinct identities", t, func() {
		var rows []model.CohortMetric
		var cohorts []model.Cohort
		for i := 0; i < 40; i++ {
			cohort := model.Cohort{
				Identity:     model.Identity{Make: "make" + fmt.Sprint(i%7), Model: "model" + fmt.Sprint(i)},
				FirstRegYear: 2010 + i%5,
			}
			cohorts = append(cohorts, cohort)
			rows = append(rows, model.CohortMetric{Cohort: cohort, Age: 6, Tests: 10, Passes: 8})
		}

		for _, shardCount := range []int{1, 2, 5} {
			shardCount := shardCount
			Convey(fmt.Sprintf("When published across %d shard runs", shardCount), func() {
				seen := make(map[model.Cohort]int)
				for index := 0; index < shardCount; index++ {
					p := New(t.TempDir(), WithShard(index, shardCount))
					summary, err := p.Publish(context.Background(), rows, nil, nil)
					So(err, ShouldBeNil)
					So(summary.Skipped, ShouldEqual, 0)
					for _, cohort := range cohorts {
						if _, statErr := os.Stat(p.DocumentPath(cohort)); statErr == nil {
							seen[cohort]++
						}
					}
				}

				Convey("Then every cohort lands in exactly one shard", func() {
					So(len(seen), ShouldEqual, len(cohorts))
					for _, n := range seen {
						So(n, ShouldEqual, 1)
					}
				})
			})
		}

		Convey("And shard assignment ignores the registration year", func() {
			p := New(t.TempDir(), WithShard(AllShards, 5))
			id := model.Identity{Make: "ford", Model: "fiesta"}
			So(p.ShardIndex(id), ShouldEqual, p.ShardIndex(id))
			So(p.ShardIndex(id), ShouldBeBetweenOrEqual, 0, 4)
		})
	})
}
