package ved_test

import (
	"testing"

	"github.com/kerbstat/kerbstat/internal/domain/ved"
	. "github.com/smartystreets/goconvey/convey"
)

func testTable() *ved.Table {
	return &ved.Table{
		EraStartYear: 2001,
		CutoverYear:  2017,
		PreBands: []ved.Band{
			{Label: "A", MaxCO2: 100, Annual: 0},
			{Label: "B", MaxCO2: 110, Annual: 20},
			{Label: "C", MaxCO2: 120, Annual: 35},
			{Label: "M", MaxCO2: 0, Annual: 695},
		},
		Flat:       ved.FlatRates{Standard: 195, AlternativeFuel: 185},
		Supplement: ved.Supplement{Annual: 425, Years: 5, PriceFloor: 40000},
		FirstYearBands: []ved.Band{
			{Label: "0-50", MaxCO2: 50, Annual: 10},
			{Label: "51-75", MaxCO2: 75, Annual: 130},
			{Label: "76+", MaxCO2: 0, Annual: 540},
		},
	}
}

func TestValidate(t *testing.T) {
	Convey("Given rate tables", t, func() {
		Convey("When the table is well formed", func() {
			So(testTable().Validate(), ShouldBeNil)
		})

		Convey("When bands are not ascending", func() {
			tbl := testTable()
			tbl.PreBands[1].MaxCO2 = 90
			So(tbl.Validate(), ShouldNotBeNil)
		})

		Convey("When an unbounded band is not last", func() {
			tbl := testTable()
			tbl.PreBands[0].MaxCO2 = 0
			So(tbl.Validate(), ShouldNotBeNil)
		})

		Convey("When the supplement has a rate but no duration", func() {
			tbl := testTable()
			tbl.Supplement.Years = 0
			So(tbl.Validate(), ShouldNotBeNil)
		})
	})
}

func TestQuote(t *testing.T) {
	Convey("Given a loaded rate table", t, func() {
		tbl := testTable()

		Convey("When quoting a pre-cutoff registration", func() {
			q := tbl.Quote(105, 2010, 2024, "petrol", false)

			Convey("Then the containing CO2 band applies", func() {
				So(q.Known, ShouldBeTrue)
				So(q.Band, ShouldEqual, "B")
				So(q.Annual, ShouldEqual, 20)
			})

			Convey("Then high emitters land in the catch-all", func() {
				q := tbl.Quote(400, 2012, 2024, "diesel", false)
				So(q.Band, ShouldEqual, "M")
				So(q.Annual, ShouldEqual, 695)
			})

			Convey("Then a boundary value stays in its band", func() {
				So(tbl.Quote(100, 2010, 2024, "petrol", false).Band, ShouldEqual, "A")
			})
		})

		Convey("When quoting a post-cutoff registration", func() {
			Convey("Then petrol pays the flat standard rate", func() {
				q := tbl.Quote(120, 2019, 2024, "petrol", false)
				So(q.Known, ShouldBeTrue)
				So(q.Band, ShouldEqual, "Standard")
				So(q.Annual, ShouldEqual, 195)
			})

			Convey("Then hybrids take the alternative-fuel discount", func() {
				So(tbl.Quote(90, 2019, 2024, "hybrid", false).Annual, ShouldEqual, 185)
			})

			Convey("Then expensive cars carry the supplement inside its window", func() {
				q := tbl.Quote(120, 2019, 2024, "petrol", true)
				So(q.Annual, ShouldEqual, 195+425)
				So(q.Supplement, ShouldEqual, 425)
			})

			Convey("Then the supplement skips the first year", func() {
				q := tbl.Quote(120, 2019, 2019, "petrol", true)
				So(q.Annual, ShouldEqual, 195)
				So(q.Supplement, ShouldEqual, 0)
			})

			Convey("Then the supplement lapses after its window", func() {
				q := tbl.Quote(120, 2017, 2024, "petrol", true)
				So(q.Annual, ShouldEqual, 195)
				So(q.Supplement, ShouldEqual, 0)
			})

			Convey("Then the price floor decides what counts as expensive", func() {
				So(tbl.Expensive(45000), ShouldBeTrue)
				So(tbl.Expensive(40000), ShouldBeFalse)
				bare := testTable()
				bare.Supplement.PriceFloor = 0
				So(bare.Expensive(45000), ShouldBeFalse)
			})

			Convey("Then the first-year rate is still CO2-banded", func() {
				So(tbl.Quote(60, 2019, 2024, "petrol", false).FirstYear, ShouldEqual, 130)
				So(tbl.Quote(200, 2019, 2024, "petrol", false).FirstYear, ShouldEqual, 540)
			})
		})

		Convey("When inputs are unusable", func() {
			Convey("Then non-positive CO2 yields unknown, not zero", func() {
				So(tbl.Quote(0, 2010, 2024, "petrol", false).Known, ShouldBeFalse)
				So(tbl.Quote(-5, 2019, 2024, "petrol", false).Known, ShouldBeFalse)
			})

			Convey("Then registrations before the banded era are unknown", func() {
				So(tbl.Quote(150, 1998, 2024, "petrol", false).Known, ShouldBeFalse)
			})

			Convey("Then a missing flat rate is unknown", func() {
				bare := testTable()
				bare.Flat.Standard = 0
				So(bare.Quote(150, 2019, 2024, "petrol", false).Known, ShouldBeFalse)
			})
		})
	})
}
