// Package model contains domain types passed between pipeline stages.
package model

import "time"

// ResultCode is a normalized test outcome.
type ResultCode string

// Normalized test outcomes. PRS (pass after rectification at station)
// counts as a test but not as a pass.
const (
	ResultPass    ResultCode = "P"
	ResultFail    ResultCode = "F"
	ResultPRS     ResultCode = "PRS"
	ResultUnknown ResultCode = ""
)

// OdometerUnit identifies the unit a raw odometer reading was taken in.
type OdometerUnit string

const (
	UnitMiles      OdometerUnit = "mi"
	UnitKilometres OdometerUnit = "km"
)

// RawRecord is one inspection event as handed over by the ingestion
// collaborator. Immutable once ingested.
type RawRecord struct {
	Make         string
	Model        string
	TestDate     time.Time
	FirstRegDate time.Time // zero when unknown
	FirstRegYear int       // year-only fallback when the full date is unknown
	AgeAtTest    int       // explicit supplied age; negative when unknown
	Odometer     float64   // raw reading; <= 0 means unknown
	OdometerUnit OdometerUnit
	Result       ResultCode
	FuelType     string
	FailureCode  string // optional
	TestID       string // optional shared test identifier
}

// Identity is a canonical (make, model) pair: lowercase, accent
// stripped, noise tokens removed. It is the stable join key across
// every source.
type Identity struct {
	Make  string
	Model string
}

// Cohort is the aggregation key.
type Cohort struct {
	Identity
	FirstRegYear int
}

// AgeSource records how a record's age at test was derived. Anything
// other than AgeSourceDates is an accuracy degradation and is carried
// through so consumers can see it.
type AgeSource int

const (
	AgeSourceUnknown AgeSource = iota
	AgeSourceDates             // test date minus first registration date
	AgeSourceExplicit          // supplied age field
	AgeSourceYearDiff          // test year minus first registration year
	AgeSourceTestYearOnly      // test year alone; excluded from age curves
)

// CohortMetric is one aggregated row keyed by (cohort, age, fuel).
type CohortMetric struct {
	Cohort   Cohort
	Age      int
	FuelType string

	Tests    int
	Passes   int
	PassRate float64

	// Mileage percentiles in thousand miles. Undefined when no usable
	// odometer readings contributed (HasMileage false).
	HasMileage bool
	P50        float64
	P75        float64
	P90        float64
}

// FailureShareMode tells how a cohort's failure shares were computed.
type FailureShareMode string

const (
	// ShareModeLinked means shares were computed from failure items
	// joined to this cohort's own test records.
	ShareModeLinked FailureShareMode = "linked"
	// ShareModeGlobal means no per-test linkage existed and a single
	// corpus-wide distribution was broadcast to every cohort.
	ShareModeGlobal FailureShareMode = "global_approx"
)

// FailureShare maps failure categories to fractions in [0,1] for one
// cohort. Shares sum to at most 1; an empty map means no failure data.
type FailureShare struct {
	Cohort Cohort
	Mode   FailureShareMode
	Shares map[string]float64
}

// RecallEvent is one recall-timeline point.
type RecallEvent struct {
	Year  int
	Count int
}

// EmissionsVariant is one emissions/tax panel entry for a cohort.
type EmissionsVariant struct {
	FuelType  string
	CO2GKm    float64
	MPG       float64
	TestCycle string
	ListPrice float64

	VED VEDQuote
}

// VEDQuote is the tax-band computation result for one variant.
// Unknown quotes carry Known=false and zero rates.
type VEDQuote struct {
	Known      bool
	Band       string
	Annual     int
	FirstYear  int
	Supplement int
}

// ExternalSignal bundles the optional per-cohort panels. Every field
// may be empty; absence of a source is a valid state, not an error.
type ExternalSignal struct {
	Recalls   []RecallEvent
	Emissions []EmissionsVariant
}
