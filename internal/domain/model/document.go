package model

// CurvePoint is one age-indexed entry of a published cohort curve.
type CurvePoint struct {
	Age      int     `json:"age"`
	Tests    int     `json:"tests"`
	PassRate float64 `json:"pass_rate"`

	Mileage *MileagePanel `json:"mileage,omitempty"`
}

// MileagePanel holds mileage percentiles in thousand miles.
type MileagePanel struct {
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P90 float64 `json:"p90"`
}

// FailureBucket is one entry of the published failure mix, largest
// share first.
type FailureBucket struct {
	Bucket string  `json:"bucket"`
	Share  float64 `json:"share"`
}

// EmissionsPanel is the published form of an emissions variant.
type EmissionsPanel struct {
	Fuel         string   `json:"fuel"`
	CO2GKm       float64  `json:"co2_gkm"`
	MPG          *float64 `json:"mpg,omitempty"`
	TestCycle    string   `json:"test_cycle,omitempty"`
	VEDBand      string   `json:"ved_band,omitempty"`
	VEDAnnual    *int     `json:"ved_annual,omitempty"`
	VEDFirstYear *int     `json:"ved_first_year,omitempty"`
}

// RecallPanel is the published form of one recall-timeline point.
type RecallPanel struct {
	Year  int `json:"year"`
	Count int `json:"count"`
}

// DocumentMeta carries provenance for a published document.
type DocumentMeta struct {
	RunID       string           `json:"run_id"`
	Source      string           `json:"source"`
	FailureMode FailureShareMode `json:"failure_mode,omitempty"`
	Shard       int              `json:"shard"`
}

// CohortDocument is the final published artifact for one cohort.
type CohortDocument struct {
	Make         string `json:"make"`
	Model        string `json:"model"`
	MakeSlug     string `json:"make_slug"`
	ModelSlug    string `json:"model_slug"`
	FirstRegYear int    `json:"first_reg_year"`

	Fuels      []string         `json:"fuels"`
	Curve      []CurvePoint     `json:"mot_curve"`
	FailureMix []FailureBucket  `json:"fail_mix,omitempty"`
	Emissions  []EmissionsPanel `json:"co2_panel,omitempty"`
	Recalls    []RecallPanel    `json:"recalls,omitempty"`

	Meta DocumentMeta `json:"meta"`
}
