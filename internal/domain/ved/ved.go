// Package ved computes indicative annual vehicle tax from CO2 figures
// and first-registration era, driven by a configured rate table.
package ved

import (
	"fmt"
	"strings"

	"github.com/kerbstat/kerbstat/internal/domain/model"
)

// Band is one CO2 interval with its annual rate. A band with MaxCO2 <= 0
// is the unbounded-high catch-all and must come last.
type Band struct {
	Label  string `koanf:"label"`
	MaxCO2 int    `koanf:"max_co2"`
	Annual int    `koanf:"annual"`
}

// FlatRates are the post-cutoff ongoing annual rates, which vary only
// by fuel class.
type FlatRates struct {
	Standard        int `koanf:"standard"`
	AlternativeFuel int `koanf:"alternative_fuel"`
}

// Supplement is the post-cutoff expensive-car addition. It applies to
// variants whose list price exceeds PriceFloor, from the year after
// first registration for Years years; the first year pays the banded
// first-year rate instead.
type Supplement struct {
	Annual     int `koanf:"annual"`
	Years      int `koanf:"years"`
	PriceFloor int `koanf:"price_floor"`
}

// Table is the full two-era rate configuration.
type Table struct {
	// EraStartYear and CutoverYear bound the CO2-banded era:
	// [EraStartYear, CutoverYear) is banded, CutoverYear onward is
	// flat-rate. Registrations before EraStartYear are unknown.
	EraStartYear int `koanf:"era_start_year"`
	CutoverYear  int `koanf:"cutover_year"`

	PreBands       []Band     `koanf:"pre_bands"`
	Flat           FlatRates  `koanf:"flat"`
	Supplement     Supplement `koanf:"supplement"`
	FirstYearBands []Band     `koanf:"first_year_bands"`
}

// Validate checks the table is usable: bands ascend and each era's last
// band is the catch-all.
func (t *Table) Validate() error {
	if t.EraStartYear <= 0 || t.CutoverYear <= t.EraStartYear {
		return fmt.Errorf("ved table: era years out of order (%d, %d)", t.EraStartYear, t.CutoverYear)
	}
	if t.Supplement.Annual > 0 && t.Supplement.Years <= 0 {
		return fmt.Errorf("ved table: supplement has a rate but no duration")
	}
	for _, bands := range [][]Band{t.PreBands, t.FirstYearBands} {
		prev := 0
		for i, b := range bands {
			last := i == len(bands)-1
			if b.MaxCO2 <= 0 && !last {
				return fmt.Errorf("ved table: unbounded band %q before end", b.Label)
			}
			if !last && b.MaxCO2 <= prev {
				return fmt.Errorf("ved table: band %q not ascending", b.Label)
			}
			prev = b.MaxCO2
		}
	}
	return nil
}

// alternativeFuel reports whether fuel falls in the discounted class.
// Petrol and diesel are standard; everything else (hybrid, electric,
// gas, unknown labels) takes the alternative-fuel rate.
func alternativeFuel(fuel string) bool {
	switch strings.ToLower(strings.TrimSpace(fuel)) {
	case "petrol", "diesel":
		return false
	}
	return true
}

// pick scans bands in ascending CO2 order and returns the first whose
// interval contains co2; the trailing catch-all takes the rest.
func pick(bands []Band, co2 float64) (Band, bool) {
	for i, b := range bands {
		if b.MaxCO2 <= 0 || co2 <= float64(b.MaxCO2) {
			return bands[i], true
		}
	}
	return Band{}, false
}

// Expensive reports whether a list price crosses the supplement
// threshold. An unset threshold means no price qualifies.
func (t *Table) Expensive(listPrice float64) bool {
	return t != nil && t.Supplement.PriceFloor > 0 && listPrice > float64(t.Supplement.PriceFloor)
}

// Quote computes the tax for one vehicle variant as of asOfYear.
// Missing or non-positive CO2, an era outside the table, or missing
// rate configuration all yield an unknown quote, never a zero one.
func (t *Table) Quote(co2 float64, firstRegYear, asOfYear int, fuel string, expensive bool) model.VEDQuote {
	if t == nil || co2 <= 0 || firstRegYear < t.EraStartYear {
		return model.VEDQuote{}
	}

	if firstRegYear < t.CutoverYear {
		band, ok := pick(t.PreBands, co2)
		if !ok {
			return model.VEDQuote{}
		}
		return model.VEDQuote{
			Known:     true,
			Band:      band.Label,
			Annual:    band.Annual,
			FirstYear: band.Annual,
		}
	}

	if t.Flat.Standard <= 0 {
		return model.VEDQuote{}
	}
	annual := t.Flat.Standard
	if alternativeFuel(fuel) && t.Flat.AlternativeFuel > 0 {
		annual = t.Flat.AlternativeFuel
	}
	q := model.VEDQuote{
		Known:  true,
		Band:   "Standard",
		Annual: annual,
	}
	if expensive && t.Supplement.Annual > 0 {
		// The supplement runs from the year after first registration
		// for the configured window, then lapses.
		age := asOfYear - firstRegYear
		if age >= 1 && age <= t.Supplement.Years {
			q.Supplement = t.Supplement.Annual
			q.Annual += t.Supplement.Annual
		}
	}
	if band, ok := pick(t.FirstYearBands, co2); ok {
		q.FirstYear = band.Annual
	}
	return q
}
