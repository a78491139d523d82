package source

import (
	"strconv"
	"strings"
	"time"

	"github.com/kerbstat/kerbstat/internal/domain/model"
)

// RecordStats counts what record loading coerced or dropped.
type RecordStats struct {
	Loaded  int
	Dropped int // unusable identity or test date
}

// dateLayouts tried in order for date cells.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"02/01/2006",
}

// resultCodes maps raw result spellings to normalized codes.
var resultCodes = map[string]model.ResultCode{
	"P": model.ResultPass, "PASS": model.ResultPass, "PASSED": model.ResultPass,
	"F": model.ResultFail, "FAIL": model.ResultFail, "FAILED": model.ResultFail,
	"PRS": model.ResultPRS,
}

// fuelNames is the safety net for common short fuel codes; a fuel
// lookup table, when present, takes precedence.
var fuelNames = map[string]string{
	"PE": "petrol",
	"DI": "diesel",
	"EL": "electric",
	"HE": "hybrid",
}

// LoadRecords reads the primary test-record table. Missing required
// columns fail immediately; per-row parse problems coerce fields to
// unknown, and a row is dropped only when its identity or test date is
// unusable.
func LoadRecords(path string, fuelLookup map[string]string) ([]model.RawRecord, RecordStats, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, RecordStats{}, err
	}

	makeCol, err := t.requireColumn("make")
	if err != nil {
		return nil, RecordStats{}, err
	}
	modelCol, err := t.requireColumn("model")
	if err != nil {
		return nil, RecordStats{}, err
	}
	dateCol, err := t.requireColumn("test_date", "completed_date")
	if err != nil {
		return nil, RecordStats{}, err
	}
	odoCol, err := t.requireColumn("odometer", "test_mileage", "odometer_value")
	if err != nil {
		return nil, RecordStats{}, err
	}
	resultCol, err := t.requireColumn("result_code", "result", "test_result")
	if err != nil {
		return nil, RecordStats{}, err
	}
	fuelCol, err := t.requireColumn("fuel_code", "fuel_type_code", "fuel_type")
	if err != nil {
		return nil, RecordStats{}, err
	}

	// Optional columns; the capability descriptor reports what was found.
	unitCol := t.column("odometer_unit", "odometer_reading_units")
	firstRegCol := t.column("first_registration_date", "first_use_date")
	firstRegYearCol := t.column("first_registration_year", "first_use_year")
	ageCol := t.column("age_at_test", "age")
	failureCol := t.column("failure_code", "rfr_code")
	testIDCol := t.column("shared_test_id", "test_id", "test_number")

	var stats RecordStats
	records := make([]model.RawRecord, 0, len(t.rows))
	for _, row := range t.rows {
		mk := cell(row, makeCol)
		md := cell(row, modelCol)
		testDate, ok := parseDate(cell(row, dateCol))
		if mk == "" || md == "" || !ok {
			stats.Dropped++
			continue
		}

		rec := model.RawRecord{
			Make:         mk,
			Model:        md,
			TestDate:     testDate,
			AgeAtTest:    -1,
			Odometer:     parseNumber(cell(row, odoCol)),
			OdometerUnit: parseUnit(cell(row, unitCol)),
			Result:       parseResult(cell(row, resultCol)),
			FuelType:     fuelName(cell(row, fuelCol), fuelLookup),
			FailureCode:  cell(row, failureCol),
			TestID:       cell(row, testIDCol),
		}
		if d, ok := parseDate(cell(row, firstRegCol)); ok {
			rec.FirstRegDate = d
		}
		if y, err := strconv.Atoi(cell(row, firstRegYearCol)); err == nil && y > 0 {
			rec.FirstRegYear = y
		}
		if a, err := strconv.Atoi(cell(row, ageCol)); err == nil && a >= 0 {
			rec.AgeAtTest = a
		}

		records = append(records, rec)
		stats.Loaded++
	}
	return records, stats, nil
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// parseNumber coerces a reading to a number; thousands separators
// are common in source exports. Unparseable values become unknown.
func parseNumber(s string) float64 {
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseUnit(s string) model.OdometerUnit {
	switch strings.ToLower(s) {
	case "km", "kilometres", "kilometers":
		return model.UnitKilometres
	}
	return model.UnitMiles
}

func parseResult(s string) model.ResultCode {
	if code, ok := resultCodes[strings.ToUpper(s)]; ok {
		return code
	}
	return model.ResultUnknown
}

func fuelName(code string, lookup map[string]string) string {
	key := strings.ToUpper(code)
	if lookup != nil {
		if name, ok := lookup[key]; ok {
			return strings.ToLower(name)
		}
	}
	if name, ok := fuelNames[key]; ok {
		return name
	}
	return strings.ToLower(code)
}
