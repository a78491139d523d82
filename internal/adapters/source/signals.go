package source

import (
	"strconv"
	"strings"
)

// RecallRow is one recall-table row. Count defaults to 1 when the
// source lists individual recalls rather than per-year totals.
type RecallRow struct {
	Make  string
	Model string
	Year  int
	Count int
}

// EmissionsRow is one emissions/tax panel row, keyed by a year range.
type EmissionsRow struct {
	Make      string
	Model     string
	YearFrom  int
	YearTo    int
	FuelType  string
	CO2GKm    float64
	MPG       float64
	TestCycle string
	ListPrice float64
}

// LoadRecalls reads the recall table. Rows without a usable year are
// skipped; a missing count column means one recall per row.
func LoadRecalls(path string) ([]RecallRow, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	makeCol, err := t.requireColumn("make")
	if err != nil {
		return nil, err
	}
	modelCol, err := t.requireColumn("model", "recalls_model_information")
	if err != nil {
		return nil, err
	}
	yearCol, err := t.requireColumn("event_year", "year", "recall_year")
	if err != nil {
		return nil, err
	}
	countCol := t.column("count", "recalls")

	out := make([]RecallRow, 0, len(t.rows))
	for _, row := range t.rows {
		year, err := strconv.Atoi(cell(row, yearCol))
		if err != nil || year <= 0 {
			continue
		}
		r := RecallRow{
			Make:  cell(row, makeCol),
			Model: cell(row, modelCol),
			Year:  year,
			Count: 1,
		}
		if n, err := strconv.Atoi(cell(row, countCol)); err == nil && n > 0 {
			r.Count = n
		}
		if r.Make == "" || r.Model == "" {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// LoadEmissions reads the emissions/tax panel table. A missing
// year-to means the range is the single year-from. Non-numeric CO2 or
// MPG values are coerced to unknown (zero), not dropped.
func LoadEmissions(path string) ([]EmissionsRow, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	makeCol, err := t.requireColumn("make", "manufacturer")
	if err != nil {
		return nil, err
	}
	modelCol, err := t.requireColumn("model")
	if err != nil {
		return nil, err
	}
	yearFromCol, err := t.requireColumn("year_from", "yearfrom", "start_year")
	if err != nil {
		return nil, err
	}
	yearToCol := t.column("year_to", "yearto", "end_year")
	fuelCol, err := t.requireColumn("fuel_type", "fuel")
	if err != nil {
		return nil, err
	}
	co2Col, err := t.requireColumn("co2", "co2_gkm", "co2 (g/km)")
	if err != nil {
		return nil, err
	}
	mpgCol := t.column("mpg", "mpg_combined", "combined mpg")
	cycleCol := t.column("test_cycle", "test_type", "cycle")
	priceCol := t.column("list_price", "price", "list price")

	out := make([]EmissionsRow, 0, len(t.rows))
	for _, row := range t.rows {
		yearFrom, err := strconv.Atoi(cell(row, yearFromCol))
		if err != nil || yearFrom <= 0 {
			continue
		}
		r := EmissionsRow{
			Make:      cell(row, makeCol),
			Model:     cell(row, modelCol),
			YearFrom:  yearFrom,
			YearTo:    yearFrom,
			FuelType:  strings.ToLower(cell(row, fuelCol)),
			CO2GKm:    parseNumber(cell(row, co2Col)),
			MPG:       parseNumber(cell(row, mpgCol)),
			TestCycle: strings.ToUpper(cell(row, cycleCol)),
			ListPrice: parseNumber(cell(row, priceCol)),
		}
		if yearTo, err := strconv.Atoi(cell(row, yearToCol)); err == nil && yearTo >= yearFrom {
			r.YearTo = yearTo
		}
		if r.Make == "" || r.Model == "" {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// LoadFuelLookup reads an optional fuel code -> label table.
func LoadFuelLookup(path string) (map[string]string, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	codeCol, err := t.requireColumn("fuel_type_code", "fuel_code", "code")
	if err != nil {
		return nil, err
	}
	nameCol, err := t.requireColumn("fuel_type", "description", "name")
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(t.rows))
	for _, row := range t.rows {
		code := strings.ToUpper(cell(row, codeCol))
		if code == "" {
			continue
		}
		out[code] = cell(row, nameCol)
	}
	return out, nil
}
