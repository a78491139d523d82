// Package source loads the pipeline's tabular inputs from CSV files
// and computes the run's capability descriptor for optional sources.
package source

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// table is a parsed CSV with header-based column access. Column names
// are matched case-insensitively with spaces and underscores ignored,
// since source vintages disagree on exact headings.
type table struct {
	header []string
	rows   [][]string
	index  map[string]int
}

func normalizeHeading(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "")
	return strings.ReplaceAll(h, "_", "")
}

// readTable parses a whole CSV file into memory. The pipeline is a
// bulk single-pass design; inputs are loaded up front.
func readTable(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // ragged rows are tolerated; cells are fetched by index
	all, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptySource)
	}

	t := &table{header: all[0], rows: all[1:], index: make(map[string]int, len(all[0]))}
	for i, h := range t.header {
		key := normalizeHeading(h)
		if _, dup := t.index[key]; !dup {
			t.index[key] = i
		}
	}
	return t, nil
}

// column finds the first matching alternative, or -1.
func (t *table) column(alts ...string) int {
	for _, a := range alts {
		if i, ok := t.index[normalizeHeading(a)]; ok {
			return i
		}
	}
	return -1
}

// requireColumn is column for contract-required fields.
func (t *table) requireColumn(alts ...string) (int, error) {
	if i := t.column(alts...); i >= 0 {
		return i, nil
	}
	return -1, fmt.Errorf("%w: none of %v present", ErrMissingColumn, alts)
}

// cell fetches a trimmed value, tolerating short rows and absent
// columns.
func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
