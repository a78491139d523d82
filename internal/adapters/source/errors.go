package source

import "errors"

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	// ErrMissingColumn means a required column is absent from the
	// primary record source. This is a contract violation and fails
	// the run.
	ErrMissingColumn = errors.New("required column missing")

	// ErrEmptySource means a table file exists but holds no data rows.
	ErrEmptySource = errors.New("source has no data rows")
)
