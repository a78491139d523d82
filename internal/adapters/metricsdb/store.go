// Package metricsdb persists the aggregated metrics table to SQLite so
// downstream consumers can query it without re-running the pipeline.
package metricsdb

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/kerbstat/kerbstat/internal/domain/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS cohort_metrics (
	run_id          TEXT NOT NULL,
	make            TEXT NOT NULL,
	model           TEXT NOT NULL,
	first_reg_year  INTEGER NOT NULL,
	age             INTEGER NOT NULL,
	fuel_type       TEXT NOT NULL,
	tests           INTEGER NOT NULL,
	passes          INTEGER NOT NULL,
	pass_rate       REAL NOT NULL,
	mileage_p50     REAL,
	mileage_p75     REAL,
	mileage_p90     REAL,
	PRIMARY KEY (run_id, make, model, first_reg_year, age, fuel_type)
);
CREATE INDEX IF NOT EXISTS idx_cohort_metrics_identity
	ON cohort_metrics (make, model, first_reg_year);
`

// Store writes aggregated metrics to a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the metrics database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open metrics db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init metrics schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// WriteMetrics replaces the rows for runID with the given metrics in
// one transaction, so re-running a shard or a whole run is idempotent.
func (s *Store) WriteMetrics(ctx context.Context, runID string, metrics []model.CohortMetric) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin metrics tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx, `DELETE FROM cohort_metrics WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("clear metrics for run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cohort_metrics
			(run_id, make, model, first_reg_year, age, fuel_type,
			 tests, passes, pass_rate, mileage_p50, mileage_p75, mileage_p90)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare metrics insert: %w", err)
	}
	defer stmt.Close()

	for i := range metrics {
		m := &metrics[i]
		var p50, p75, p90 any
		if m.HasMileage {
			p50, p75, p90 = m.P50, m.P75, m.P90
		}
		if _, err := stmt.ExecContext(ctx,
			runID, m.Cohort.Make, m.Cohort.Model, m.Cohort.FirstRegYear,
			m.Age, m.FuelType, m.Tests, m.Passes, m.PassRate,
			p50, p75, p90,
		); err != nil {
			return fmt.Errorf("insert metric row: %w", err)
		}
	}
	return tx.Commit()
}

// CohortMetrics reads back the age-ordered rows for one cohort in a
// run, with unknown mileage percentiles left at zero and HasMileage
// false.
func (s *Store) CohortMetrics(ctx context.Context, runID string, cohort model.Cohort) ([]model.CohortMetric, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT age, fuel_type, tests, passes, pass_rate,
		       mileage_p50, mileage_p75, mileage_p90
		FROM cohort_metrics
		WHERE run_id = ? AND make = ? AND model = ? AND first_reg_year = ?
		ORDER BY age, fuel_type`,
		runID, cohort.Make, cohort.Model, cohort.FirstRegYear)
	if err != nil {
		return nil, fmt.Errorf("query cohort metrics: %w", err)
	}
	defer rows.Close()

	var out []model.CohortMetric
	for rows.Next() {
		m := model.CohortMetric{Cohort: cohort}
		var p50, p75, p90 sql.NullFloat64
		if err := rows.Scan(&m.Age, &m.FuelType, &m.Tests, &m.Passes,
			&m.PassRate, &p50, &p75, &p90); err != nil {
			return nil, fmt.Errorf("scan cohort metric: %w", err)
		}
		if p50.Valid {
			m.HasMileage = true
			m.P50, m.P75, m.P90 = p50.Float64, p75.Float64, p90.Float64
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
