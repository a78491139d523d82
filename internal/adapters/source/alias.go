package source

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/kerbstat/kerbstat/internal/domain/alias"
)

var aliasHeader = []string{"make_raw", "model_raw", "canonical_make", "canonical_model"}

// LoadAliasRules reads the curated alias table. The canonical columns
// are optional; absent means the raw values are canonical.
func LoadAliasRules(path string) ([]alias.Rule, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	makeCol, err := t.requireColumn("make_raw", "raw_make", "make")
	if err != nil {
		return nil, err
	}
	modelCol, err := t.requireColumn("model_raw", "raw_model", "model")
	if err != nil {
		return nil, err
	}
	canonMakeCol := t.column("canonical_make")
	canonModelCol := t.column("canonical_model")

	rules := make([]alias.Rule, 0, len(t.rows))
	for _, row := range t.rows {
		r := alias.Rule{
			RawMake:        cell(row, makeCol),
			RawModel:       cell(row, modelCol),
			CanonicalMake:  cell(row, canonMakeCol),
			CanonicalModel: cell(row, canonModelCol),
		}
		if r.RawMake == "" && r.RawModel == "" {
			continue
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// AppendAliasRules appends discovered rules to the table file, creating
// it with a header when absent. The table is append-only; existing rows
// are never rewritten. Callers must not run this concurrently with a
// resolution pass against the same file.
func AppendAliasRules(path string, rules []alias.Rule) error {
	if len(rules) == 0 {
		return nil
	}

	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open alias table: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(aliasHeader); err != nil {
			return fmt.Errorf("write alias header: %w", err)
		}
	}
	for _, r := range rules {
		row := []string{r.RawMake, r.RawModel, r.CanonicalMake, r.CanonicalModel}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("append alias rule: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}
