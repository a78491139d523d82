package source

// FailureItem is one raw failure/defect occurrence, optionally carrying
// the shared test identifier that links it to a test record.
type FailureItem struct {
	TestID string
	Code   string
}

// LoadFailureLookup reads the failure-code metadata table into a
// code -> section map for the classifier.
func LoadFailureLookup(path string) (map[string]string, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	codeCol, err := t.requireColumn("code", "rfr_code", "rfr_id", "item_id", "defect_id")
	if err != nil {
		return nil, err
	}
	sectionCol, err := t.requireColumn("section", "item_section", "category")
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(t.rows))
	for _, row := range t.rows {
		code := cell(row, codeCol)
		if code == "" {
			continue
		}
		out[code] = cell(row, sectionCol)
	}
	return out, nil
}

// LoadFailureItems reads the failure items table. The shared test id
// column is optional; hasLinkage reports whether it was present with
// at least one non-empty value, which is the sole signal deciding the
// share-computation mode.
func LoadFailureItems(path string) (items []FailureItem, hasLinkage bool, err error) {
	t, err := readTable(path)
	if err != nil {
		return nil, false, err
	}
	codeCol, err := t.requireColumn("failure_code", "rfr_code", "rfr_id", "code")
	if err != nil {
		return nil, false, err
	}
	testIDCol := t.column("shared_test_id", "test_id", "test_number")

	items = make([]FailureItem, 0, len(t.rows))
	for _, row := range t.rows {
		code := cell(row, codeCol)
		if code == "" {
			continue
		}
		it := FailureItem{Code: code, TestID: cell(row, testIDCol)}
		if it.TestID != "" {
			hasLinkage = true
		}
		items = append(items, it)
	}
	return items, hasLinkage, nil
}
