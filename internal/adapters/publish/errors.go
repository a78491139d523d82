package publish

import "errors"

// ErrNoCohorts is returned when a publish run receives no metric rows.
var ErrNoCohorts = errors.New("no cohorts to publish")
