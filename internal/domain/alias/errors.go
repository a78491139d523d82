package alias

import "errors"

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	// ErrAliasCycle means the alias table contains a resolution cycle
	// and cannot be flattened. Detected at load time, never at query
	// time.
	ErrAliasCycle = errors.New("alias table contains a cycle")
)
