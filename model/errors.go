// Package model - typed errors shared across the scanner core.
package model

import "fmt"

// UnsupportedEcosystemError is returned when a caller names an ecosystem
// outside the supported set. It is the only error that fails an individual
// scan call; everything else degrades to partial results.
type UnsupportedEcosystemError struct {
	Ecosystem string
}

func (e *UnsupportedEcosystemError) Error() string {
	return fmt.Sprintf("unsupported ecosystem %q", e.Ecosystem)
}

// SourceUnavailableError wraps a failure to reach one advisory source.
// The orchestrator logs it and continues with the remaining sources.
type SourceUnavailableError struct {
	Source string
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("advisory source %s unavailable: %v", e.Source, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// CacheIOError wraps a cache read or write failure. Reads treat it as a
// miss; writes log it and carry on.
type CacheIOError struct {
	Key string
	Op  string // "read" or "write"
	Err error
}

func (e *CacheIOError) Error() string {
	return fmt.Sprintf("cache %s failed for %s: %v", e.Op, e.Key, e.Err)
}

func (e *CacheIOError) Unwrap() error { return e.Err }
