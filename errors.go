package mediacache

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	// ErrUnknownType is returned when an operation names a cache type that
	// does not exist.
	ErrUnknownType = errors.New("unknown cache type")

	// errCorruptEntry marks a metadata record that could not be decoded.
	// It is always recovered internally by treating the entry as absent.
	errCorruptEntry = errors.New("corrupt cache metadata")
)

// WriteError reports a failed attempt to persist a cache entry, e.g. a full
// disk or a permission problem. Callers should degrade gracefully: the
// produced result is still valid, it just was not memoized.
type WriteError struct {
	Type Type
	Key  string
	Err  error
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	return fmt.Sprintf("cache write %s/%s: %v", e.Type, e.Key, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *WriteError) Unwrap() error {
	return e.Err
}

// ConfigError reports invalid cache configuration. It is only returned when
// the cache is opened, never mid-run.
type ConfigError struct {
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid cache configuration: %s", e.Reason)
}
