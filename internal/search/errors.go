package search

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexNotFound indicates no index with the requested name is configured.
	ErrIndexNotFound = errors.New("search index not found")

	// ErrIndexDisabled indicates the index failed to initialize and cannot be used.
	ErrIndexDisabled = errors.New("search index is disabled")

	// ErrSourceNotFound indicates a referenced index source is not configured.
	ErrSourceNotFound = errors.New("index source not found")

	// ErrWriterClosed is returned for writes after the writer was closed.
	ErrWriterClosed = errors.New("index writer is closed")

	// ErrEmptyQuery indicates the query text has no searchable content.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrLockHeld indicates another process is updating the index.
	ErrLockHeld = errors.New("index is locked by another process")
)

// ConfigError reports a configuration problem of a single index or source.
// It disables that index or source only.
type ConfigError struct {
	Index  string
	Source string
	Err    error
}

func (e *ConfigError) Error() string {
	switch {
	case e.Index != "":
		return fmt.Sprintf("index %q: %v", e.Index, e.Err)
	case e.Source != "":
		return fmt.Sprintf("source %q: %v", e.Source, e.Err)
	default:
		return e.Err.Error()
	}
}

func (e *ConfigError) Unwrap() error { return e.Err }

// QueryError wraps a failure to evaluate a query together with the query text.
type QueryError struct {
	Index string
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("search on index %q failed for query %q: %v", e.Index, e.Query, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }
