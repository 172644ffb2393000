package models

import (
	"errors"
	"fmt"
)

var (
	// ErrIngestion marks a malformed or unreadable course document.
	ErrIngestion = errors.New("ingestion error")
	// ErrCourseNotFound marks a course name that matched nothing usable.
	ErrCourseNotFound = errors.New("course not found")
	// ErrRetrieval marks an index or embedding failure.
	ErrRetrieval = errors.New("retrieval failure")
	// ErrModelCall marks a failed language model round-trip.
	ErrModelCall = errors.New("model call failure")
	// ErrConfiguration marks invalid static configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrToolNotFound marks a dispatch to an unregistered tool.
	ErrToolNotFound = errors.New("tool not found")
	// ErrDuplicateTool marks a second registration under the same name.
	ErrDuplicateTool = fmt.Errorf("%w: duplicate tool", ErrConfiguration)
)

// IngestionError reports why one course file could not be ingested.
type IngestionError struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

func (e *IngestionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ingest %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("ingest %s: %s", e.Path, e.Reason)
}

func (e *IngestionError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrIngestion, e.Err}
	}
	return []error{ErrIngestion}
}
