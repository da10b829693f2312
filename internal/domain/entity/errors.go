package entity

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	ErrDecodeFailure    ErrorKind = "decode_failure"
	ErrEmbedding        ErrorKind = "embedding_error"
	ErrSQLSynthesis     ErrorKind = "sql_synthesis_error"
	ErrExecution        ErrorKind = "execution_error"
	ErrPartialFailure   ErrorKind = "ingestion_partial_failure"
	ErrCancelled        ErrorKind = "cancelled"
	ErrRowValidation    ErrorKind = "row_validation_error"
	ErrUnsupportedMedia ErrorKind = "unsupported_media_type"
)

// DomainError tags a failure with a machine-readable kind so callers can
// decide between skip-and-continue and abort.
type DomainError struct {
	Kind ErrorKind
	Item string
	Err  error
}

func (e *DomainError) Error() string {
	if e.Item != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Item, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func NewDomainError(kind ErrorKind, item string, err error) *DomainError {
	return &DomainError{Kind: kind, Item: item, Err: err}
}

// KindOf extracts the error kind, or empty string for untagged errors.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
