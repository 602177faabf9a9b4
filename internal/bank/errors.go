package bank

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the pipeline stages.
var (
	// ErrRetriesExhausted signals that a transient failure outlived the retry ceiling.
	ErrRetriesExhausted = errors.New("fetch retries exhausted")
	// ErrStructure signals that an expected page anchor is missing (site format change).
	ErrStructure = errors.New("unexpected page structure")
	// ErrBatchPersistence signals that a batch transaction was rolled back.
	ErrBatchPersistence = errors.New("batch persistence failed")
	// ErrInvalidGiaType is returned for anything other than oge/ege.
	ErrInvalidGiaType = errors.New("invalid gia type")
	// ErrInvalidBatch is returned when a batch header is unusable.
	ErrInvalidBatch = errors.New("invalid batch")
)

// StatusError describes an HTTP response the fetcher treats as transient.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// FetchError is returned once a fetch gives up.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

// Unwrap exposes the underlying cause chain.
func (e *FetchError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Err}
}

// BatchError wraps the cause of a rolled back batch.
type BatchError struct {
	SubjectHash string
	Err         error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("persist batch for subject %s: %v", e.SubjectHash, e.Err)
}

// Unwrap exposes ErrBatchPersistence and the underlying cause.
func (e *BatchError) Unwrap() []error {
	return []error{ErrBatchPersistence, e.Err}
}

// StructureErrorf builds an error wrapping ErrStructure.
func StructureErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStructure, fmt.Sprintf(format, args...))
}
