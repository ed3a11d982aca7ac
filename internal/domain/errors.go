package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrUnsupportedTimeframe = errors.New("timeframe not supported by exchange")
)

// ValidationError reports a malformed request. No I/O is attempted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// StorageError wraps a persistence layer failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NetworkError is a transient transport failure talking to the exchange.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RateLimitError is returned when the exchange rejects a call for exceeding
// its request budget. RetryAfter is zero when the exchange gave no hint.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// ContinuityError means a merged chunk has gaps or duplicates that the
// overlap classification does not explain. It is never retried.
type ContinuityError struct {
	Symbol    string
	Timeframe string
	Timestamp time.Time
	Reason    string
}

func (e *ContinuityError) Error() string {
	return fmt.Sprintf("continuity: %s %s at %s: %s",
		e.Symbol, e.Timeframe, e.Timestamp.UTC().Format(time.RFC3339), e.Reason)
}

// ChunkError attaches chunk context to a failure inside the collector.
type ChunkError struct {
	RequestID string
	ChunkID   string
	Index     int
	Err       error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("request %s chunk %d (%s): %v", e.RequestID, e.Index, e.ChunkID, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a transient exchange failure.
func IsRetryable(err error) bool {
	var netErr *NetworkError
	var rlErr *RateLimitError
	return errors.As(err, &netErr) || errors.As(err, &rlErr)
}
