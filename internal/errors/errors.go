package errors

import (
	"errors"
	"fmt"
	"time"
)

// Base error types
var (
	ErrProbeFailed  = errors.New("probe failed")
	ErrStoreFailed  = errors.New("store failed")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeProbe      ErrorType = "probe"
	ErrorTypeStore      ErrorType = "store"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeInternal   ErrorType = "internal"
)

// PerfError is a structured error for performance monitoring operations
type PerfError struct {
	Type      ErrorType
	Op        string // Operation that failed (e.g., "read_memory", "append")
	Err       error  // Underlying error
	Timestamp time.Time
}

func (e *PerfError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s failed", e.Op)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *PerfError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface
func (e *PerfError) Is(target error) bool {
	if target == nil {
		return false
	}

	switch target {
	case ErrProbeFailed:
		return e.Type == ErrorTypeProbe
	case ErrStoreFailed:
		return e.Type == ErrorTypeStore
	case ErrInvalidInput:
		return e.Type == ErrorTypeValidation
	case ErrInternal:
		return e.Type == ErrorTypeInternal
	}

	return errors.Is(e.Err, target)
}

// NewPerfError creates a new PerfError
func NewPerfError(errorType ErrorType, op string, err error) *PerfError {
	return &PerfError{
		Type:      errorType,
		Op:        op,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// WrapProbeError wraps an OS reading failure
func WrapProbeError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewPerfError(ErrorTypeProbe, op, err)
}

// WrapStoreError wraps a time-series store failure
func WrapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewPerfError(ErrorTypeStore, op, err)
}

// NewValidationError reports malformed request parameters
func NewValidationError(op, format string, args ...any) error {
	return NewPerfError(ErrorTypeValidation, op, fmt.Errorf(format, args...))
}

// TypeOf returns the error category, or ErrorTypeInternal for unstructured errors
func TypeOf(err error) ErrorType {
	var perfErr *PerfError
	if errors.As(err, &perfErr) {
		return perfErr.Type
	}
	return ErrorTypeInternal
}

// IsValidationError checks if an error was caused by bad input
func IsValidationError(err error) bool {
	return err != nil && errors.Is(err, ErrInvalidInput)
}

// IsProbeError checks if an error came from an OS reading
func IsProbeError(err error) bool {
	return err != nil && errors.Is(err, ErrProbeFailed)
}

// IsStoreError checks if an error came from the time-series store
func IsStoreError(err error) bool {
	return err != nil && errors.Is(err, ErrStoreFailed)
}
