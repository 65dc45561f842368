package errors

import (
	"errors"
	"fmt"
	"time"
)

// Base error types
var (
	ErrNotFound         = errors.New("not found")
	ErrTimeout          = errors.New("timeout")
	ErrInvalidInput     = errors.New("invalid input")
	ErrConnectionFailed = errors.New("connection failed")
	ErrNoHandle         = errors.New("no probe handle")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeConnection ErrorType = "connection"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeRPC        ErrorType = "rpc"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeInternal   ErrorType = "internal"
)

// ProbeError is a structured error for endpoint probing operations
type ProbeError struct {
	Type      ErrorType
	Op        string // Operation that failed (e.g. "eth_blockNumber", "probe")
	Endpoint  string // Endpoint ID where the error occurred
	Err       error  // Underlying error
	Timestamp time.Time
	Retryable bool
}

func (e *ProbeError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("%s failed on %s: %v", e.Op, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface
func (e *ProbeError) Is(target error) bool {
	if target == nil {
		return false
	}

	switch target {
	case ErrTimeout:
		return e.Type == ErrorTypeTimeout
	case ErrConnectionFailed:
		return e.Type == ErrorTypeConnection
	case ErrInvalidInput:
		return e.Type == ErrorTypeValidation
	}

	return errors.Is(e.Err, target)
}

// NewProbeError creates a new ProbeError
func NewProbeError(errorType ErrorType, op, endpoint string, err error) *ProbeError {
	return &ProbeError{
		Type:      errorType,
		Op:        op,
		Endpoint:  endpoint,
		Err:       err,
		Timestamp: time.Now(),
		Retryable: isRetryable(errorType),
	}
}

func isRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeConnection, ErrorTypeTimeout:
		return true
	case ErrorTypeValidation:
		return false
	default:
		return true
	}
}

// WrapConnectionError wraps a connection error with context
func WrapConnectionError(op, endpoint string, err error) error {
	return NewProbeError(ErrorTypeConnection, op, endpoint, err)
}

// WrapRPCError wraps a JSON-RPC level error with context
func WrapRPCError(op, endpoint string, err error) error {
	return NewProbeError(ErrorTypeRPC, op, endpoint, err)
}

// WrapTimeoutError wraps a timeout with context
func WrapTimeoutError(op, endpoint string, err error) error {
	return NewProbeError(ErrorTypeTimeout, op, endpoint, err)
}

// IsRetryableError checks if an error should be retried
func IsRetryableError(err error) bool {
	var probeErr *ProbeError
	if errors.As(err, &probeErr) {
		return probeErr.Retryable
	}

	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrConnectionFailed)
}

// TypeOf returns the error category, or ErrorTypeInternal for
// unclassified errors.
func TypeOf(err error) ErrorType {
	var probeErr *ProbeError
	if errors.As(err, &probeErr) {
		return probeErr.Type
	}

	if errors.Is(err, ErrTimeout) {
		return ErrorTypeTimeout
	}
	if errors.Is(err, ErrConnectionFailed) {
		return ErrorTypeConnection
	}
	return ErrorTypeInternal
}
