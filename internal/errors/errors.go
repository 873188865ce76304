package errors

import (
	"errors"
	"fmt"
	"time"
)

/**
 * Custom error types for the inscription recognition worker.
 *
 * The taxonomy mirrors the fallback policy of the pipeline:
 * - configuration absent excludes a backend, never raises
 * - gone/rate-limited backends are skipped without capture
 * - timeouts and application errors are captured and the next backend is tried
 * - total extraction failure terminates the run
 * - everything else degrades output instead of failing
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Backend errors
	ErrorBackendGone    ErrorCode = "BACKEND_GONE"
	ErrorRateLimited    ErrorCode = "RATE_LIMITED"
	ErrorBackendTimeout ErrorCode = "BACKEND_TIMEOUT"
	ErrorBackendFailed  ErrorCode = "BACKEND_FAILED"

	// Pipeline errors
	ErrorExtractionFailed  ErrorCode = "EXTRACTION_FAILED"
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"

	// Storage errors
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"
)

// PipelineError represents a structured pipeline error
type PipelineError struct {
	Code      ErrorCode
	Message   string
	RunID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Factory functions for common errors

func NewBackendError(code ErrorCode, backend string, cause error) *PipelineError {
	return &PipelineError{
		Code:      code,
		Message:   fmt.Sprintf("backend %s failed", backend),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"backend": backend,
		},
		Cause: cause,
	}
}

func NewExtractionFailedError(runID string, cause error) *PipelineError {
	return &PipelineError{
		Code:      ErrorExtractionFailed,
		Message:   "text extraction failed: the image may be too damaged or no recognition backend is available",
		RunID:     runID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewProcessingTimeoutError(runID string, duration time.Duration, cause error) *PipelineError {
	return &PipelineError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("processing timed out after %v", duration),
		RunID:     runID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewStorageFailedError(runID string, cause error) *PipelineError {
	return &PipelineError{
		Code:      ErrorStorageFailed,
		Message:   "failed to store processing results",
		RunID:     runID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// CodeOf extracts the ErrorCode from an error chain, or "" when none is present.
func CodeOf(err error) ErrorCode {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsSkippable reports whether a backend error means "advance to the next
// configuration without capturing it": the capability does not exist at this
// endpoint, or the endpoint is rate limited.
func IsSkippable(err error) bool {
	code := CodeOf(err)
	return code == ErrorBackendGone || code == ErrorRateLimited
}

// ToMap converts error to map for database storage
func (e *PipelineError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
