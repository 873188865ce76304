package errors

import (
	"fmt"
	"testing"
	"time"
)

func TestIsSkippable(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{"gone backend", NewBackendError(ErrorBackendGone, "vision", nil), true},
		{"rate limited", NewBackendError(ErrorRateLimited, "vision", nil), true},
		{"timeout", NewBackendError(ErrorBackendTimeout, "vision", nil), false},
		{"failed", NewBackendError(ErrorBackendFailed, "vision", nil), false},
		{"plain error", fmt.Errorf("boom"), false},
		{"nil", nil, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsSkippable(tc.err); got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestCodeOfUnwrapsChain(t *testing.T) {
	inner := NewBackendError(ErrorRateLimited, "vision", fmt.Errorf("429"))
	wrapped := fmt.Errorf("extract: %w", inner)

	if got := CodeOf(wrapped); got != ErrorRateLimited {
		t.Errorf("expected %s through the chain, got %s", ErrorRateLimited, got)
	}
	if got := CodeOf(fmt.Errorf("plain")); got != "" {
		t.Errorf("expected empty code for plain error, got %s", got)
	}
}

func TestPipelineErrorMessage(t *testing.T) {
	err := NewProcessingTimeoutError("run-1", 5*time.Minute, fmt.Errorf("ctx deadline"))

	if err.RunID != "run-1" {
		t.Errorf("expected run ID, got %q", err.RunID)
	}
	if err.Unwrap() == nil {
		t.Error("expected wrapped cause")
	}

	m := err.ToMap()
	if m["error_code"] != string(ErrorProcessingTimeout) {
		t.Errorf("expected code in map, got %v", m["error_code"])
	}
	if m["cause"] == nil {
		t.Error("expected cause in map")
	}
}
