/**
 * OCR Orchestrator fallback chain tests
 *
 * Validates backend ordering, skip-versus-capture error policy, empty-text
 * handling and exhaustion behaviour against fake providers.
 */

package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/epigraphia/inscription-worker/internal/errors"
)

// fakeProvider is a scripted vision backend.
type fakeProvider struct {
	name      string
	method    ExtractionMethod
	weight    float64
	available bool
	text      string
	err       error
	calls     int
}

func (f *fakeProvider) Name() string             { return f.name }
func (f *fakeProvider) Method() ExtractionMethod { return f.method }
func (f *fakeProvider) Weight() float64          { return f.weight }
func (f *fakeProvider) Available() bool          { return f.available }
func (f *fakeProvider) Extract(ctx context.Context, image []byte) (string, error) {
	f.calls++
	return f.text, f.err
}

func TestExtractFirstSuccessWins(t *testing.T) {
	first := &fakeProvider{name: "tesseract", method: MethodLocalVision, weight: 0.80, available: true, text: "道法自然"}
	second := &fakeProvider{name: "primary-vision", method: MethodPrimaryVision, weight: 0.90, available: true, text: "unused"}

	o := NewOCROrchestrator([]VisionProvider{first, second}, time.Second)
	result := o.Extract(context.Background(), []byte("img"))

	if result.Text != "道法自然" {
		t.Fatalf("expected first provider's text, got %q", result.Text)
	}
	if result.Method != MethodLocalVision {
		t.Errorf("expected method %s, got %s", MethodLocalVision, result.Method)
	}
	if result.Confidence != 0.80 {
		t.Errorf("expected confidence 0.80, got %f", result.Confidence)
	}
	if second.calls != 0 {
		t.Errorf("second provider should not have been invoked, got %d calls", second.calls)
	}
}

func TestExtractSkipsUnavailableProviders(t *testing.T) {
	unavailable := &fakeProvider{name: "primary-vision", method: MethodPrimaryVision, weight: 0.90, available: false, text: "never"}
	available := &fakeProvider{name: "auxiliary-vision", method: MethodAuxiliaryVision, weight: 0.85, available: true, text: "text"}

	o := NewOCROrchestrator([]VisionProvider{unavailable, available}, time.Second)
	result := o.Extract(context.Background(), []byte("img"))

	if unavailable.calls != 0 {
		t.Errorf("unavailable provider must never be invoked, got %d calls", unavailable.calls)
	}
	if result.Method != MethodAuxiliaryVision {
		t.Errorf("expected method %s, got %s", MethodAuxiliaryVision, result.Method)
	}
}

func TestExtractFallbackPolicy(t *testing.T) {
	goneErr := errors.NewBackendError(errors.ErrorBackendGone, "primary-vision", fmt.Errorf("404"))
	rateErr := errors.NewBackendError(errors.ErrorRateLimited, "auxiliary-vision", fmt.Errorf("429"))
	appErr := fmt.Errorf("model refused the request")

	testCases := []struct {
		name      string
		providers []*fakeProvider
		wantText  string
		wantErr   string
	}{
		{
			name: "gone backend skipped without capture",
			providers: []*fakeProvider{
				{name: "a", method: MethodPrimaryVision, weight: 0.90, available: true, err: goneErr},
			},
			wantErr: "no extraction backend is configured or available",
		},
		{
			name: "rate limited skipped without capture",
			providers: []*fakeProvider{
				{name: "a", method: MethodPrimaryVision, weight: 0.90, available: true, err: rateErr},
			},
			wantErr: "no extraction backend is configured or available",
		},
		{
			name: "application error captured",
			providers: []*fakeProvider{
				{name: "a", method: MethodPrimaryVision, weight: 0.90, available: true, err: appErr},
			},
			wantErr: appErr.Error(),
		},
		{
			name: "empty text captured as soft failure",
			providers: []*fakeProvider{
				{name: "a", method: MethodPrimaryVision, weight: 0.90, available: true, text: "   "},
			},
			wantErr: "a returned empty text",
		},
		{
			name: "error then success",
			providers: []*fakeProvider{
				{name: "a", method: MethodPrimaryVision, weight: 0.90, available: true, err: appErr},
				{name: "b", method: MethodAuxiliaryVision, weight: 0.85, available: true, text: "recovered"},
			},
			wantText: "recovered",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			providers := make([]VisionProvider, len(tc.providers))
			for i, p := range tc.providers {
				providers[i] = p
			}

			result := NewOCROrchestrator(providers, time.Second).Extract(context.Background(), []byte("img"))

			if tc.wantText != "" {
				if result.Text != tc.wantText {
					t.Fatalf("expected text %q, got %q", tc.wantText, result.Text)
				}
				return
			}

			if result.Method != MethodNone {
				t.Errorf("expected MethodNone on exhaustion, got %s", result.Method)
			}
			if result.Confidence != 0 {
				t.Errorf("expected zero confidence on exhaustion, got %f", result.Confidence)
			}
			if result.Error != tc.wantErr {
				t.Errorf("expected captured error %q, got %q", tc.wantErr, result.Error)
			}
		})
	}
}

func TestExtractNoProvidersConfigured(t *testing.T) {
	o := NewOCROrchestrator(nil, time.Second)
	result := o.Extract(context.Background(), []byte("img"))

	if result.Method != MethodNone || result.Error == "" {
		t.Fatalf("expected exhaustion result, got %+v", result)
	}
}

func TestExtractNoRetryWithinProvider(t *testing.T) {
	failing := &fakeProvider{name: "a", method: MethodPrimaryVision, weight: 0.90, available: true, err: fmt.Errorf("boom")}

	NewOCROrchestrator([]VisionProvider{failing}, time.Second).Extract(context.Background(), []byte("img"))

	if failing.calls != 1 {
		t.Fatalf("provider must be invoked exactly once, got %d calls", failing.calls)
	}
}
