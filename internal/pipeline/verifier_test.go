/**
 * Verification post-processor tests
 */

package pipeline

import (
	"context"
	"fmt"
	"testing"
)

type fakeVerifier struct {
	plausible bool
	err       error
	calls     int
}

func (f *fakeVerifier) Verify(ctx context.Context, text, scriptType string) (bool, error) {
	f.calls++
	return f.plausible, f.err
}

func TestRefinePlausibleRaisesConfidence(t *testing.T) {
	p := NewPostProcessor(&fakeVerifier{plausible: true})
	in := ExtractionResult{Text: "道法自然", Confidence: 0.80, Method: MethodLocalVision}

	out := p.Refine(context.Background(), in, "Seal Script")

	if !almostEqual(out.Confidence, 0.85) {
		t.Errorf("expected confidence 0.85, got %f", out.Confidence)
	}
	if out.Text != in.Text {
		t.Error("verification must never mutate the text")
	}
	if out.Method != in.Method {
		t.Errorf("verification must keep the extraction method, got %s", out.Method)
	}
}

func TestRefineCappedAtNinetyFive(t *testing.T) {
	p := NewPostProcessor(&fakeVerifier{plausible: true})
	in := ExtractionResult{Text: "道", Confidence: 0.93, Method: MethodPrimaryVision}

	out := p.Refine(context.Background(), in, "Seal Script")

	if !almostEqual(out.Confidence, 0.95) {
		t.Errorf("expected cap at 0.95, got %f", out.Confidence)
	}
}

func TestRefineNeverLowers(t *testing.T) {
	p := NewPostProcessor(&fakeVerifier{plausible: true})
	in := ExtractionResult{Text: "道", Confidence: 0.97, Method: MethodPrimaryVision}

	out := p.Refine(context.Background(), in, "Seal Script")

	if out.Confidence < in.Confidence {
		t.Errorf("confidence must never be lowered: %f -> %f", in.Confidence, out.Confidence)
	}
}

func TestRefineUnchangedCases(t *testing.T) {
	testCases := []struct {
		name     string
		verifier Verifier
		in       ExtractionResult
	}{
		{
			name:     "implausible verdict",
			verifier: &fakeVerifier{plausible: false},
			in:       ExtractionResult{Text: "scrambled", Confidence: 0.80, Method: MethodLocalVision},
		},
		{
			name:     "probe error",
			verifier: &fakeVerifier{err: fmt.Errorf("unreachable")},
			in:       ExtractionResult{Text: "道", Confidence: 0.80, Method: MethodLocalVision},
		},
		{
			name:     "no verifier configured",
			verifier: nil,
			in:       ExtractionResult{Text: "道", Confidence: 0.80, Method: MethodLocalVision},
		},
		{
			name:     "sample fallback skipped",
			verifier: &fakeVerifier{plausible: true},
			in:       ExtractionResult{Text: "道", Confidence: 0.10, Method: MethodNone},
		},
		{
			name:     "empty text skipped",
			verifier: &fakeVerifier{plausible: true},
			in:       ExtractionResult{Confidence: 0, Method: MethodLocalVision},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out := NewPostProcessor(tc.verifier).Refine(context.Background(), tc.in, "Seal Script")
			if out != tc.in {
				t.Errorf("expected result unchanged, got %+v", out)
			}
		})
	}
}
