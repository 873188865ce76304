/**
 * Text Post-Processor - verification pass
 *
 * Optionally validates extraction plausibility via a short language-model
 * probe. Validation only: a plausible verdict raises confidence by a small
 * fixed delta, a failed probe changes nothing, and the text is never mutated.
 */

package pipeline

import (
	"context"

	"github.com/epigraphia/inscription-worker/internal/logging"
)

const (
	// Confidence adjustment for a plausible verdict.
	verificationDelta = 0.05
	verificationCap   = 0.95
)

// Verifier judges whether extracted text is plausible in its script domain.
type Verifier interface {
	Verify(ctx context.Context, text, scriptType string) (bool, error)
}

// PostProcessor applies the verification pass to an extraction result.
type PostProcessor struct {
	verifier Verifier
	logger   *logging.Logger
}

// NewPostProcessor creates a post-processor. A nil verifier disables the pass.
func NewPostProcessor(verifier Verifier) *PostProcessor {
	return &PostProcessor{
		verifier: verifier,
		logger:   logging.NewLogger("PostProcessor"),
	}
}

// Refine returns the extraction with confidence possibly increased by the
// verification delta. Confidence is never lowered and the text never changes.
func (p *PostProcessor) Refine(ctx context.Context, res ExtractionResult, scriptType string) ExtractionResult {
	if p == nil || p.verifier == nil {
		return res
	}
	if res.Method == MethodNone || res.Text == "" {
		return res
	}

	plausible, err := p.verifier.Verify(ctx, res.Text, scriptType)
	if err != nil {
		p.logger.Warn("Verification probe failed, confidence unchanged", "error", err)
		return res
	}
	if !plausible {
		p.logger.Info("Verification judged text implausible, confidence unchanged")
		return res
	}

	adjusted := res.Confidence + verificationDelta
	if adjusted > verificationCap {
		adjusted = verificationCap
	}
	if adjusted < res.Confidence {
		adjusted = res.Confidence
	}

	p.logger.Info("Verification endorsed extraction",
		"before", res.Confidence, "after", adjusted)
	res.Confidence = adjusted
	return res
}
