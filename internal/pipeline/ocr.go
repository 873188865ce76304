/**
 * OCR Orchestrator - ordered backend fallback
 *
 * Iterates a declarative registry of vision providers in order. Each provider
 * carries an availability predicate (credentials configured) and a fixed
 * confidence weight. The first provider producing non-empty text wins; a
 * provider is never retried. Gone/rate-limited backends are skipped without
 * capture, everything else becomes the last captured error.
 */

package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/epigraphia/inscription-worker/internal/errors"
	"github.com/epigraphia/inscription-worker/internal/logging"
)

// VisionProvider is one text-extraction backend configuration.
type VisionProvider interface {
	Name() string
	Method() ExtractionMethod
	// Weight is the fixed confidence assigned to a successful extraction.
	Weight() float64
	// Available reports whether required credentials are configured. An
	// unavailable provider is excluded from the chain, never invoked.
	Available() bool
	Extract(ctx context.Context, image []byte) (string, error)
}

// OCROrchestrator tries providers in registry order.
type OCROrchestrator struct {
	providers []VisionProvider
	timeout   time.Duration
	logger    *logging.Logger
}

// NewOCROrchestrator creates an orchestrator over the given provider registry.
func NewOCROrchestrator(providers []VisionProvider, visionTimeout time.Duration) *OCROrchestrator {
	return &OCROrchestrator{
		providers: providers,
		timeout:   visionTimeout,
		logger:    logging.NewLogger("OCROrchestrator"),
	}
}

// Extract runs the fallback chain over the image. It never returns an error:
// exhaustion yields a zero-confidence result carrying the last captured error
// message for the caller to act on.
func (o *OCROrchestrator) Extract(ctx context.Context, image []byte) ExtractionResult {
	var lastErr string

	for _, provider := range o.providers {
		if !provider.Available() {
			o.logger.Debug("Provider not configured, excluded", "provider", provider.Name())
			continue
		}

		o.logger.Info("Trying extraction backend", "provider", provider.Name(), "method", provider.Method())

		callCtx, cancel := context.WithTimeout(ctx, o.timeout)
		text, err := provider.Extract(callCtx, image)
		cancel()

		if err != nil {
			if errors.IsSkippable(err) {
				o.logger.Warn("Backend unavailable, advancing",
					"provider", provider.Name(), "code", errors.CodeOf(err), "error", err)
				continue
			}
			// Timeouts and application errors are captured and the next
			// configuration is tried. No retry within a configuration.
			lastErr = err.Error()
			o.logger.Warn("Backend failed, advancing", "provider", provider.Name(), "error", err)
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			lastErr = provider.Name() + " returned empty text"
			o.logger.Warn("Backend returned empty text, advancing", "provider", provider.Name())
			continue
		}

		o.logger.Info("Extraction succeeded",
			"provider", provider.Name(),
			"method", provider.Method(),
			"confidence", provider.Weight(),
			"textLength", len(text))

		return ExtractionResult{
			Text:       text,
			Confidence: clampConfidence(provider.Weight()),
			Method:     provider.Method(),
		}
	}

	if lastErr == "" {
		lastErr = "no extraction backend is configured or available"
	}

	o.logger.Error("All extraction backends exhausted", "lastError", lastErr)
	return ExtractionResult{
		Text:       "",
		Confidence: 0,
		Method:     MethodNone,
		Error:      lastErr,
	}
}
