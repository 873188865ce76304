/**
 * Glyph Matcher - character to knowledge-base mapping
 *
 * Splits extracted text into character units, matches each against the Glyph
 * Store, and fills meaning gaps from the semantic inference service. Meanings
 * for the whole character set are requested in one batch up front, seeded
 * with the first-pass translation for context.
 */

package pipeline

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/epigraphia/inscription-worker/internal/logging"
)

const (
	// UnknownMeaning is the sentinel emitted when no meaning is available.
	// A GlyphMatch never carries an empty meaning.
	UnknownMeaning = "unknown character"

	// placeholderPrefix marks non-informative stand-in meanings created on
	// first sighting. Never treated as a quality signal.
	placeholderPrefix = "character:"

	// Confidence tiers per matching outcome.
	confidenceExternalMeaning = 0.85
	// storedMeaningFloor lets pre-existing low-confidence rows surface at
	// 0.75. A policy choice preserved from the original system; tune with
	// care.
	storedMeaningFloor      = 0.75
	confidenceNewWithLookup = 0.70
	confidenceBare          = 0.60

	// Synthesized bounding-box geometry: fixed pitch, left to right.
	glyphPitch = 60
	glyphSize  = 50
)

// MeaningProvider is the semantic inference collaborator. Implementations
// batch internally and degrade to partial maps.
type MeaningProvider interface {
	Meanings(ctx context.Context, chars []string, translationContext string) (map[string]string, error)
	SingleMeaning(ctx context.Context, ch string, translationContext string) (string, error)
}

// GlyphMatcher maps characters onto the Glyph Store.
type GlyphMatcher struct {
	store      GlyphStore
	semantic   MeaningProvider
	scriptName string
	logger     *logging.Logger
}

// NewGlyphMatcher creates a matcher. A nil semantic provider disables meaning
// inference; matches then fall back to stored meanings or the unknown
// sentinel.
func NewGlyphMatcher(store GlyphStore, semantic MeaningProvider, scriptName string) *GlyphMatcher {
	return &GlyphMatcher{
		store:      store,
		semantic:   semantic,
		scriptName: scriptName,
		logger:     logging.NewLogger("GlyphMatcher"),
	}
}

// Match produces one GlyphMatch per qualifying character of text. Position is
// the character index after whitespace removal; punctuation occupies a
// position but yields no match.
func (m *GlyphMatcher) Match(ctx context.Context, text, translationContext string) ([]GlyphMatch, error) {
	stripped := stripWhitespace(text)
	if stripped == "" {
		return nil, nil
	}

	script, err := m.store.FindOrCreateScript(ctx, m.scriptName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve script %q: %w", m.scriptName, err)
	}

	runes := []rune(stripped)
	meanings := m.bulkMeanings(ctx, runes, translationContext)

	matches := make([]GlyphMatch, 0, len(runes))
	for position, r := range runes {
		if isExcluded(r) {
			continue
		}
		symbol := string(r)

		match := m.matchOne(ctx, script, symbol, meanings[symbol], translationContext)
		match.Position = position
		match.BoundingBox = BoundingBox{
			X:      position * glyphPitch,
			Y:      0,
			Width:  glyphSize,
			Height: glyphSize,
		}
		matches = append(matches, match)
	}

	m.logger.Info("Glyph matching complete",
		"characters", len(runes), "matches", len(matches), "script", script.Name)
	return matches, nil
}

// bulkMeanings requests meanings for every distinct qualifying character in
// one batch. Failures degrade to an empty map; the per-character last-resort
// lookup still runs for store-absent symbols.
func (m *GlyphMatcher) bulkMeanings(ctx context.Context, runes []rune, translationContext string) map[string]string {
	if m.semantic == nil {
		return nil
	}

	seen := make(map[string]bool)
	distinct := make([]string, 0, len(runes))
	for _, r := range runes {
		if isExcluded(r) {
			continue
		}
		s := string(r)
		if !seen[s] {
			seen[s] = true
			distinct = append(distinct, s)
		}
	}
	if len(distinct) == 0 {
		return nil
	}

	meanings, err := m.semantic.Meanings(ctx, distinct, translationContext)
	if err != nil {
		m.logger.Warn("Bulk meaning inference failed, continuing without external meanings", "error", err)
		return nil
	}
	return meanings
}

// matchOne resolves one symbol against the store and the external meaning,
// returning symbol, confidence and meaning per the confidence ladder.
func (m *GlyphMatcher) matchOne(ctx context.Context, script *ScriptRecord, symbol, externalMeaning, translationContext string) GlyphMatch {
	record, err := m.lookupGlyph(ctx, script.ID, symbol)
	if err != nil {
		m.logger.Warn("Glyph lookup failed, treating as unknown", "symbol", symbol, "error", err)
		record = nil
	}

	if record != nil {
		if externalMeaning != "" {
			// Fresh external meaning always wins over a possibly-generic
			// stored meaning to keep meanings current.
			m.improveStoredMeaning(ctx, record, externalMeaning)
			return GlyphMatch{Symbol: symbol, Confidence: confidenceExternalMeaning, Meaning: externalMeaning}
		}
		if !isPlaceholderMeaning(record.Meaning) {
			confidence := record.Confidence
			if confidence < storedMeaningFloor {
				confidence = storedMeaningFloor
			}
			return GlyphMatch{Symbol: symbol, Confidence: clampConfidence(confidence), Meaning: record.Meaning}
		}
		return GlyphMatch{Symbol: symbol, Confidence: confidenceBare, Meaning: UnknownMeaning}
	}

	// First sighting: one last-resort meaning lookup, then create the record
	// so the store learns the symbol either way.
	meaning := externalMeaning
	confidence := confidenceNewWithLookup
	if meaning == "" && m.semantic != nil {
		looked, lookErr := m.semantic.SingleMeaning(ctx, symbol, translationContext)
		if lookErr == nil && looked != "" {
			meaning = looked
		}
	}
	if meaning == "" {
		confidence = confidenceBare
	}

	stored := meaning
	if stored == "" {
		stored = placeholderPrefix + " " + symbol
	}
	if _, createErr := m.store.CreateGlyph(ctx, &GlyphRecord{
		ScriptID:   script.ID,
		Symbol:     symbol,
		Meaning:    stored,
		Confidence: confidence,
	}); createErr != nil {
		m.logger.Warn("Failed to create glyph record", "symbol", symbol, "error", createErr)
	}

	if meaning == "" {
		meaning = UnknownMeaning
	}
	return GlyphMatch{Symbol: symbol, Confidence: confidence, Meaning: meaning}
}

// lookupGlyph tries an exact symbol match, then a relaxed case-insensitive
// variant for alphabetic scripts.
func (m *GlyphMatcher) lookupGlyph(ctx context.Context, scriptID, symbol string) (*GlyphRecord, error) {
	record, err := m.store.FindGlyphBySymbol(ctx, scriptID, symbol)
	if err != nil || record != nil {
		return record, err
	}

	if lower := strings.ToLower(symbol); lower != symbol {
		return m.store.FindGlyphBySymbol(ctx, scriptID, lower)
	}
	return nil, nil
}

// improveStoredMeaning issues a single store update when the pure decision
// function picks the candidate over the existing meaning.
func (m *GlyphMatcher) improveStoredMeaning(ctx context.Context, record *GlyphRecord, candidate string) {
	chosen := chooseMeaning(record.Meaning, candidate)
	if chosen == record.Meaning {
		return
	}
	if err := m.store.UpdateGlyph(ctx, record.ID, chosen, confidenceExternalMeaning); err != nil {
		m.logger.Warn("Failed to update glyph meaning", "symbol", record.Symbol, "error", err)
	}
}

// chooseMeaning decides between an existing stored meaning and a candidate.
// Improvement is monotonic: a real meaning is never replaced, a placeholder
// always yields to a real candidate.
func chooseMeaning(existing, candidate string) string {
	if candidate == "" || isPlaceholderMeaning(candidate) {
		return existing
	}
	if isPlaceholderMeaning(existing) {
		return candidate
	}
	return existing
}

// isPlaceholderMeaning reports whether a meaning is absent or a
// non-informative stand-in.
func isPlaceholderMeaning(meaning string) bool {
	trimmed := strings.TrimSpace(meaning)
	return trimmed == "" ||
		strings.HasPrefix(strings.ToLower(trimmed), placeholderPrefix) ||
		trimmed == UnknownMeaning
}

// stripWhitespace removes all whitespace so positions index visible
// characters only.
func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// isExcluded reports whether a character is punctuation or a symbol and
// therefore yields no glyph match.
func isExcluded(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}
