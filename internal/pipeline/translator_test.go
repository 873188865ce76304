/**
 * Translation Generator tests
 *
 * Covers the layered fallback: ordered model backends, the curated phrase
 * table and the templated rendering floor.
 */

package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// fakeTranslationBackend scripts per-model outcomes.
type fakeTranslationBackend struct {
	models  []string
	results map[string]string
	errs    map[string]error
	calls   []string
}

func (f *fakeTranslationBackend) Models() []string { return f.models }

func (f *fakeTranslationBackend) Translate(ctx context.Context, model, text, scriptType string) (string, error) {
	f.calls = append(f.calls, model)
	if err, ok := f.errs[model]; ok {
		return "", err
	}
	return f.results[model], nil
}

func TestTranslateEmptyText(t *testing.T) {
	result := NewTranslator(nil).Translate(context.Background(), "  ", "Seal Script", nil)

	if result.Confidence != 0 {
		t.Errorf("expected zero confidence, got %f", result.Confidence)
	}
	if result.Translation == "" {
		t.Error("expected an apologetic message, got empty translation")
	}
}

func TestTranslateBackendOrder(t *testing.T) {
	backend := &fakeTranslationBackend{
		models: []string{"gpt-4o", "gpt-4o-mini"},
		errs:   map[string]error{"gpt-4o": fmt.Errorf("overloaded")},
		results: map[string]string{
			"gpt-4o-mini": "The Way follows nature.",
		},
	}

	result := NewTranslator(backend).Translate(context.Background(), "有朋自遠方來", "Seal Script", nil)

	if len(backend.calls) != 2 || backend.calls[0] != "gpt-4o" || backend.calls[1] != "gpt-4o-mini" {
		t.Fatalf("expected ordered fallback over both models, got %v", backend.calls)
	}
	if result.Translation != "The Way follows nature." {
		t.Errorf("expected second model's translation, got %q", result.Translation)
	}
	if result.Confidence != 0.88 {
		t.Errorf("expected backend confidence 0.88, got %f", result.Confidence)
	}
}

func TestTranslateBackendEmptyResponseAdvances(t *testing.T) {
	backend := &fakeTranslationBackend{
		models: []string{"gpt-4o", "gpt-4o-mini"},
		results: map[string]string{
			"gpt-4o":      "   ",
			"gpt-4o-mini": "A reading.",
		},
	}

	result := NewTranslator(backend).Translate(context.Background(), "有朋自遠方來", "Seal Script", nil)

	if result.Translation != "A reading." {
		t.Errorf("expected fallback past empty response, got %q", result.Translation)
	}
}

func TestTranslatePhraseTable(t *testing.T) {
	// All backends fail, the curated table answers.
	backend := &fakeTranslationBackend{
		models: []string{"gpt-4o"},
		errs:   map[string]error{"gpt-4o": fmt.Errorf("unreachable")},
	}

	result := NewTranslator(backend).Translate(context.Background(), "道 法 自 然", "Seal Script", nil)

	if result.Translation != "The Way follows the course of nature." {
		t.Errorf("expected phrase table hit, got %q", result.Translation)
	}
	if result.Confidence != 0.90 {
		t.Errorf("expected phrase table confidence 0.90, got %f", result.Confidence)
	}
}

func TestTranslateTemplatedFromGlyphs(t *testing.T) {
	glyphs := []GlyphMatch{
		{Symbol: "道", Confidence: 0.60, Meaning: "way, path"},
		{Symbol: "水", Confidence: 0.80, Meaning: "water"},
	}

	result := NewTranslator(nil).Translate(context.Background(), "道水", "Seal Script", glyphs)

	if !strings.Contains(result.Translation, "way, path") || !strings.Contains(result.Translation, "water") {
		t.Errorf("expected meanings in templated translation, got %q", result.Translation)
	}
	// Each meaning is rendered alongside its glyph symbol.
	if !strings.Contains(result.Translation, "道 (way, path)") || !strings.Contains(result.Translation, "水 (water)") {
		t.Errorf("expected symbol-meaning pairs in templated translation, got %q", result.Translation)
	}
	// Mean of 0.60 and 0.80.
	if !almostEqual(result.Confidence, 0.70) {
		t.Errorf("expected mean glyph confidence 0.70, got %f", result.Confidence)
	}
}

func TestTranslateTemplatedConfidenceCapped(t *testing.T) {
	glyphs := []GlyphMatch{
		{Symbol: "道", Confidence: 0.95, Meaning: "way"},
		{Symbol: "水", Confidence: 0.95, Meaning: "water"},
	}

	result := NewTranslator(nil).Translate(context.Background(), "道水", "Seal Script", glyphs)

	if result.Confidence != 0.85 {
		t.Errorf("expected templated cap 0.85, got %f", result.Confidence)
	}
}

func TestTranslateTemplatedUnknownMeaningsExcluded(t *testing.T) {
	glyphs := []GlyphMatch{
		{Symbol: "道", Confidence: 0.60, Meaning: UnknownMeaning},
		{Symbol: "水", Confidence: 0.60, Meaning: UnknownMeaning},
	}

	result := NewTranslator(nil).Translate(context.Background(), "道水", "Seal Script", glyphs)

	if strings.Contains(result.Translation, UnknownMeaning) {
		t.Errorf("sentinel meanings must not appear in the translation, got %q", result.Translation)
	}
	if !almostEqual(result.Confidence, 0.60) {
		t.Errorf("expected mean confidence 0.60, got %f", result.Confidence)
	}
}

func TestTranslateNoGlyphsFallback(t *testing.T) {
	result := NewTranslator(nil).Translate(context.Background(), "λόγος", "Unknown Script", nil)

	if result.Confidence != 0.70 {
		t.Errorf("expected generic fallback confidence 0.70, got %f", result.Confidence)
	}
	if result.Translation == "" {
		t.Error("expected a generic description, got empty translation")
	}
}
