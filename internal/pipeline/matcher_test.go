/**
 * Glyph Matcher tests
 *
 * Covers the confidence ladder, placeholder handling, position indexing,
 * punctuation exclusion and synthesized bounding boxes against an in-memory
 * glyph store.
 */

package pipeline

import (
	"context"
	"fmt"
	"testing"
)

// memoryGlyphStore is an in-memory GlyphStore for matcher tests.
type memoryGlyphStore struct {
	scripts map[string]*ScriptRecord
	glyphs  map[string]*GlyphRecord // key: scriptID + "/" + symbol
	updates []string
	nextID  int
}

func newMemoryGlyphStore() *memoryGlyphStore {
	return &memoryGlyphStore{
		scripts: make(map[string]*ScriptRecord),
		glyphs:  make(map[string]*GlyphRecord),
	}
}

func (s *memoryGlyphStore) FindOrCreateScript(ctx context.Context, name string) (*ScriptRecord, error) {
	if sc, ok := s.scripts[name]; ok {
		return sc, nil
	}
	s.nextID++
	sc := &ScriptRecord{ID: fmt.Sprintf("script-%d", s.nextID), Name: name}
	s.scripts[name] = sc
	return sc, nil
}

func (s *memoryGlyphStore) FindGlyphBySymbol(ctx context.Context, scriptID, symbol string) (*GlyphRecord, error) {
	if g, ok := s.glyphs[scriptID+"/"+symbol]; ok {
		return g, nil
	}
	return nil, nil
}

func (s *memoryGlyphStore) CreateGlyph(ctx context.Context, glyph *GlyphRecord) (*GlyphRecord, error) {
	key := glyph.ScriptID + "/" + glyph.Symbol
	if existing, ok := s.glyphs[key]; ok {
		return existing, nil
	}
	s.nextID++
	stored := *glyph
	stored.ID = fmt.Sprintf("glyph-%d", s.nextID)
	s.glyphs[key] = &stored
	return &stored, nil
}

func (s *memoryGlyphStore) UpdateGlyph(ctx context.Context, id, meaning string, confidence float64) error {
	for _, g := range s.glyphs {
		if g.ID == id {
			g.Meaning = meaning
			g.Confidence = confidence
			s.updates = append(s.updates, id)
			return nil
		}
	}
	return fmt.Errorf("glyph not found: %s", id)
}

func (s *memoryGlyphStore) seed(scriptName, symbol, meaning string, confidence float64) {
	sc, _ := s.FindOrCreateScript(context.Background(), scriptName)
	s.CreateGlyph(context.Background(), &GlyphRecord{
		ScriptID: sc.ID, Symbol: symbol, Meaning: meaning, Confidence: confidence,
	})
}

// fakeSemantic is a scripted MeaningProvider.
type fakeSemantic struct {
	meanings    map[string]string
	bulkErr     error
	singleCalls int
}

func (f *fakeSemantic) Meanings(ctx context.Context, chars []string, translationContext string) (map[string]string, error) {
	if f.bulkErr != nil {
		return nil, f.bulkErr
	}
	out := make(map[string]string)
	for _, c := range chars {
		if m, ok := f.meanings[c]; ok {
			out[c] = m
		}
	}
	return out, nil
}

func (f *fakeSemantic) SingleMeaning(ctx context.Context, ch string, translationContext string) (string, error) {
	f.singleCalls++
	if m, ok := f.meanings[ch]; ok {
		return m, nil
	}
	return "", fmt.Errorf("no meaning for %s", ch)
}

func TestMatchUnknownCharactersWithoutSemantics(t *testing.T) {
	store := newMemoryGlyphStore()
	matcher := NewGlyphMatcher(store, nil, "Seal Script")

	matches, err := matcher.Match(context.Background(), "道法自然", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(matches) != 4 {
		t.Fatalf("expected 4 matches, got %d", len(matches))
	}
	for i, m := range matches {
		if m.Confidence != 0.60 {
			t.Errorf("match %d: expected confidence 0.60, got %f", i, m.Confidence)
		}
		if m.Meaning != UnknownMeaning {
			t.Errorf("match %d: expected %q, got %q", i, UnknownMeaning, m.Meaning)
		}
		if m.Position != i {
			t.Errorf("match %d: expected position %d, got %d", i, i, m.Position)
		}
	}

	// Every first sighting creates a placeholder record.
	if len(store.glyphs) != 4 {
		t.Errorf("expected 4 created glyph records, got %d", len(store.glyphs))
	}
}

func TestMatchConfidenceLadder(t *testing.T) {
	testCases := []struct {
		name           string
		seedMeaning    string
		seedConfidence float64
		external       string
		wantConfidence float64
		wantMeaning    string
	}{
		{
			name:           "store hit with external meaning",
			seedMeaning:    "way, path",
			seedConfidence: 0.95,
			external:       "the Dao",
			wantConfidence: 0.85,
			wantMeaning:    "the Dao",
		},
		{
			name:           "store hit with stored meaning only",
			seedMeaning:    "way, path",
			seedConfidence: 0.92,
			wantConfidence: 0.92,
			wantMeaning:    "way, path",
		},
		{
			name:           "stored confidence floored",
			seedMeaning:    "way, path",
			seedConfidence: 0.40,
			wantConfidence: 0.75,
			wantMeaning:    "way, path",
		},
		{
			name:           "store hit with placeholder meaning",
			seedMeaning:    "character: 道",
			seedConfidence: 0.70,
			wantConfidence: 0.60,
			wantMeaning:    UnknownMeaning,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemoryGlyphStore()
			store.seed("Seal Script", "道", tc.seedMeaning, tc.seedConfidence)

			var semantic MeaningProvider
			if tc.external != "" {
				semantic = &fakeSemantic{meanings: map[string]string{"道": tc.external}}
			}

			matcher := NewGlyphMatcher(store, semantic, "Seal Script")
			matches, err := matcher.Match(context.Background(), "道", "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(matches) != 1 {
				t.Fatalf("expected 1 match, got %d", len(matches))
			}

			if matches[0].Confidence != tc.wantConfidence {
				t.Errorf("expected confidence %f, got %f", tc.wantConfidence, matches[0].Confidence)
			}
			if matches[0].Meaning != tc.wantMeaning {
				t.Errorf("expected meaning %q, got %q", tc.wantMeaning, matches[0].Meaning)
			}
		})
	}
}

func TestMatchNewCharacterWithMeaningLookup(t *testing.T) {
	store := newMemoryGlyphStore()
	semantic := &fakeSemantic{meanings: map[string]string{"道": "the Dao"}}
	matcher := NewGlyphMatcher(store, semantic, "Seal Script")

	matches, err := matcher.Match(context.Background(), "道", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if matches[0].Confidence != 0.70 {
		t.Errorf("expected confidence 0.70 for new character with meaning, got %f", matches[0].Confidence)
	}
	if matches[0].Meaning != "the Dao" {
		t.Errorf("expected inferred meaning, got %q", matches[0].Meaning)
	}

	// The store learned the symbol with its meaning.
	sc := store.scripts["Seal Script"]
	record, _ := store.FindGlyphBySymbol(context.Background(), sc.ID, "道")
	if record == nil || record.Meaning != "the Dao" {
		t.Errorf("expected created record with meaning, got %+v", record)
	}
}

func TestMatchPlaceholderUpgraded(t *testing.T) {
	store := newMemoryGlyphStore()
	store.seed("Seal Script", "道", "character: 道", 0.60)
	semantic := &fakeSemantic{meanings: map[string]string{"道": "the Dao"}}
	matcher := NewGlyphMatcher(store, semantic, "Seal Script")

	if _, err := matcher.Match(context.Background(), "道", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.updates) != 1 {
		t.Fatalf("expected one store update, got %d", len(store.updates))
	}
	sc := store.scripts["Seal Script"]
	record, _ := store.FindGlyphBySymbol(context.Background(), sc.ID, "道")
	if record.Meaning != "the Dao" {
		t.Errorf("expected placeholder upgraded to real meaning, got %q", record.Meaning)
	}
}

func TestMatchRealMeaningNeverDowngraded(t *testing.T) {
	if got := chooseMeaning("way, path", "character: 道"); got != "way, path" {
		t.Errorf("placeholder candidate must not win, got %q", got)
	}
	if got := chooseMeaning("character: 道", "the Dao"); got != "the Dao" {
		t.Errorf("real candidate must replace placeholder, got %q", got)
	}
	if got := chooseMeaning("", "the Dao"); got != "the Dao" {
		t.Errorf("empty existing must yield to candidate, got %q", got)
	}
	if got := chooseMeaning("way, path", ""); got != "way, path" {
		t.Errorf("empty candidate must not win, got %q", got)
	}
}

func TestMatchSkipsPunctuationKeepsPositions(t *testing.T) {
	store := newMemoryGlyphStore()
	matcher := NewGlyphMatcher(store, nil, "Seal Script")

	matches, err := matcher.Match(context.Background(), "道、法", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Position != 0 || matches[1].Position != 2 {
		t.Errorf("punctuation must occupy a position: got %d and %d",
			matches[0].Position, matches[1].Position)
	}
}

func TestMatchWhitespaceStrippedBeforeIndexing(t *testing.T) {
	store := newMemoryGlyphStore()
	matcher := NewGlyphMatcher(store, nil, "Seal Script")

	matches, err := matcher.Match(context.Background(), " 道 法 ", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[1].Position != 1 {
		t.Errorf("expected position 1 after whitespace removal, got %d", matches[1].Position)
	}
}

func TestMatchSynthesizedBoundingBoxes(t *testing.T) {
	store := newMemoryGlyphStore()
	matcher := NewGlyphMatcher(store, nil, "Seal Script")

	matches, err := matcher.Match(context.Background(), "道法", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, m := range matches {
		want := BoundingBox{X: i * 60, Y: 0, Width: 50, Height: 50}
		if m.BoundingBox != want {
			t.Errorf("match %d: expected box %+v, got %+v", i, want, m.BoundingBox)
		}
	}

	// Boxes never overlap at the fixed pitch.
	if matches[0].BoundingBox.X+matches[0].BoundingBox.Width > matches[1].BoundingBox.X {
		t.Error("adjacent boxes overlap")
	}
}

func TestMatchEmptyText(t *testing.T) {
	matcher := NewGlyphMatcher(newMemoryGlyphStore(), nil, "Seal Script")

	matches, err := matcher.Match(context.Background(), "   ", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if matches != nil {
		t.Errorf("expected no matches for whitespace-only text, got %d", len(matches))
	}
}

func TestMatchBulkFailureFallsBackToSingleLookup(t *testing.T) {
	store := newMemoryGlyphStore()
	semantic := &fakeSemantic{
		meanings: map[string]string{"道": "the Dao"},
		bulkErr:  fmt.Errorf("service unavailable"),
	}
	matcher := NewGlyphMatcher(store, semantic, "Seal Script")

	matches, err := matcher.Match(context.Background(), "道", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if semantic.singleCalls != 1 {
		t.Errorf("expected one single-character lookup, got %d", semantic.singleCalls)
	}
	if matches[0].Confidence != 0.70 || matches[0].Meaning != "the Dao" {
		t.Errorf("expected single-lookup result, got %+v", matches[0])
	}
}
