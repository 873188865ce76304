/**
 * Pipeline Coordinator tests
 *
 * Drives the full state machine with fake backends and verifies state
 * transitions, graceful degradation and the extraction failure path.
 */

package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"
)

// recordingStore implements Store over the in-memory glyph store, recording
// every run status transition.
type recordingStore struct {
	*memoryGlyphStore
	statuses     []RunState
	lastUpdate   *RunUpdate
	versionCount int
	versions     []*ReconstructionVersion
}

func newRecordingStore() *recordingStore {
	return &recordingStore{memoryGlyphStore: newMemoryGlyphStore()}
}

func (s *recordingStore) UpdateRunStatus(ctx context.Context, update *RunUpdate) error {
	s.statuses = append(s.statuses, update.Status)
	s.lastUpdate = update
	return nil
}

func (s *recordingStore) CountReconstructionVersions(ctx context.Context, imageID string) (int, error) {
	return s.versionCount, nil
}

func (s *recordingStore) StoreReconstructionVersion(ctx context.Context, version *ReconstructionVersion) error {
	s.versions = append(s.versions, version)
	return nil
}

func newTestCoordinator(store *recordingStore, providers []VisionProvider, cfg CoordinatorConfig) *Coordinator {
	return NewCoordinator(
		NewOCROrchestrator(providers, time.Second),
		NewPostProcessor(nil),
		NewGlyphMatcher(store, nil, "Seal Script"),
		NewTranslator(nil),
		NewReconstructionModule(nil, nil, store),
		store,
		cfg,
	)
}

func TestProcessSuccessPath(t *testing.T) {
	store := newRecordingStore()
	provider := &fakeProvider{
		name: "tesseract", method: MethodLocalVision, weight: 0.80,
		available: true, text: "道法自然",
	}
	coordinator := newTestCoordinator(store, []VisionProvider{provider}, CoordinatorConfig{
		DefaultScript:        "Seal Script",
		EnableReconstruction: true,
	})

	result, err := coordinator.Process(context.Background(), &ProcessRequest{
		RunID: "run-1", ImageID: "image-1", ImageData: []byte("img"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.ExtractedText != "道法自然" {
		t.Errorf("expected extracted text, got %q", result.ExtractedText)
	}
	if result.Method != MethodLocalVision {
		t.Errorf("expected method %s, got %s", MethodLocalVision, result.Method)
	}
	if result.Confidence != 0.80 {
		t.Errorf("expected confidence 0.80, got %f", result.Confidence)
	}
	if len(result.Glyphs) != 4 {
		t.Errorf("expected 4 glyph matches, got %d", len(result.Glyphs))
	}
	if result.Translation.Translation == "" {
		t.Error("expected a translation")
	}
	if result.ScriptType != "Seal Script" {
		t.Errorf("expected script resolved to Seal Script, got %q", result.ScriptType)
	}

	// All matches are low confidence, so reconstruction ran and produced a
	// zero-confidence version.
	if result.Reconstruction == nil {
		t.Fatal("expected a reconstruction version")
	}
	if result.Reconstruction.VersionNumber != 1 {
		t.Errorf("expected version 1, got %d", result.Reconstruction.VersionNumber)
	}

	wantStates := []RunState{
		StateExtracting, StateExtracted, StateTranslating,
		StateMatching, StateTranslating, StateReconstructing, StateCompleted,
	}
	if len(store.statuses) != len(wantStates) {
		t.Fatalf("expected %d transitions, got %v", len(wantStates), store.statuses)
	}
	for i, want := range wantStates {
		if store.statuses[i] != want {
			t.Errorf("transition %d: expected %s, got %s", i, want, store.statuses[i])
		}
	}
}

func TestProcessExtractionFailure(t *testing.T) {
	store := newRecordingStore()
	coordinator := newTestCoordinator(store, nil, CoordinatorConfig{
		DefaultScript: "Seal Script",
	})

	result, err := coordinator.Process(context.Background(), &ProcessRequest{
		RunID: "run-1", ImageID: "image-1", ImageData: []byte("img"),
	})
	if err == nil {
		t.Fatal("expected an error when every backend is exhausted")
	}
	if result != nil {
		t.Errorf("expected nil result, got %+v", result)
	}

	last := store.statuses[len(store.statuses)-1]
	if last != StateFailed {
		t.Errorf("expected terminal FAILED state, got %s", last)
	}
	if store.lastUpdate.ErrorMessage == "" {
		t.Error("failed run must carry a user-visible message")
	}
	if strings.Contains(store.lastUpdate.ErrorMessage, "backend") {
		t.Errorf("user-visible message must not expose backend detail, got %q", store.lastUpdate.ErrorMessage)
	}
}

func TestProcessSampleFallback(t *testing.T) {
	store := newRecordingStore()
	coordinator := newTestCoordinator(store, nil, CoordinatorConfig{
		DefaultScript:       "Seal Script",
		AllowSampleFallback: true,
		SampleText:          "道法自然",
	})

	result, err := coordinator.Process(context.Background(), &ProcessRequest{
		RunID: "run-1", ImageID: "image-1", ImageData: []byte("img"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.ExtractedText != "道法自然" {
		t.Errorf("expected sample text, got %q", result.ExtractedText)
	}
	if result.Confidence != 0.10 {
		t.Errorf("expected sample confidence 0.10, got %f", result.Confidence)
	}
	if result.Method != MethodNone {
		t.Errorf("expected MethodNone for sample fallback, got %s", result.Method)
	}
}

func TestProcessMissingImage(t *testing.T) {
	store := newRecordingStore()
	coordinator := newTestCoordinator(store, nil, CoordinatorConfig{DefaultScript: "Seal Script"})

	_, err := coordinator.Process(context.Background(), &ProcessRequest{
		RunID: "run-1", ImageID: "image-1",
	})
	if err == nil {
		t.Fatal("expected an error when neither image data nor path is provided")
	}
}

func TestProcessScriptHintWins(t *testing.T) {
	store := newRecordingStore()
	provider := &fakeProvider{
		name: "tesseract", method: MethodLocalVision, weight: 0.80,
		available: true, text: "道",
	}
	coordinator := newTestCoordinator(store, []VisionProvider{provider}, CoordinatorConfig{
		DefaultScript: "Seal Script",
	})

	result, err := coordinator.Process(context.Background(), &ProcessRequest{
		RunID: "run-1", ImageID: "image-1", ImageData: []byte("img"),
		ScriptHint: "Oracle Bone Script",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ScriptType != "Oracle Bone Script" {
		t.Errorf("expected hint to win, got %q", result.ScriptType)
	}
}
