/**
 * Pipeline Types - shared data structures for the recognition pipeline
 *
 * Common types used by the OCR orchestrator, glyph matcher, translation
 * generator, reconstruction module and the coordinator.
 */

package pipeline

import (
	"context"
	"time"
)

// ExtractionMethod tags which fallback tier produced an extraction.
type ExtractionMethod string

const (
	MethodLocalVision     ExtractionMethod = "local-vision"
	MethodPrimaryVision   ExtractionMethod = "primary-vision"
	MethodAuxiliaryVision ExtractionMethod = "auxiliary-vision"
	MethodVerification    ExtractionMethod = "verification"
	MethodNone            ExtractionMethod = "none"
)

// RunState enumerates the coordinator's state machine.
type RunState string

const (
	StatePending        RunState = "PENDING"
	StateExtracting     RunState = "EXTRACTING"
	StateExtracted      RunState = "EXTRACTED"
	StateTranslating    RunState = "TRANSLATING"
	StateMatching       RunState = "MATCHING"
	StateReconstructing RunState = "RECONSTRUCTING"
	StateCompleted      RunState = "COMPLETED"
	StateFailed         RunState = "FAILED"
)

// ExtractionResult is produced once per image by the OCR orchestrator.
// Confidence reflects source reliability, not per-character certainty.
type ExtractionResult struct {
	Text       string
	Confidence float64
	Method     ExtractionMethod
	Error      string
}

// BoundingBox places a glyph on the source image. Boxes are synthesized at a
// fixed pitch, not measured.
type BoundingBox struct {
	X      int
	Y      int
	Width  int
	Height int
}

// GlyphMatch is one recognized character unit, ordered by position.
type GlyphMatch struct {
	Symbol      string
	Position    int
	Confidence  float64
	Meaning     string
	BoundingBox BoundingBox
}

// TranslationResult is one translation per processing run.
type TranslationResult struct {
	Translation string
	Confidence  float64
}

// ReconstructionResult is the reconstruction of a single damaged glyph.
type ReconstructionResult struct {
	ReconstructedGlyph string
	Confidence         float64
	Method             string
	Details            string
}

// ReconstructionVersion aggregates one batch of reconstructions for an image.
// Version numbers increase monotonically per source image; confidence is the
// arithmetic mean of the members.
type ReconstructionVersion struct {
	ID            string
	ImageID       string
	VersionNumber int
	Confidence    float64
	Results       []ReconstructionResult
	CreatedAt     time.Time
}

// ProcessingResult is the pipeline's output consumed by persistence, export
// and UI layers.
type ProcessingResult struct {
	RunID          string
	ExtractedText  string
	Glyphs         []GlyphMatch
	ScriptType     string
	Confidence     float64
	Method         ExtractionMethod
	Translation    TranslationResult
	Reconstruction *ReconstructionVersion
	Duration       time.Duration
}

// ProcessRequest identifies one image to run through the pipeline.
type ProcessRequest struct {
	RunID      string
	ImageID    string
	ImagePath  string
	ImageData  []byte
	ScriptHint string
	Metadata   map[string]interface{}
}

// ScriptRecord is a writing-system family in the Glyph Store.
type ScriptRecord struct {
	ID   string
	Name string
}

// GlyphRecord is a known glyph in the Glyph Store. Symbol is the natural key
// within a script.
type GlyphRecord struct {
	ID          string
	ScriptID    string
	Symbol      string
	Meaning     string
	Confidence  float64
	StrokeCount int
}

// GlyphStore is the persistent glyph knowledge base. FindGlyphBySymbol
// returns (nil, nil) when the symbol is unknown. CreateGlyph must be race
// safe for concurrent create-if-absent on the same symbol and script.
type GlyphStore interface {
	FindOrCreateScript(ctx context.Context, name string) (*ScriptRecord, error)
	FindGlyphBySymbol(ctx context.Context, scriptID, symbol string) (*GlyphRecord, error)
	CreateGlyph(ctx context.Context, glyph *GlyphRecord) (*GlyphRecord, error)
	UpdateGlyph(ctx context.Context, id, meaning string, confidence float64) error
}

// RunUpdate is a run status transition persisted by the store.
type RunUpdate struct {
	RunID         string
	ImageID       string
	Status        RunState
	ExtractedText string
	ScriptType    string
	Confidence    float64
	Method        string
	ErrorMessage  string
	Metadata      map[string]interface{}
}

// RunStore persists run state transitions.
type RunStore interface {
	UpdateRunStatus(ctx context.Context, update *RunUpdate) error
}

// VersionStore persists reconstruction versions and supplies the monotonic
// version counter per source image.
type VersionStore interface {
	CountReconstructionVersions(ctx context.Context, imageID string) (int, error)
	StoreReconstructionVersion(ctx context.Context, version *ReconstructionVersion) error
}

// Store is the full persistence collaborator used by the coordinator.
type Store interface {
	GlyphStore
	RunStore
	VersionStore
}

// RunProcessor is implemented by the pipeline coordinator and consumed by the
// batch driver and queue consumers.
type RunProcessor interface {
	Process(ctx context.Context, req *ProcessRequest) (*ProcessingResult, error)
}

// clampConfidence bounds a confidence value to [0, 1].
func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
