/**
 * Pipeline Coordinator - per-run state machine
 *
 * Drives one inscription image through extraction, verification, matching,
 * translation and reconstruction. State transitions are persisted best
 * effort; a storage hiccup never aborts a run that is otherwise making
 * progress. Only extraction failure is fatal to a run.
 */

package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"
	"unicode"

	"github.com/epigraphia/inscription-worker/internal/errors"
	"github.com/epigraphia/inscription-worker/internal/logging"
)

// sampleFallbackConfidence marks demo-mode output as untrustworthy.
const sampleFallbackConfidence = 0.10

// extractionFailedMessage is the user-visible message attached to a failed
// run. Backend details travel in the error cause, not here.
const extractionFailedMessage = "Unable to extract text from this image. The inscription may be too damaged or the image quality too low."

// CoordinatorConfig carries the run-level policy knobs.
type CoordinatorConfig struct {
	DefaultScript        string
	ProcessingTimeout    time.Duration
	EnableReconstruction bool
	AllowSampleFallback  bool
	SampleText           string
}

// Coordinator implements RunProcessor over the pipeline stages.
type Coordinator struct {
	ocr            *OCROrchestrator
	postProcessor  *PostProcessor
	matcher        *GlyphMatcher
	translator     *Translator
	reconstruction *ReconstructionModule
	store          Store
	cfg            CoordinatorConfig
	logger         *logging.Logger
}

// NewCoordinator wires the pipeline stages together.
func NewCoordinator(
	ocr *OCROrchestrator,
	postProcessor *PostProcessor,
	matcher *GlyphMatcher,
	translator *Translator,
	reconstruction *ReconstructionModule,
	store Store,
	cfg CoordinatorConfig,
) *Coordinator {
	if cfg.DefaultScript == "" {
		cfg.DefaultScript = "Seal Script"
	}
	return &Coordinator{
		ocr:            ocr,
		postProcessor:  postProcessor,
		matcher:        matcher,
		translator:     translator,
		reconstruction: reconstruction,
		store:          store,
		cfg:            cfg,
		logger:         logging.NewLogger("Coordinator"),
	}
}

// Process runs the full state machine for one image.
func (c *Coordinator) Process(ctx context.Context, req *ProcessRequest) (*ProcessingResult, error) {
	start := time.Now()

	if c.cfg.ProcessingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ProcessingTimeout)
		defer cancel()
	}

	c.logger.Info("Processing run started", "runID", req.RunID, "imageID", req.ImageID)
	c.updateStatus(ctx, req, StateExtracting, nil)

	image, err := c.loadImage(req)
	if err != nil {
		c.failRun(ctx, req, err.Error())
		return nil, errors.NewExtractionFailedError(req.RunID, err)
	}

	extraction := c.ocr.Extract(ctx, image)
	if extraction.Method == MethodNone && extraction.Text == "" {
		if !c.cfg.AllowSampleFallback {
			c.failRun(ctx, req, extraction.Error)
			return nil, errors.NewExtractionFailedError(req.RunID,
				fmt.Errorf("extraction exhausted: %s", extraction.Error))
		}
		// Demo mode: proceed with sample text so downstream stages stay
		// exercisable without any configured backend.
		c.logger.Warn("Extraction exhausted, using sample fallback", "runID", req.RunID)
		extraction = ExtractionResult{
			Text:       c.cfg.SampleText,
			Confidence: sampleFallbackConfidence,
			Method:     MethodNone,
		}
	}

	scriptType := c.resolveScript(req.ScriptHint, extraction.Text)
	extraction = c.postProcessor.Refine(ctx, extraction, scriptType)

	c.updateStatus(ctx, req, StateExtracted, &runDetails{
		text: extraction.Text, script: scriptType,
		confidence: extraction.Confidence, method: string(extraction.Method),
	})

	// First translation pass provides matching context before any glyph is
	// known.
	c.updateStatus(ctx, req, StateTranslating, nil)
	contextTranslation := c.translator.Translate(ctx, extraction.Text, scriptType, nil)

	c.updateStatus(ctx, req, StateMatching, nil)
	glyphs, matchErr := c.matcher.Match(ctx, extraction.Text, contextTranslation.Translation)
	if matchErr != nil {
		c.logger.Warn("Glyph matching failed, continuing without glyphs",
			"runID", req.RunID, "error", matchErr)
		glyphs = nil
	}

	c.updateStatus(ctx, req, StateTranslating, nil)
	translation := c.translator.Translate(ctx, extraction.Text, scriptType, glyphs)

	var version *ReconstructionVersion
	if c.cfg.EnableReconstruction && c.reconstruction != nil {
		c.updateStatus(ctx, req, StateReconstructing, nil)
		version, err = c.reconstruction.Reconstruct(ctx, image, req.ImageID, scriptType, glyphs)
		if err != nil {
			c.logger.Warn("Reconstruction failed, continuing without version",
				"runID", req.RunID, "error", err)
			version = nil
		}
	}

	c.updateStatus(ctx, req, StateCompleted, &runDetails{
		text: extraction.Text, script: scriptType,
		confidence: extraction.Confidence, method: string(extraction.Method),
	})

	result := &ProcessingResult{
		RunID:          req.RunID,
		ExtractedText:  extraction.Text,
		Glyphs:         glyphs,
		ScriptType:     scriptType,
		Confidence:     extraction.Confidence,
		Method:         extraction.Method,
		Translation:    translation,
		Reconstruction: version,
		Duration:       time.Since(start),
	}

	c.logger.Info("Processing run completed",
		"runID", req.RunID,
		"method", result.Method,
		"glyphs", len(result.Glyphs),
		"duration", result.Duration)
	return result, nil
}

// loadImage returns the request's inline bytes or reads from its path.
func (c *Coordinator) loadImage(req *ProcessRequest) ([]byte, error) {
	if len(req.ImageData) > 0 {
		return req.ImageData, nil
	}
	if req.ImagePath == "" {
		return nil, fmt.Errorf("request carries neither image data nor an image path")
	}
	data, err := os.ReadFile(req.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", req.ImagePath, err)
	}
	return data, nil
}

// resolveScript prefers the caller's hint, then infers from the text's
// dominant character range, then falls back to the configured default.
func (c *Coordinator) resolveScript(hint, text string) string {
	if hint != "" {
		return hint
	}
	if containsCJK(text) {
		return c.cfg.DefaultScript
	}
	return "Unknown Script"
}

// containsCJK reports whether the text carries any CJK ideograph, including
// Extension A.
func containsCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

type runDetails struct {
	text       string
	script     string
	confidence float64
	method     string
}

// updateStatus persists a state transition best effort.
func (c *Coordinator) updateStatus(ctx context.Context, req *ProcessRequest, state RunState, details *runDetails) {
	if c.store == nil {
		return
	}
	update := &RunUpdate{
		RunID:    req.RunID,
		ImageID:  req.ImageID,
		Status:   state,
		Metadata: req.Metadata,
	}
	if details != nil {
		update.ExtractedText = details.text
		update.ScriptType = details.script
		update.Confidence = details.confidence
		update.Method = details.method
	}
	if err := c.store.UpdateRunStatus(ctx, update); err != nil {
		c.logger.Warn("Failed to persist run status",
			"runID", req.RunID, "status", state, "error", err)
	}
}

// failRun records the terminal FAILED state with the user-visible message.
func (c *Coordinator) failRun(ctx context.Context, req *ProcessRequest, detail string) {
	if c.store == nil {
		return
	}
	update := &RunUpdate{
		RunID:        req.RunID,
		ImageID:      req.ImageID,
		Status:       StateFailed,
		ErrorMessage: extractionFailedMessage,
		Metadata:     req.Metadata,
	}
	if detail != "" {
		if update.Metadata == nil {
			update.Metadata = map[string]interface{}{}
		}
		update.Metadata["lastError"] = detail
	}
	if err := c.store.UpdateRunStatus(ctx, update); err != nil {
		c.logger.Error("Failed to persist FAILED status", "runID", req.RunID, "error", err)
	}
}
