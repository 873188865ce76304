/**
 * Generative Reconstruction Module - damaged glyph recovery
 *
 * Selects low-quality matches as reconstruction candidates and asks a
 * multimodal model to propose the most likely original character for each.
 * Candidate batches are versioned per source image so successive runs never
 * overwrite earlier attempts.
 */

package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/epigraphia/inscription-worker/internal/clients"
	"github.com/epigraphia/inscription-worker/internal/logging"
)

const (
	// Candidate selection thresholds.
	reconstructionConfidenceFloor = 0.7
	minBoxPixels                  = 10

	// similarGlyphLimit bounds the visual-context hints fed to the model.
	similarGlyphLimit = 5

	reconstructionMethod = "generative-reconstruction"
)

// Reconstructor proposes original characters for damaged glyphs.
type Reconstructor interface {
	Reconstruct(ctx context.Context, req *clients.ReconstructionRequest) ([]clients.ReconstructedGlyph, error)
}

// SimilarGlyphFinder retrieves known glyphs whose meanings are close to the
// query text. Used to bias reconstruction toward the script's inventory.
type SimilarGlyphFinder interface {
	SimilarGlyphs(ctx context.Context, query string, limit int) ([]string, error)
}

// ReconstructionModule drives candidate selection, model invocation and
// version persistence.
type ReconstructionModule struct {
	reconstructor Reconstructor
	finder        SimilarGlyphFinder
	versions      VersionStore
	logger        *logging.Logger
}

// NewReconstructionModule creates the module. finder may be nil; the prompt
// then carries no similar-glyph hints.
func NewReconstructionModule(reconstructor Reconstructor, finder SimilarGlyphFinder, versions VersionStore) *ReconstructionModule {
	return &ReconstructionModule{
		reconstructor: reconstructor,
		finder:        finder,
		versions:      versions,
		logger:        logging.NewLogger("ReconstructionModule"),
	}
}

// NeedsReconstruction reports whether a match qualifies as damaged: an empty
// symbol, low confidence, or a bounding box too small to have been read
// reliably.
func NeedsReconstruction(g GlyphMatch) bool {
	if g.Symbol == "" {
		return true
	}
	if g.Confidence < reconstructionConfidenceFloor {
		return true
	}
	if g.BoundingBox.Width < minBoxPixels || g.BoundingBox.Height < minBoxPixels {
		return true
	}
	return false
}

// Reconstruct selects candidates from the matches and produces one new
// reconstruction version. Returns (nil, nil) when no glyph qualifies.
func (m *ReconstructionModule) Reconstruct(ctx context.Context, image []byte, imageID, scriptType string, glyphs []GlyphMatch) (*ReconstructionVersion, error) {
	candidates := make([]clients.DamagedGlyph, 0)
	queries := make([]string, 0)
	for _, g := range glyphs {
		if !NeedsReconstruction(g) {
			continue
		}
		candidates = append(candidates, clients.DamagedGlyph{
			Symbol:     g.Symbol,
			Position:   g.Position,
			Confidence: g.Confidence,
		})
		if g.Meaning != "" && g.Meaning != UnknownMeaning {
			queries = append(queries, g.Meaning)
		}
	}

	if len(candidates) == 0 {
		m.logger.Info("No reconstruction candidates", "glyphs", len(glyphs))
		return nil, nil
	}

	m.logger.Info("Reconstructing damaged glyphs",
		"candidates", len(candidates), "imageID", imageID)

	similar := m.similarGlyphs(ctx, queries)
	results := m.invoke(ctx, image, scriptType, candidates, similar)

	version := &ReconstructionVersion{
		ID:         uuid.New().String(),
		ImageID:    imageID,
		Confidence: meanConfidence(results),
		Results:    results,
		CreatedAt:  time.Now(),
	}

	version.VersionNumber = m.nextVersionNumber(ctx, imageID)
	if err := m.versions.StoreReconstructionVersion(ctx, version); err != nil {
		// Persistence is best effort; the version is still returned so the
		// run result carries it.
		m.logger.Error("Failed to store reconstruction version",
			"imageID", imageID, "version", version.VersionNumber, "error", err)
	}

	return version, nil
}

// invoke calls the reconstructor once for the whole batch. A failed call or a
// short response degrades to zero-confidence placeholders so every candidate
// is accounted for in the version.
func (m *ReconstructionModule) invoke(ctx context.Context, image []byte, scriptType string, candidates []clients.DamagedGlyph, similar []string) []ReconstructionResult {
	results := make([]ReconstructionResult, len(candidates))
	for i, c := range candidates {
		results[i] = ReconstructionResult{
			ReconstructedGlyph: c.Symbol,
			Confidence:         0,
			Method:             reconstructionMethod,
			Details:            "reconstruction unavailable",
		}
	}

	if m.reconstructor == nil {
		return results
	}

	proposals, err := m.reconstructor.Reconstruct(ctx, &clients.ReconstructionRequest{
		Image:         image,
		ScriptType:    scriptType,
		Candidates:    candidates,
		SimilarGlyphs: similar,
	})
	if err != nil {
		m.logger.Warn("Reconstruction model failed, emitting zero-confidence results", "error", err)
		return results
	}

	for i, p := range proposals {
		if i >= len(results) {
			break
		}
		results[i] = ReconstructionResult{
			ReconstructedGlyph: p.Glyph,
			Confidence:         clampConfidence(p.Confidence),
			Method:             reconstructionMethod,
			Details:            p.Details,
		}
	}
	return results
}

// similarGlyphs queries the vector index with the candidates' meanings,
// deduplicating up to the hint limit. Failures are logged and ignored.
func (m *ReconstructionModule) similarGlyphs(ctx context.Context, queries []string) []string {
	if m.finder == nil || len(queries) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	hints := make([]string, 0, similarGlyphLimit)
	for _, q := range queries {
		if len(hints) >= similarGlyphLimit {
			break
		}
		symbols, err := m.finder.SimilarGlyphs(ctx, q, similarGlyphLimit)
		if err != nil {
			m.logger.Warn("Similar glyph lookup failed", "query", q, "error", err)
			continue
		}
		for _, s := range symbols {
			if len(hints) >= similarGlyphLimit {
				break
			}
			if !seen[s] {
				seen[s] = true
				hints = append(hints, s)
			}
		}
	}
	return hints
}

// nextVersionNumber reads the per-image version counter. A failed count falls
// back to version 1 rather than aborting the batch.
func (m *ReconstructionModule) nextVersionNumber(ctx context.Context, imageID string) int {
	count, err := m.versions.CountReconstructionVersions(ctx, imageID)
	if err != nil {
		m.logger.Warn("Failed to count reconstruction versions, defaulting to 1",
			"imageID", imageID, "error", err)
		return 1
	}
	return count + 1
}

// meanConfidence is the arithmetic mean over the batch, zero for an empty
// batch.
func meanConfidence(results []ReconstructionResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += r.Confidence
	}
	return clampConfidence(sum / float64(len(results)))
}
