/**
 * Storage Manager - unified persistence for the inscription worker
 *
 * Fronts PostgreSQL (glyph store, run state, reconstruction versions) and the
 * Qdrant meaning index behind the pipeline's store contract. Vector indexing
 * is best effort: a missing embedder or index degrades to Postgres only.
 */

package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/epigraphia/inscription-worker/internal/logging"
	"github.com/epigraphia/inscription-worker/internal/pipeline"
)

// MeaningEmbedder turns a glyph meaning into a vector for the index.
type MeaningEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// StorageManager implements pipeline.Store and pipeline.SimilarGlyphFinder.
type StorageManager struct {
	postgres *PostgresClient
	vectors  *GlyphVectorIndex
	embedder MeaningEmbedder
	logger   *logging.Logger
}

// NewStorageManager wires the persistence backends together. vectors and
// embedder may be nil; similarity search then returns no hits.
func NewStorageManager(postgres *PostgresClient, vectors *GlyphVectorIndex, embedder MeaningEmbedder) *StorageManager {
	return &StorageManager{
		postgres: postgres,
		vectors:  vectors,
		embedder: embedder,
		logger:   logging.NewLogger("StorageManager"),
	}
}

// FindOrCreateScript delegates to Postgres.
func (sm *StorageManager) FindOrCreateScript(ctx context.Context, name string) (*pipeline.ScriptRecord, error) {
	return sm.postgres.FindOrCreateScript(ctx, name)
}

// FindGlyphBySymbol delegates to Postgres.
func (sm *StorageManager) FindGlyphBySymbol(ctx context.Context, scriptID, symbol string) (*pipeline.GlyphRecord, error) {
	return sm.postgres.FindGlyphBySymbol(ctx, scriptID, symbol)
}

// CreateGlyph persists the glyph and indexes its meaning when it carries one.
func (sm *StorageManager) CreateGlyph(ctx context.Context, glyph *pipeline.GlyphRecord) (*pipeline.GlyphRecord, error) {
	record, err := sm.postgres.CreateGlyph(ctx, glyph)
	if err != nil {
		return nil, err
	}

	sm.indexMeaning(ctx, record.ID, record.Symbol, record.Meaning)
	return record, nil
}

// UpdateGlyph rewrites the glyph and refreshes its meaning vector.
func (sm *StorageManager) UpdateGlyph(ctx context.Context, id, meaning string, confidence float64) error {
	symbol, err := sm.postgres.UpdateGlyph(ctx, id, meaning, confidence)
	if err != nil {
		return err
	}

	sm.indexMeaning(ctx, id, symbol, meaning)
	return nil
}

// UpdateRunStatus delegates to Postgres.
func (sm *StorageManager) UpdateRunStatus(ctx context.Context, update *pipeline.RunUpdate) error {
	return sm.postgres.UpdateRunStatus(ctx, update)
}

// CountReconstructionVersions delegates to Postgres.
func (sm *StorageManager) CountReconstructionVersions(ctx context.Context, imageID string) (int, error) {
	return sm.postgres.CountReconstructionVersions(ctx, imageID)
}

// StoreReconstructionVersion delegates to Postgres.
func (sm *StorageManager) StoreReconstructionVersion(ctx context.Context, version *pipeline.ReconstructionVersion) error {
	return sm.postgres.StoreReconstructionVersion(ctx, version)
}

// SimilarGlyphs embeds the query and searches the meaning index, returning
// known symbols closest in meaning.
func (sm *StorageManager) SimilarGlyphs(ctx context.Context, query string, limit int) ([]string, error) {
	if sm.vectors == nil || sm.embedder == nil {
		return nil, nil
	}

	vector, err := sm.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	neighbors, err := sm.vectors.SearchSimilar(ctx, vector, limit)
	if err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		symbols = append(symbols, n.Symbol)
	}
	return symbols, nil
}

// indexMeaning embeds and upserts a real meaning into the vector index.
// Placeholder meanings are never indexed; failures are logged and dropped.
func (sm *StorageManager) indexMeaning(ctx context.Context, glyphID, symbol, meaning string) {
	if sm.vectors == nil || sm.embedder == nil {
		return
	}
	if !isIndexableMeaning(meaning) {
		return
	}

	vector, err := sm.embedder.Embed(ctx, meaning)
	if err != nil {
		sm.logger.Warn("Failed to embed glyph meaning", "symbol", symbol, "error", err)
		return
	}

	if err := sm.vectors.UpsertGlyphMeaning(ctx, glyphID, symbol, meaning, vector); err != nil {
		sm.logger.Warn("Failed to index glyph meaning", "symbol", symbol, "error", err)
	}
}

// isIndexableMeaning excludes empty and stand-in meanings from the index.
func isIndexableMeaning(meaning string) bool {
	trimmed := strings.TrimSpace(strings.ToLower(meaning))
	if trimmed == "" || trimmed == "unknown character" {
		return false
	}
	return !strings.HasPrefix(trimmed, "character:")
}

// Stats reports backend health for diagnostics.
func (sm *StorageManager) Stats(ctx context.Context) map[string]interface{} {
	stats := map[string]interface{}{
		"postgres": sm.postgres.GetStats(),
	}
	if sm.vectors != nil {
		if info, err := sm.vectors.CollectionInfo(ctx); err == nil {
			stats["qdrant"] = info
		} else {
			stats["qdrant_error"] = err.Error()
		}
	}
	return stats
}

// Close shuts down every backend, reporting the first error.
func (sm *StorageManager) Close() error {
	var firstErr error
	if sm.vectors != nil {
		if err := sm.vectors.Close(); err != nil {
			firstErr = err
		}
	}
	if err := sm.postgres.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
