/**
 * PostgreSQL Client for the Inscription Worker
 *
 * Persists the Glyph Store, processing run state and reconstruction versions
 * in the epigraphy schema.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/epigraphia/inscription-worker/internal/pipeline"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// sanitizeConfidence rounds confidence to 4 decimal places and clamps to
// [0.0, 1.0]. Float64 representations like 0.9632000000000001 trip
// PostgreSQL NUMERIC casts otherwise.
func sanitizeConfidence(confidence float64) float64 {
	if confidence < 0.0 {
		return 0.0
	}
	if confidence > 1.0 {
		return 1.0
	}
	return float64(int(confidence*10000+0.5)) / 10000
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// FindOrCreateScript returns the script row for name, creating it on first
// sight. The no-op DO UPDATE keeps RETURNING populated on conflict.
func (p *PostgresClient) FindOrCreateScript(ctx context.Context, name string) (*pipeline.ScriptRecord, error) {
	if name == "" {
		return nil, fmt.Errorf("script name is required")
	}

	query := `
		INSERT INTO epigraphy.scripts (name, created_at)
		VALUES ($1, NOW())
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name
	`

	var record pipeline.ScriptRecord
	if err := p.db.QueryRowContext(ctx, query, name).Scan(&record.ID, &record.Name); err != nil {
		return nil, fmt.Errorf("failed to find or create script %q: %w", name, err)
	}
	return &record, nil
}

// FindGlyphBySymbol returns the glyph row or (nil, nil) when the symbol is
// unknown in the script.
func (p *PostgresClient) FindGlyphBySymbol(ctx context.Context, scriptID, symbol string) (*pipeline.GlyphRecord, error) {
	query := `
		SELECT id, script_id, symbol, meaning, confidence, stroke_count
		FROM epigraphy.glyphs
		WHERE script_id = $1 AND symbol = $2
	`

	var record pipeline.GlyphRecord
	err := p.db.QueryRowContext(ctx, query, scriptID, symbol).Scan(
		&record.ID, &record.ScriptID, &record.Symbol,
		&record.Meaning, &record.Confidence, &record.StrokeCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query glyph %q: %w", symbol, err)
	}
	return &record, nil
}

// CreateGlyph inserts a glyph, returning the existing row when a concurrent
// worker created the same symbol first. The conflict arm only touches
// updated_at so an established meaning is never clobbered.
func (p *PostgresClient) CreateGlyph(ctx context.Context, glyph *pipeline.GlyphRecord) (*pipeline.GlyphRecord, error) {
	if glyph.ScriptID == "" || glyph.Symbol == "" {
		return nil, fmt.Errorf("script ID and symbol are required")
	}

	query := `
		INSERT INTO epigraphy.glyphs (
			script_id, symbol, meaning, confidence, stroke_count,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4::NUMERIC(5,4), $5, NOW(), NOW())
		ON CONFLICT (script_id, symbol) DO UPDATE SET updated_at = NOW()
		RETURNING id, script_id, symbol, meaning, confidence, stroke_count
	`

	var record pipeline.GlyphRecord
	err := p.db.QueryRowContext(ctx, query,
		glyph.ScriptID, glyph.Symbol, glyph.Meaning,
		sanitizeConfidence(glyph.Confidence), glyph.StrokeCount,
	).Scan(
		&record.ID, &record.ScriptID, &record.Symbol,
		&record.Meaning, &record.Confidence, &record.StrokeCount)
	if err != nil {
		return nil, fmt.Errorf("failed to create glyph %q: %w", glyph.Symbol, err)
	}
	return &record, nil
}

// UpdateGlyph rewrites a glyph's meaning and confidence. Returns the symbol
// so callers can refresh the vector index.
func (p *PostgresClient) UpdateGlyph(ctx context.Context, id, meaning string, confidence float64) (string, error) {
	query := `
		UPDATE epigraphy.glyphs
		SET meaning = $2, confidence = $3::NUMERIC(5,4), updated_at = NOW()
		WHERE id = $1
		RETURNING symbol
	`

	var symbol string
	err := p.db.QueryRowContext(ctx, query, id, meaning, sanitizeConfidence(confidence)).Scan(&symbol)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("glyph not found: %s", id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to update glyph %s: %w", id, err)
	}
	return symbol, nil
}

// UpdateRunStatus upserts run state. The worker creates the run row on first
// transition when the API has not created it yet.
func (p *PostgresClient) UpdateRunStatus(ctx context.Context, update *pipeline.RunUpdate) error {
	if update.RunID == "" {
		return fmt.Errorf("run ID is required")
	}
	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	metadataJSON, err := json.Marshal(update.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO epigraphy.processing_runs (
			id, image_id, status, extracted_text, script_type,
			confidence, method, error_message, metadata,
			created_at, updated_at
		) VALUES (
			$1::uuid, NULLIF($2, ''), $3,
			NULLIF($4, ''), NULLIF($5, ''),
			NULLIF($6::NUMERIC(5,4), 0), NULLIF($7, ''), NULLIF($8, ''),
			COALESCE($9::jsonb, '{}'::jsonb),
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			image_id = COALESCE(EXCLUDED.image_id, epigraphy.processing_runs.image_id),
			extracted_text = COALESCE(EXCLUDED.extracted_text, epigraphy.processing_runs.extracted_text),
			script_type = COALESCE(EXCLUDED.script_type, epigraphy.processing_runs.script_type),
			confidence = COALESCE(EXCLUDED.confidence, epigraphy.processing_runs.confidence),
			method = COALESCE(EXCLUDED.method, epigraphy.processing_runs.method),
			error_message = NULLIF(EXCLUDED.error_message, ''),
			metadata = COALESCE(EXCLUDED.metadata, epigraphy.processing_runs.metadata),
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.RunID,
		update.ImageID,
		string(update.Status),
		update.ExtractedText,
		update.ScriptType,
		sanitizeConfidence(update.Confidence),
		update.Method,
		update.ErrorMessage,
		metadataJSON,
	).Scan(&returnedID)
	if err != nil {
		return fmt.Errorf("failed to update run status (run=%s, status=%s): %w",
			update.RunID, update.Status, err)
	}

	return nil
}

// CountReconstructionVersions returns the number of stored versions for a
// source image.
func (p *PostgresClient) CountReconstructionVersions(ctx context.Context, imageID string) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM epigraphy.reconstruction_versions WHERE image_id = $1`,
		imageID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count reconstruction versions for %s: %w", imageID, err)
	}
	return count, nil
}

// StoreReconstructionVersion appends one reconstruction version. Versions are
// insert only; earlier attempts are never rewritten.
func (p *PostgresClient) StoreReconstructionVersion(ctx context.Context, version *pipeline.ReconstructionVersion) error {
	if version.ImageID == "" {
		return fmt.Errorf("image ID is required")
	}

	resultsJSON, err := json.Marshal(version.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal reconstruction results: %w", err)
	}

	query := `
		INSERT INTO epigraphy.reconstruction_versions (
			id, image_id, version_number, confidence, results, created_at
		) VALUES ($1::uuid, $2, $3, $4::NUMERIC(5,4), $5::jsonb, $6)
	`

	_, err = p.db.ExecContext(ctx, query,
		version.ID,
		version.ImageID,
		version.VersionNumber,
		sanitizeConfidence(version.Confidence),
		resultsJSON,
		version.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store reconstruction version %d for %s: %w",
			version.VersionNumber, version.ImageID, err)
	}

	return nil
}

// Ping verifies database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	return p.db.Close()
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}
