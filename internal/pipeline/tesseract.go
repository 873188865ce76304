/**
 * Tesseract Provider - local OCR tier
 *
 * Free, offline extraction used ahead of the hosted vision backends when
 * enabled. Word-level boxes are not extracted; the matcher synthesizes
 * bounding boxes regardless of tier.
 */

package pipeline

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// TesseractProvider runs local Tesseract OCR.
type TesseractProvider struct {
	enabled  bool
	language string
}

// NewTesseractProvider creates the local OCR registry entry.
func NewTesseractProvider(enabled bool, language string) *TesseractProvider {
	if language == "" {
		language = "chi_sim"
	}
	return &TesseractProvider{enabled: enabled, language: language}
}

func (p *TesseractProvider) Name() string             { return "tesseract" }
func (p *TesseractProvider) Method() ExtractionMethod { return MethodLocalVision }
func (p *TesseractProvider) Weight() float64          { return localVisionConfidence }
func (p *TesseractProvider) Available() bool          { return p.enabled }

// Extract performs OCR using a fresh Tesseract client per call.
func (p *TesseractProvider) Extract(ctx context.Context, image []byte) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(p.language); err != nil {
		return "", fmt.Errorf("failed to set tesseract language: %w", err)
	}

	if err := client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract OCR failed: %w", err)
	}

	return text, nil
}
