/**
 * Vision provider registry entries
 *
 * Adapts the backend clients to the orchestrator's provider contract. The
 * registry order and the fixed confidence weights live here: adding or
 * removing a backend is a configuration change in the coordinator wiring.
 */

package pipeline

import (
	"context"

	"github.com/epigraphia/inscription-worker/internal/clients"
)

// Fixed confidence weights per extraction tier.
const (
	primaryVisionConfidence   = 0.90
	auxiliaryVisionConfidence = 0.85
	localVisionConfidence     = 0.80
)

// PrimaryVisionProvider backs extraction with the OpenAI-compatible vision
// model.
type PrimaryVisionProvider struct {
	client     *clients.OpenAIVisionClient
	scriptType string
}

// NewPrimaryVisionProvider creates the primary vision registry entry. A nil
// client marks the provider unavailable.
func NewPrimaryVisionProvider(client *clients.OpenAIVisionClient, scriptType string) *PrimaryVisionProvider {
	return &PrimaryVisionProvider{client: client, scriptType: scriptType}
}

func (p *PrimaryVisionProvider) Name() string             { return "primary-vision" }
func (p *PrimaryVisionProvider) Method() ExtractionMethod { return MethodPrimaryVision }
func (p *PrimaryVisionProvider) Weight() float64          { return primaryVisionConfidence }
func (p *PrimaryVisionProvider) Available() bool          { return p.client != nil }

func (p *PrimaryVisionProvider) Extract(ctx context.Context, image []byte) (string, error) {
	return p.client.ExtractText(ctx, image, p.scriptType)
}

// AuxiliaryVisionProvider backs extraction with the self-hosted vision
// service.
type AuxiliaryVisionProvider struct {
	client     *clients.AuxVisionClient
	scriptType string
}

// NewAuxiliaryVisionProvider creates the auxiliary vision registry entry.
func NewAuxiliaryVisionProvider(client *clients.AuxVisionClient, scriptType string) *AuxiliaryVisionProvider {
	return &AuxiliaryVisionProvider{client: client, scriptType: scriptType}
}

func (p *AuxiliaryVisionProvider) Name() string             { return "auxiliary-vision" }
func (p *AuxiliaryVisionProvider) Method() ExtractionMethod { return MethodAuxiliaryVision }
func (p *AuxiliaryVisionProvider) Weight() float64          { return auxiliaryVisionConfidence }
func (p *AuxiliaryVisionProvider) Available() bool          { return p.client != nil }

func (p *AuxiliaryVisionProvider) Extract(ctx context.Context, image []byte) (string, error) {
	return p.client.ExtractText(ctx, image, p.scriptType)
}
