/**
 * Reconstruction Client - generative glyph reconstruction
 *
 * Sends the original inscription image plus the damaged-candidate list to a
 * multimodal model and asks for one plausible original glyph per candidate.
 * The script type and any similar known glyphs bias the prompt toward
 * period-appropriate forms.
 */

package clients

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/epigraphia/inscription-worker/internal/logging"
)

// DamagedGlyph identifies one reconstruction candidate within the inscription.
type DamagedGlyph struct {
	Symbol     string  `json:"symbol"`
	Position   int     `json:"position"`
	Confidence float64 `json:"confidence"`
}

// ReconstructedGlyph is the model's proposal for one candidate.
type ReconstructedGlyph struct {
	Glyph      string  `json:"glyph"`
	Confidence float64 `json:"confidence"`
	Details    string  `json:"details"`
}

// ReconstructionRequest carries one batch of candidates against one image.
type ReconstructionRequest struct {
	Image         []byte
	ScriptType    string
	Candidates    []DamagedGlyph
	SimilarGlyphs []string
}

// ReconstructionClient invokes the generative reconstruction capability.
type ReconstructionClient struct {
	client *openai.Client
	model  string
	logger *logging.Logger
}

// NewReconstructionClient creates a new reconstruction client.
func NewReconstructionClient(cfg OpenAIConfig, model string) *ReconstructionClient {
	return &ReconstructionClient{
		client: newOpenAIClient(cfg),
		model:  model,
		logger: logging.NewLogger("ReconstructionClient"),
	}
}

// Reconstruct proposes one glyph per candidate. The returned slice is aligned
// with the request's candidate order.
func (c *ReconstructionClient) Reconstruct(ctx context.Context, req *ReconstructionRequest) ([]ReconstructedGlyph, error) {
	if len(req.Candidates) == 0 {
		return nil, nil
	}

	c.logger.Info("Requesting glyph reconstruction",
		"model", c.model,
		"candidates", len(req.Candidates),
		"scriptType", req.ScriptType)

	candidateJSON, err := json.Marshal(req.Candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal candidates: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(
		"This image shows a damaged ancient %s inscription. ", req.ScriptType))
	sb.WriteString("The following characters are illegible or uncertain (position is the ")
	sb.WriteString("character index within the inscription): ")
	sb.Write(candidateJSON)
	sb.WriteString(". ")
	if len(req.SimilarGlyphs) > 0 {
		sb.WriteString(fmt.Sprintf(
			"Known glyphs with related meanings from the same script: %s. ",
			strings.Join(req.SimilarGlyphs, " ")))
	}
	sb.WriteString("For each candidate, propose the most plausible original glyph in ")
	sb.WriteString("period-appropriate form. Respond with a JSON array, one object per ")
	sb.WriteString(`candidate in the same order, each shaped {"glyph": "...", "confidence": 0.0-1.0, "details": "reasoning"}.`)

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(req.Image)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: sb.String()},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
		MaxTokens:   256 * len(req.Candidates),
		Temperature: 0.3,
	})
	if err != nil {
		return nil, wrapOpenAIError("reconstruction", err)
	}

	raw, ok := extractJSONArray(firstChoice(resp))
	if !ok {
		return nil, fmt.Errorf("reconstruction response contained no JSON array")
	}

	var results []ReconstructedGlyph
	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		return nil, fmt.Errorf("failed to parse reconstruction JSON: %w", err)
	}

	c.logger.Info("Reconstruction complete", "proposals", len(results))
	return results, nil
}
