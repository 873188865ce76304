/**
 * Primary vision OCR backend
 *
 * Extracts inscription text from an image via an OpenAI-compatible
 * multimodal chat endpoint. The prompt is biased toward the script family
 * under study so the model transcribes rather than interprets.
 */

package clients

import (
	"context"
	"encoding/base64"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/epigraphia/inscription-worker/internal/logging"
)

// OpenAIVisionClient extracts text from inscription images.
type OpenAIVisionClient struct {
	client *openai.Client
	model  string
	logger *logging.Logger
}

// NewOpenAIVisionClient creates a new primary vision client.
func NewOpenAIVisionClient(cfg OpenAIConfig, model string) *OpenAIVisionClient {
	return &OpenAIVisionClient{
		client: newOpenAIClient(cfg),
		model:  model,
		logger: logging.NewLogger("OpenAIVisionClient"),
	}
}

// ExtractText performs vision OCR on the image bytes. Returns the raw
// transcription; an empty string means the model saw no legible characters.
func (c *OpenAIVisionClient) ExtractText(ctx context.Context, image []byte, scriptType string) (string, error) {
	c.logger.Info("Requesting vision extraction",
		"model", c.model,
		"scriptType", scriptType,
		"imageSize", len(image))

	prompt := fmt.Sprintf(
		"Transcribe every character visible in this image of an ancient %s inscription. "+
			"Output only the characters in reading order, no commentary. "+
			"If no characters are legible, output nothing.",
		scriptType)

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(image)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
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
		MaxTokens: 2048,
	})
	if err != nil {
		return "", wrapOpenAIError("primary-vision", err)
	}

	text := firstChoice(resp)
	c.logger.Info("Vision extraction complete", "model", c.model, "textLength", len(text))
	return text, nil
}
