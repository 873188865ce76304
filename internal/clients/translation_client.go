/**
 * Translation Client - ordered model configurations
 *
 * Requests a translation-plus-context string from an OpenAI-compatible chat
 * endpoint. The ordered model list is iterated by the Translation Generator;
 * this client performs one call per configuration with no retries.
 */

package clients

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/epigraphia/inscription-worker/internal/logging"
)

// TranslationClient produces natural-language translations of extracted text.
type TranslationClient struct {
	client *openai.Client
	models []string
	logger *logging.Logger
}

// NewTranslationClient creates a translation client with an ordered list of
// model configurations.
func NewTranslationClient(cfg OpenAIConfig, models []string) *TranslationClient {
	return &TranslationClient{
		client: newOpenAIClient(cfg),
		models: models,
		logger: logging.NewLogger("TranslationClient"),
	}
}

// Models returns the ordered model configurations to try.
func (c *TranslationClient) Models() []string {
	return c.models
}

// Translate requests a translation using one model configuration.
func (c *TranslationClient) Translate(ctx context.Context, model, text, scriptType string) (string, error) {
	c.logger.Info("Requesting translation", "model", model, "textLength", len(text))

	prompt := fmt.Sprintf(
		"The following text was extracted from an ancient %s inscription:\n\n%s\n\n"+
			"Translate it into natural English and add one sentence of cultural context. "+
			"Respond with the translation and context only.",
		scriptType, text)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   1024,
		Temperature: 0.4,
	})
	if err != nil {
		return "", wrapOpenAIError(fmt.Sprintf("translation/%s", model), err)
	}

	return firstChoice(resp), nil
}
