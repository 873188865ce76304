/**
 * Verification Client - extraction plausibility probe
 *
 * A short continuation probe asking an auxiliary language model whether the
 * extracted text is plausible in its script domain. Validation only: the
 * verdict adjusts confidence, never the text.
 */

package clients

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/epigraphia/inscription-worker/internal/logging"
)

// VerificationClient judges extraction plausibility.
type VerificationClient struct {
	client *openai.Client
	model  string
	logger *logging.Logger
}

// NewVerificationClient creates a new verification client.
func NewVerificationClient(cfg OpenAIConfig, model string) *VerificationClient {
	return &VerificationClient{
		client: newOpenAIClient(cfg),
		model:  model,
		logger: logging.NewLogger("VerificationClient"),
	}
}

// Verify reports whether the text is plausible for the given script family.
func (c *VerificationClient) Verify(ctx context.Context, text, scriptType string) (bool, error) {
	prompt := fmt.Sprintf(
		"The text %q was extracted from an image of an ancient %s inscription. "+
			"Is it plausible text in that script domain? Answer with exactly YES or NO.",
		text, scriptType)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   8,
		Temperature: 0,
	})
	if err != nil {
		return false, wrapOpenAIError("verification", err)
	}

	verdict := strings.ToUpper(firstChoice(resp))
	plausible := strings.HasPrefix(verdict, "YES")
	c.logger.Info("Verification probe complete", "plausible", plausible)
	return plausible, nil
}
