/**
 * Semantic Inference Client - glyph meaning lookup
 *
 * Requests concise meanings for batches of inscription characters from an
 * OpenAI-compatible chat endpoint. The whole character set goes out in a
 * single request first; if that fails or the output is not parseable JSON,
 * the client re-queries in smaller batches before giving up.
 */

package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/epigraphia/inscription-worker/internal/logging"
)

const (
	// Token budget grows with the character count but stays bounded so a
	// misbehaving batch cannot request an unbounded completion.
	meaningTokensPerChar = 48
	meaningTokensBase    = 128
	meaningTokensCap     = 4096

	// Retry batch size when the single bulk request fails.
	meaningRetryBatchSize = 20
)

// SemanticClient infers glyph meanings.
type SemanticClient struct {
	client *openai.Client
	model  string
	logger *logging.Logger
}

// NewSemanticClient creates a new semantic inference client.
func NewSemanticClient(cfg OpenAIConfig, model string) *SemanticClient {
	return &SemanticClient{
		client: newOpenAIClient(cfg),
		model:  model,
		logger: logging.NewLogger("SemanticClient"),
	}
}

// Meanings returns a meaning per character for as many of the given characters
// as possible. It issues one bulk request sized to the character count, then
// falls back to batches of 20 on failure. A nil map with an error means the
// service produced nothing usable.
func (c *SemanticClient) Meanings(ctx context.Context, chars []string, translationContext string) (map[string]string, error) {
	if len(chars) == 0 {
		return map[string]string{}, nil
	}

	c.logger.Info("Requesting glyph meanings", "characters", len(chars), "hasContext", translationContext != "")

	meanings, err := c.requestMeanings(ctx, chars, translationContext)
	if err == nil {
		return meanings, nil
	}
	c.logger.Warn("Bulk meaning request failed, retrying in smaller batches",
		"characters", len(chars), "batchSize", meaningRetryBatchSize, "error", err)

	merged := make(map[string]string)
	for start := 0; start < len(chars); start += meaningRetryBatchSize {
		end := start + meaningRetryBatchSize
		if end > len(chars) {
			end = len(chars)
		}
		batch, batchErr := c.requestMeanings(ctx, chars[start:end], translationContext)
		if batchErr != nil {
			c.logger.Warn("Meaning batch failed, skipping", "from", start, "to", end, "error", batchErr)
			continue
		}
		for k, v := range batch {
			merged[k] = v
		}
	}

	if len(merged) == 0 {
		return nil, fmt.Errorf("meaning inference failed for all batches: %w", err)
	}
	return merged, nil
}

// SingleMeaning is the last-resort lookup for one character absent from the
// Glyph Store.
func (c *SemanticClient) SingleMeaning(ctx context.Context, ch string, translationContext string) (string, error) {
	meanings, err := c.requestMeanings(ctx, []string{ch}, translationContext)
	if err != nil {
		return "", err
	}
	meaning, ok := meanings[ch]
	if !ok || strings.TrimSpace(meaning) == "" {
		return "", fmt.Errorf("no meaning returned for %q", ch)
	}
	return meaning, nil
}

func (c *SemanticClient) requestMeanings(ctx context.Context, chars []string, translationContext string) (map[string]string, error) {
	var sb strings.Builder
	sb.WriteString("You are an expert epigrapher of ancient scripts. ")
	sb.WriteString("For each of the following characters, give a concise English meaning. ")
	if translationContext != "" {
		sb.WriteString(fmt.Sprintf("The characters appear in an inscription whose rough translation is: %q. ", translationContext))
		sb.WriteString("Prefer meanings plausible in that context. ")
	}
	sb.WriteString("Respond with a single JSON object mapping each character to its meaning, nothing else.\n")
	sb.WriteString("Characters: ")
	sb.WriteString(strings.Join(chars, " "))

	budget := meaningTokensBase + meaningTokensPerChar*len(chars)
	if budget > meaningTokensCap {
		budget = meaningTokensCap
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: sb.String()},
		},
		MaxTokens:   budget,
		Temperature: 0.2,
	})
	if err != nil {
		return nil, wrapOpenAIError("semantic-inference", err)
	}

	raw, ok := extractJSONObject(firstChoice(resp))
	if !ok {
		return nil, fmt.Errorf("response contained no JSON object")
	}

	var meanings map[string]string
	if err := json.Unmarshal([]byte(raw), &meanings); err != nil {
		return nil, fmt.Errorf("failed to parse meanings JSON: %w", err)
	}

	// Drop empty values so callers can treat presence as a real meaning.
	for k, v := range meanings {
		if strings.TrimSpace(v) == "" {
			delete(meanings, k)
		}
	}

	return meanings, nil
}
