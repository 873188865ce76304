package clients

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/epigraphia/inscription-worker/internal/errors"
)

// OpenAIConfig holds settings shared by the OpenAI-compatible clients.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// newOpenAIClient creates a go-openai client against an OpenAI-compatible API.
func newOpenAIClient(cfg OpenAIConfig) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}
	return openai.NewClientWithConfig(clientCfg)
}

// wrapOpenAIError converts a go-openai error into a classified backend error
// so the orchestrators can decide between "skip" and "capture and advance".
func wrapOpenAIError(backend string, err error) error {
	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) {
		code := ClassifyStatus(apiErr.HTTPStatusCode)
		return errors.NewBackendError(code, backend,
			fmt.Errorf("API error %d: %s", apiErr.HTTPStatusCode, apiErr.Message))
	}

	var reqErr *openai.RequestError
	if stderrors.As(err, &reqErr) {
		code := ClassifyStatus(reqErr.HTTPStatusCode)
		return errors.NewBackendError(code, backend,
			fmt.Errorf("request error %d: %s", reqErr.HTTPStatusCode, string(reqErr.Body)))
	}

	return errors.NewBackendError(ClassifyErr(err), backend, err)
}

// firstChoice extracts the assistant text from a chat completion response.
func firstChoice(resp openai.ChatCompletionResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content)
}

// extractJSONObject pulls the outermost JSON object out of a model response,
// tolerating code fences and surrounding prose.
func extractJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// extractJSONArray pulls the outermost JSON array out of a model response.
func extractJSONArray(s string) (string, bool) {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
