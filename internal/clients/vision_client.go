/**
 * Auxiliary Vision Client - secondary OCR backend
 *
 * Talks to a self-hosted vision extraction service over plain HTTP.
 * Used after the primary vision backend in the fallback chain; a missing
 * service URL excludes this backend entirely.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/epigraphia/inscription-worker/internal/errors"
	"github.com/epigraphia/inscription-worker/internal/logging"
)

// AuxVisionClient handles communication with the auxiliary vision service.
type AuxVisionClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
}

// AuxExtractRequest represents a request to extract text from an image
type AuxExtractRequest struct {
	Image    string                 `json:"image"`  // Base64 encoded image
	Format   string                 `json:"format"` // "base64" or "url"
	Script   string                 `json:"script"` // Script family hint, e.g. "Seal Script"
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// AuxExtractResponse represents a response from the extraction endpoint
type AuxExtractResponse struct {
	Success bool           `json:"success"`
	Data    AuxExtractData `json:"data"`
	Message string         `json:"message"`
}

// AuxExtractData contains the extracted text and metadata
type AuxExtractData struct {
	Text           string  `json:"text"`
	Confidence     float64 `json:"confidence"`
	ModelUsed      string  `json:"modelUsed"`
	ProcessingTime int64   `json:"processingTime"` // milliseconds
}

// NewAuxVisionClient creates a new auxiliary vision client.
func NewAuxVisionClient(baseURL, apiKey string, httpClient *http.Client) *AuxVisionClient {
	return &AuxVisionClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logging.NewLogger("AuxVisionClient"),
	}
}

// ExtractText extracts text from an image via the auxiliary vision service.
func (c *AuxVisionClient) ExtractText(ctx context.Context, image []byte, scriptType string) (string, error) {
	c.logger.Info("Requesting text extraction from auxiliary vision service",
		"scriptType", scriptType,
		"imageSize", len(image))

	reqBody, err := json.Marshal(&AuxExtractRequest{
		Image:  base64.StdEncoding.EncodeToString(image),
		Format: "base64",
		Script: scriptType,
		Metadata: map[string]interface{}{
			"source":    "inscription-worker",
			"timestamp": time.Now().Unix(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/vision/extract-text", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Source", "inscription-worker")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", errors.NewBackendError(ClassifyErr(err), "auxiliary-vision", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		code := ClassifyStatus(resp.StatusCode)
		return "", errors.NewBackendError(code, "auxiliary-vision",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	var extractResp AuxExtractResponse
	if err := json.Unmarshal(body, &extractResp); err != nil {
		// Any shape mismatch degrades to "no text extracted" upstream.
		return "", errors.NewBackendError(errors.ErrorBackendFailed, "auxiliary-vision",
			fmt.Errorf("failed to parse response: %w", err))
	}

	if !extractResp.Success {
		return "", errors.NewBackendError(errors.ErrorBackendFailed, "auxiliary-vision",
			fmt.Errorf("service reported failure: %s", extractResp.Message))
	}

	c.logger.Info("Auxiliary extraction complete",
		"modelUsed", extractResp.Data.ModelUsed,
		"textLength", len(extractResp.Data.Text),
		"processingTime", extractResp.Data.ProcessingTime)

	return extractResp.Data.Text, nil
}

// HealthCheck verifies the auxiliary vision service is available.
func (c *AuxVisionClient) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/api/health", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check failed with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
