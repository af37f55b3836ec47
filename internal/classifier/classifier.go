// Package classifier bridges to the external content-origin classifier,
// a sidecar serving the LLM-DetectAIve sequence-classification model.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrUpstream marks a failed call to the classifier sidecar.
var ErrUpstream = errors.New("classifier upstream error")

// Labels returned by the model. Closed set.
const (
	LabelHumanWritten         = "Human-Written"
	LabelMachineGenerated     = "Machine-Generated"
	LabelHumanMachinePolished = "Human-Written, Machine-Polished"
	LabelMachineHumanized     = "Machine-Written, Machine-Humanized"
)

// Prediction is one label/confidence pair from the classifier.
type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type predictRequest struct {
	Text string `json:"text"`
}

// Client calls the classifier sidecar over HTTP. No retries: a downstream
// failure propagates to the caller.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a classifier client for the given predict URL.
func NewClient(url string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "classifier"),
	}
}

// ClassifyOrigin joins the texts with newlines into one blob and forwards
// it to the classifier. Zero texts yield an empty blob; the upstream call
// is still attempted and the model's answer returned as-is.
func (c *Client) ClassifyOrigin(ctx context.Context, texts []string) ([]Prediction, error) {
	blob := strings.Join(texts, "\n")

	body, err := json.Marshal(predictRequest{Text: blob})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal classifier request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build classifier request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.DebugContext(ctx, "Calling origin classifier", "url", c.url, "texts", len(texts), "blob_len", len(blob))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "Origin classifier call failed", "url", c.url, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.ErrorContext(ctx, "Origin classifier returned non-OK status", "url", c.url, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var predictions []Prediction
	if err := json.NewDecoder(resp.Body).Decode(&predictions); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrUpstream, err)
	}

	c.logger.DebugContext(ctx, "Origin classifier responded", "predictions", len(predictions))
	return predictions, nil
}
