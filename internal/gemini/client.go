// Package gemini implements tone classification of chat transcripts via
// Google's Gemini API with a constrained structured-output schema.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/valmeida/chatvault/internal/config"
)

// ToneTags is the closed set of tags the model may answer with.
var ToneTags = []string{
	"aggressive",
	"friendly",
	"sarcastic",
	"formal",
	"casual",
	"excited",
	"anxious",
	"neutral",
}

// Client defines the interface for tone classification.
type Client interface {
	// ClassifyTone labels the conversational tone of a transcript with at
	// most one tag from ToneTags. An empty string means no opinion.
	ClassifyTone(ctx context.Context, transcript []string) (string, error)
}

type sdkClient struct {
	genaiClient      *genai.Client
	log              *slog.Logger
	contentConfig    *genai.GenerateContentConfig
	defaultModelName string
	maxRetries       int
	retryDelay       time.Duration
}

// NewClient creates a new Gemini client with the provided configuration.
func NewClient(ctx context.Context, cfg config.GeminiConfig, log *slog.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	one := int64(1)
	baseCfg := &genai.GenerateContentConfig{
		Temperature: &cfg.Temperature,
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: toneSystemInstruction}},
		},
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type:        genai.TypeArray,
			Description: "Zero or one tone tags describing the conversation.",
			MaxItems:    &one,
			Items: &genai.Schema{
				Type: genai.TypeString,
				Enum: ToneTags,
			},
		},
	}

	logger := log.With("component", "gemini_client")
	logger.Info("Gemini client initialized successfully", "model", cfg.ModelName)
	return &sdkClient{
		genaiClient:      gi,
		log:              logger,
		contentConfig:    baseCfg,
		defaultModelName: cfg.ModelName,
		maxRetries:       cfg.MaxRetries,
		retryDelay:       time.Duration(cfg.RetryDelaySeconds) * time.Second,
	}, nil
}

const toneSystemInstruction = "You label the overall tone of a chat conversation. " +
	"You receive transcript lines of the form \"[HH:MM] name: content\". " +
	"Answer with a JSON array containing at most one tag from the allowed set, " +
	"or an empty array when no tag clearly applies."

func (c *sdkClient) ClassifyTone(ctx context.Context, transcript []string) (string, error) {
	c.log.DebugContext(ctx, "Classifying tone", "lines", len(transcript))

	contents := []*genai.Content{
		genai.NewContentFromText(strings.Join(transcript, "\n"), genai.RoleUser),
	}

	resp, err := c.generateContentWithRetries(ctx, c.defaultModelName, contents, c.contentConfig)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini tone classification failed", "error", err)
		return "", fmt.Errorf("gemini tone classification failed: %w", err)
	}

	jsonText, err := extractTextFromResponse(resp)
	if err != nil {
		c.log.ErrorContext(ctx, "Failed to extract tone response text", "error", err)
		return "", fmt.Errorf("failed to extract tone response: %w", err)
	}

	return ParseToneResponse(jsonText)
}

// ParseToneResponse decodes the model's JSON array reply and returns the
// selected tag, or "" for an empty selection. Tags outside the closed set
// are rejected.
func ParseToneResponse(jsonText string) (string, error) {
	var tags []string
	if err := json.Unmarshal([]byte(jsonText), &tags); err != nil {
		return "", fmt.Errorf("invalid tone JSON array received: %w", err)
	}
	if len(tags) == 0 {
		return "", nil
	}

	tag := tags[0]
	for _, allowed := range ToneTags {
		if tag == allowed {
			return tag, nil
		}
	}
	return "", fmt.Errorf("tone tag %q is not in the allowed set", tag)
}

func (c *sdkClient) generateContentWithRetries(ctx context.Context, modelName string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	var err error

	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.genaiClient.Models.GenerateContent(ctx, modelName, contents, cfg)
		if err == nil {
			return resp, nil
		}

		c.log.WarnContext(ctx, "Gemini API call failed, checking for retry", "attempt", i+1, "max_retries", c.maxRetries, "error", err)

		var apiErr *genai.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == 500 || apiErr.Code == 503) {
			if i < c.maxRetries {
				c.log.InfoContext(ctx, "Retrying Gemini API call due to retriable APIError", "delay", c.retryDelay, "code", apiErr.Code)
				time.Sleep(c.retryDelay)
				continue
			}
			return nil, fmt.Errorf("gemini API call failed after %d retries (APIError code %d): %w", c.maxRetries, apiErr.Code, err)
		}

		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}
	return nil, err
}

func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reasonMsg := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reasonMsg = resp.PromptFeedback.BlockReasonMessage
		}
		return "", fmt.Errorf("request blocked by safety filter: %s", reasonMsg)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		return "", fmt.Errorf("model returned no content, finish reason: %s", finishReason)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("model returned empty text")
	}
	return text, nil
}
