package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	anthropicAPIVersion     = "2023-06-01"
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1/messages"
)

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float32           `json:"temperature,omitempty"`
	TopP        *float32           `json:"top_p,omitempty"`
	StopSeqs    []string           `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type anthropicResponse struct {
	ID      string             `json:"id"`
	Type    string             `json:"type"`
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

// AnthropicClient calls the Anthropic Messages API over plain HTTP.
type AnthropicClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

func NewAnthropicClient() (*AnthropicClient, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/anthropic_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err != nil {
			slog.Error("ANTHROPIC_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
		}
		apiKey = strings.TrimSpace(string(apiKeyBytes))
		slog.Info("Read the Anthropic API key from container secrets")
	}
	model := os.Getenv("ANTHROPIC_MODEL")
	if model == "" {
		model = "claude-3-5-haiku-latest"
		slog.Warn("ANTHROPIC_MODEL not set, defaulting", "model", model)
	}
	baseURL := os.Getenv("ANTHROPIC_BASE_URL")
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	slog.Info("Initializing Anthropic client", "model", model)
	return &AnthropicClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}, nil
}

// Generate implements the LLMClient interface.
func (a *AnthropicClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	maxTokens := 2048
	if params.MaxTokens != nil {
		maxTokens = *params.MaxTokens
	}
	reqBody := anthropicRequest{
		Model:       a.model,
		System:      "You are a precise analytics assistant for experiment data.",
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		StopSeqs:    params.Stop,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal Anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create Anthropic request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		slog.Error("Anthropic API call failed", "error", err)
		return "", fmt.Errorf("Anthropic API call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read Anthropic response: %w", err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse Anthropic response: %w", err)
	}
	if parsed.Error != nil {
		slog.Error("Anthropic returned an error", "type", parsed.Error.Type, "message", parsed.Error.Message)
		return "", fmt.Errorf("Anthropic error: %s", parsed.Error.Message)
	}
	if len(parsed.Content) == 0 {
		return "", fmt.Errorf("Anthropic returned no content")
	}

	var out strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	return out.String(), nil
}
