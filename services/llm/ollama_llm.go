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
	"time"
)

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// OllamaClient talks to a local Ollama daemon for offline deployments.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewOllamaClient() (*OllamaClient, error) {
	baseURL := os.Getenv("OLLAMA_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := os.Getenv("OLLAMA_MODEL")
	if model == "" {
		model = "llama3.1"
		slog.Warn("OLLAMA_MODEL not set, defaulting", "model", model)
	}
	slog.Info("Initializing Ollama client", "base_url", baseURL, "model", model)
	return &OllamaClient{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: 4 * time.Minute,
		},
	}, nil
}

// Generate implements the LLMClient interface.
func (o *OllamaClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	options := map[string]any{}
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		options["stop"] = params.Stop
	}

	payload, err := json.Marshal(ollamaRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  false,
		Options: options,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal Ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create Ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		slog.Error("Ollama API call failed", "error", err)
		return "", fmt.Errorf("Ollama API call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read Ollama response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Ollama returned status %d: %.200s", resp.StatusCode, string(body))
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse Ollama response: %w", err)
	}
	return parsed.Response, nil
}
