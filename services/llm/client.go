package llm

import "context"

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend.
// The insights engine builds its proposer and summarizer collaborators on
// top of this single method; swapping providers never touches the
// sanitization/routing core.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}
