package schemas

import "context"

// GenerationOptions provides detailed parameters to control the text generation
// process of the LLM.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`       // Controls randomness. Lower is more deterministic.
	MaxTokens       int     `json:"max_tokens"`        // Upper bound on completion length.
	ForceJSONFormat bool    `json:"force_json_format"` // If true, asks the provider for a JSON-only completion.
}

// GenerationRequest encapsulates a complete request to the LLM: the system
// instructions, the user prompt, the target model and generation options.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Model        string            `json:"model,omitempty"`
	APIKey       string            `json:"-"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient defines a standard interface for interacting with a Large Language
// Model, abstracting the specifics of the underlying provider (Gemini, OpenAI).
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	// A missing or empty completion is returned as "" with a nil error.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client.
	Close() error
}
