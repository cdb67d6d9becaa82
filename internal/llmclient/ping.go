package llmclient

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/chartwise/api/schemas"
)

// PingPrompt is the probe sent by Ping.
const PingPrompt = `Test connection. Respond with "OK".`

// Ping sends a tiny deterministic request to check the key and model.
func Ping(ctx context.Context, client schemas.LLMClient, apiKey, model string) (string, error) {
	reply, err := client.Generate(ctx, schemas.GenerationRequest{
		UserPrompt: PingPrompt,
		Model:      model,
		APIKey:     apiKey,
		Options:    schemas.GenerationOptions{MaxTokens: 10, Temperature: 0},
	})
	if err != nil {
		return "", fmt.Errorf("connection test failed: %w", err)
	}
	return reply, nil
}
