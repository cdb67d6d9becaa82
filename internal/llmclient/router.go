package llmclient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/chartwise/api/schemas"
	"github.com/xkilldash9x/chartwise/internal/config"
)

// Router implements schemas.LLMClient and picks a provider per request.
type Router struct {
	logger   *zap.Logger
	clients  map[config.LLMProvider]schemas.LLMClient
	fallback config.LLMProvider
}

// NewRouter creates a router. fallback handles models that name no known provider.
func NewRouter(logger *zap.Logger, fallback config.LLMProvider, clients map[config.LLMProvider]schemas.LLMClient) (*Router, error) {
	if _, ok := clients[fallback]; !ok {
		return nil, fmt.Errorf("no LLM client configured for default provider: %s", fallback)
	}
	return &Router{
		logger:   logger.Named("llm_router"),
		clients:  clients,
		fallback: fallback,
	}, nil
}

// ProviderForModel infers the provider from a model name: gemini-* goes to
// Gemini, gpt-* and o-series models to OpenAI, anything else to fallback.
func ProviderForModel(model string, fallback config.LLMProvider) config.LLMProvider {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(m, "gemini"):
		return config.ProviderGemini
	case strings.HasPrefix(m, "gpt-"), isReasoningModel(m):
		return config.ProviderOpenAI
	default:
		return fallback
	}
}

// DefaultModel is used when a request names a provider but no model.
func DefaultModel(provider config.LLMProvider) string {
	switch provider {
	case config.ProviderOpenAI:
		return "gpt-4o-mini"
	default:
		return "gemini-1.5-flash-latest"
	}
}

// Generate routes req to the client for its model.
func (r *Router) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	provider := ProviderForModel(req.Model, r.fallback)
	client, ok := r.clients[provider]
	if !ok {
		return "", configurationError(string(provider), "provider is not enabled")
	}
	r.logger.Debug("Routing LLM request", zap.String("provider", string(provider)), zap.String("model", req.Model))
	return client.Generate(ctx, req)
}

// Close closes every routed client.
func (r *Router) Close() error {
	var errs []error
	for _, c := range r.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
