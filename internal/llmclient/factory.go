// -- internal/llmclient/factory.go --
package llmclient

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/chartwise/api/schemas"
	"github.com/xkilldash9x/chartwise/internal/config"
)

// NewClient builds the gateway described by cfg: both provider clients behind
// a Router defaulting to cfg.Provider, throttled to cfg.RequestsPerMinute.
func NewClient(cfg config.LLMConfig, logger *zap.Logger, opts ...Option) (schemas.LLMClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid LLM configuration: %w", err)
	}

	// Each provider only uses the endpoint override when it is the default one.
	geminiCfg, openaiCfg := cfg, cfg
	if cfg.Provider != config.ProviderGemini {
		geminiCfg.Endpoint = ""
	}
	if cfg.Provider != config.ProviderOpenAI {
		openaiCfg.Endpoint = ""
	}

	router, err := NewRouter(logger, cfg.Provider, map[config.LLMProvider]schemas.LLMClient{
		config.ProviderGemini: NewGeminiClient(geminiCfg, logger, opts...),
		config.ProviderOpenAI: NewOpenAIClient(openaiCfg, logger, opts...),
	})
	if err != nil {
		return nil, err
	}
	if cfg.RequestsPerMinute <= 0 {
		return router, nil
	}
	return NewRateLimitedClient(router, cfg.RequestsPerMinute), nil
}

// RateLimitedClient delays calls so no more than the configured number start per minute.
type RateLimitedClient struct {
	next    schemas.LLMClient
	limiter *rate.Limiter
}

// NewRateLimitedClient wraps next with a limiter allowing perMinute calls, bursting to one.
func NewRateLimitedClient(next schemas.LLMClient, perMinute int) *RateLimitedClient {
	return &RateLimitedClient{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

// Generate waits for a token, then delegates.
func (c *RateLimitedClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", &GatewayError{Kind: KindRateLimited, Message: "local rate limit", Err: err}
	}
	return c.next.Generate(ctx, req)
}

// Close closes the wrapped client.
func (c *RateLimitedClient) Close() error { return c.next.Close() }
