package llmclient

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chartwise/api/schemas"
	"github.com/xkilldash9x/chartwise/internal/config"
)

func TestProviderForModel(t *testing.T) {
	cases := map[string]config.LLMProvider{
		"gemini-1.5-flash-latest": config.ProviderGemini,
		"Gemini-Pro":              config.ProviderGemini,
		"gpt-4o-mini":             config.ProviderOpenAI,
		"o3-mini":                 config.ProviderOpenAI,
		"o1":                      config.ProviderOpenAI,
		"orca":                    config.ProviderGemini,
		"":                        config.ProviderGemini,
	}
	for model, want := range cases {
		assert.Equal(t, want, ProviderForModel(model, config.ProviderGemini), model)
	}
}

func TestRouter_Generate(t *testing.T) {
	gemini, openaiClient := new(MockLLMClient), new(MockLLMClient)
	router, err := NewRouter(zap.NewNop(), config.ProviderGemini, map[config.LLMProvider]schemas.LLMClient{
		config.ProviderGemini: gemini,
		config.ProviderOpenAI: openaiClient,
	})
	require.NoError(t, err)

	gemini.On("Generate", mock.Anything, mock.MatchedBy(func(r schemas.GenerationRequest) bool { return r.Model == "" })).Return("from gemini", nil)
	openaiClient.On("Generate", mock.Anything, mock.MatchedBy(func(r schemas.GenerationRequest) bool { return r.Model == "gpt-4o" })).Return("from openai", nil)

	out, err := router.Generate(context.Background(), schemas.GenerationRequest{})
	require.NoError(t, err)
	assert.Equal(t, "from gemini", out)

	out, err = router.Generate(context.Background(), schemas.GenerationRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "from openai", out)

	gemini.AssertExpectations(t)
	openaiClient.AssertExpectations(t)
}

func TestRouter_MissingProvider(t *testing.T) {
	_, err := NewRouter(zap.NewNop(), config.ProviderOpenAI, map[config.LLMProvider]schemas.LLMClient{
		config.ProviderGemini: new(MockLLMClient),
	})
	require.Error(t, err)

	router, err := NewRouter(zap.NewNop(), config.ProviderGemini, map[config.LLMProvider]schemas.LLMClient{
		config.ProviderGemini: new(MockLLMClient),
	})
	require.NoError(t, err)
	_, err = router.Generate(context.Background(), schemas.GenerationRequest{Model: "gpt-4o"})
	assert.Equal(t, KindConfiguration, KindOf(err))
}

func TestRouter_CloseJoinsErrors(t *testing.T) {
	a, b := new(MockLLMClient), new(MockLLMClient)
	a.On("Close").Return(nil)
	b.On("Close").Return(errors.New("boom"))
	router, err := NewRouter(zap.NewNop(), config.ProviderGemini, map[config.LLMProvider]schemas.LLMClient{
		config.ProviderGemini: a,
		config.ProviderOpenAI: b,
	})
	require.NoError(t, err)

	assert.EqualError(t, router.Close(), "boom")
}

func TestNewClient(t *testing.T) {
	logger, _ := setupTestLogger(t)

	cfg := getValidLLMConfig(config.ProviderGemini, "")
	cfg.RequestsPerMinute = 0
	client, err := NewClient(cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &Router{}, client)

	cfg.RequestsPerMinute = 60
	client, err = NewClient(cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &RateLimitedClient{}, client)

	cfg.Provider = "anthropic"
	_, err = NewClient(cfg, logger)
	assert.ErrorContains(t, err, "unknown provider")
}

func TestNewClient_EndToEndThroughLimiter(t *testing.T) {
	srv, calls := scriptedServer(t, geminiOK, http.StatusOK)
	logger, _ := setupTestLogger(t)
	client, err := NewClient(getValidLLMConfig(config.ProviderGemini, srv.URL), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	reply, err := Ping(context.Background(), client, "", "")

	require.NoError(t, err)
	assert.NotEmpty(t, reply)
	assert.Equal(t, 1, calls.Load())
}

func TestRateLimitedClient_CancelledContext(t *testing.T) {
	next := new(MockLLMClient)
	c := NewRateLimitedClient(next, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Generate(ctx, schemas.GenerationRequest{})

	assert.Equal(t, KindRateLimited, KindOf(err))
	next.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestPing(t *testing.T) {
	client := new(MockLLMClient)
	client.On("Generate", mock.Anything, schemas.GenerationRequest{
		UserPrompt: PingPrompt,
		Model:      "gpt-4o-mini",
		APIKey:     "sk-test",
		Options:    schemas.GenerationOptions{MaxTokens: 10},
	}).Return("OK", nil).Once()

	out, err := Ping(context.Background(), client, "sk-test", "gpt-4o-mini")

	require.NoError(t, err)
	assert.Equal(t, "OK", out)

	failing := new(MockLLMClient)
	failing.On("Generate", mock.Anything, mock.Anything).Return("", &GatewayError{Kind: KindAuthentication})
	_, err = Ping(context.Background(), failing, "bad", "")
	assert.Equal(t, KindAuthentication, KindOf(err))
}
