package llmclient

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chartwise/api/schemas"
	"github.com/xkilldash9x/chartwise/internal/config"
)

const providerOpenAI = "openai"

// OpenAIClient calls the chat completions API through go-openai.
type OpenAIClient struct {
	cfg        config.LLMConfig
	httpClient *http.Client
	retry      retrier
	logger     *zap.Logger
}

// NewOpenAIClient builds a client. cfg.Endpoint, when set, replaces the API base URL.
func NewOpenAIClient(cfg config.LLMConfig, logger *zap.Logger, opts ...Option) *OpenAIClient {
	o := applyOptions(opts)
	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.APITimeout}
	}
	logger = logger.Named("llm_client.openai")
	return &OpenAIClient{
		cfg:        cfg,
		httpClient: httpClient,
		retry:      retrier{policy: PolicyFromConfig(cfg.Retry), newTimer: o.newTimer, logger: logger},
		logger:     logger,
	}
}

// Generate sends the prompts as a system and a user message.
func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	key := req.APIKey
	if key == "" {
		key = c.cfg.APIKey
	}
	if key == "" {
		return "", configurationError(providerOpenAI, "API key is not configured")
	}

	clientCfg := openai.DefaultConfig(key)
	if c.cfg.Endpoint != "" {
		clientCfg.BaseURL = strings.TrimRight(c.cfg.Endpoint, "/")
	}
	clientCfg.HTTPClient = c.httpClient
	client := openai.NewClientWithConfig(clientCfg)
	chatReq := c.buildRequest(req)

	return c.retry.run(ctx, func(ctx context.Context) (string, error) {
		start := time.Now()
		resp, err := client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return "", classifyOpenAIError(err)
		}
		c.logger.Info("LLM generation complete (OpenAI)",
			zap.Duration("duration", time.Since(start)),
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			zap.Int("total_tokens", resp.Usage.TotalTokens),
		)
		if len(resp.Choices) == 0 {
			c.logger.Warn("OpenAI returned no choices.")
			return "", nil
		}
		return resp.Choices[0].Message.Content, nil
	})
}

func (c *OpenAIClient) buildRequest(req schemas.GenerationRequest) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	maxTokens := req.Options.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}

	var messages []openai.ChatCompletionMessage
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt})

	chatReq := openai.ChatCompletionRequest{Model: model, Messages: messages}
	// Reasoning models reject max_tokens and a custom temperature.
	if isReasoningModel(model) {
		chatReq.MaxCompletionTokens = maxTokens
	} else {
		chatReq.MaxTokens = maxTokens
		chatReq.Temperature = float32(req.Options.Temperature)
	}
	if req.Options.ForceJSONFormat {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	return chatReq
}

func isReasoningModel(model string) bool {
	m := strings.ToLower(model)
	return len(m) > 1 && m[0] == 'o' && m[1] >= '0' && m[1] <= '9'
}

func classifyOpenAIError(err error) *GatewayError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &GatewayError{
			Kind:       classifyStatus(apiErr.HTTPStatusCode),
			Provider:   providerOpenAI,
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
			Err:        err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &GatewayError{
			Kind:       classifyStatus(reqErr.HTTPStatusCode),
			Provider:   providerOpenAI,
			StatusCode: reqErr.HTTPStatusCode,
			Message:    http.StatusText(reqErr.HTTPStatusCode),
			Err:        err,
		}
	}
	return transportError(providerOpenAI, err)
}

// Close releases idle connections.
func (c *OpenAIClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
