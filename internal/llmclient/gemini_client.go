// internal/llmclient/gemini_client.go
package llmclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chartwise/api/schemas"
	"github.com/xkilldash9x/chartwise/internal/config"
)

const (
	providerGemini      = "gemini"
	defaultGeminiBase   = "https://generativelanguage.googleapis.com/v1beta"
	maxResponseBodySize = 4 << 20
)

// GeminiClient calls the Gemini generateContent REST endpoint.
type GeminiClient struct {
	cfg        config.LLMConfig
	baseURL    string
	httpClient *http.Client
	retry      retrier
	logger     *zap.Logger
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string  `json:"response_mime_type,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"system_instruction,omitempty"`
	SafetySettings    []geminiSafetySetting  `json:"safetySettings,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// NewGeminiClient builds a client. The API key may be left empty in cfg and
// supplied per request instead.
func NewGeminiClient(cfg config.LLMConfig, logger *zap.Logger, opts ...Option) *GeminiClient {
	o := applyOptions(opts)
	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.APITimeout}
	}
	base := strings.TrimRight(cfg.Endpoint, "/")
	if base == "" {
		base = defaultGeminiBase
	}
	logger = logger.Named("llm_client.gemini")
	return &GeminiClient{
		cfg:        cfg,
		baseURL:    base,
		httpClient: httpClient,
		retry:      retrier{policy: PolicyFromConfig(cfg.Retry), newTimer: o.newTimer, logger: logger},
		logger:     logger,
	}
}

// Generate sends the prompts to Gemini, retrying rate-limit and transient failures.
func (c *GeminiClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	key := req.APIKey
	if key == "" {
		key = c.cfg.APIKey
	}
	if key == "" {
		return "", configurationError(providerGemini, "API key is not configured")
	}
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}

	body, err := json.Marshal(c.buildPayload(req))
	if err != nil {
		return "", fmt.Errorf("failed to marshal gemini request: %w", err)
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)

	return c.retry.run(ctx, func(ctx context.Context) (string, error) {
		return c.attempt(ctx, url, key, body)
	})
}

func (c *GeminiClient) attempt(ctx context.Context, url, key string, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &GatewayError{Kind: KindConfiguration, Provider: providerGemini, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", key)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", transportError(providerGemini, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return "", transportError(providerGemini, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		gwErr := statusError(providerGemini, resp.StatusCode, respBody)
		c.logger.Debug("Gemini returned an error status", zap.Int("status", resp.StatusCode), zap.String("message", gwErr.Message))
		return "", gwErr
	}

	var payload geminiResponse
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return "", &GatewayError{Kind: KindRejected, Provider: providerGemini, StatusCode: resp.StatusCode, Message: "malformed response body", Err: err}
	}

	c.logger.Info("LLM generation complete (Gemini)",
		zap.Duration("duration", time.Since(start)),
		zap.Int("prompt_tokens", payload.UsageMetadata.PromptTokenCount),
		zap.Int("completion_tokens", payload.UsageMetadata.CandidatesTokenCount),
		zap.Int("total_tokens", payload.UsageMetadata.TotalTokenCount),
	)

	if len(payload.Candidates) == 0 || len(payload.Candidates[0].Content.Parts) == 0 {
		reason := ""
		if len(payload.Candidates) > 0 {
			reason = payload.Candidates[0].FinishReason
		}
		c.logger.Warn("Gemini returned no completion text.", zap.String("finish_reason", reason))
		return "", nil
	}
	return payload.Candidates[0].Content.Parts[0].Text, nil
}

func (c *GeminiClient) buildPayload(req schemas.GenerationRequest) geminiRequest {
	maxTokens := req.Options.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}
	gen := geminiGenerationConfig{
		Temperature:     req.Options.Temperature,
		MaxOutputTokens: maxTokens,
	}
	if req.Options.ForceJSONFormat {
		gen.ResponseMimeType = "application/json"
	}

	payload := geminiRequest{
		Contents:         []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.UserPrompt}}}},
		SafetySettings:   c.safetySettings(),
		GenerationConfig: gen,
	}
	if req.SystemPrompt != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}
	return payload
}

// safetySettings are sorted by category so request bodies are stable.
func (c *GeminiClient) safetySettings() []geminiSafetySetting {
	if len(c.cfg.SafetyFilters) == 0 {
		return nil
	}
	settings := make([]geminiSafetySetting, 0, len(c.cfg.SafetyFilters))
	for category, threshold := range c.cfg.SafetyFilters {
		settings = append(settings, geminiSafetySetting{Category: category, Threshold: threshold})
	}
	sort.Slice(settings, func(i, j int) bool { return settings[i].Category < settings[j].Category })
	return settings
}

// Close releases idle connections.
func (c *GeminiClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
