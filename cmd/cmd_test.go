// File: cmd/cmd_test.go
package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/chartwise/api/schemas"
	"github.com/xkilldash9x/chartwise/internal/assistant"
	"github.com/xkilldash9x/chartwise/internal/llmclient"
	"github.com/xkilldash9x/chartwise/internal/pagehost"
	"github.com/xkilldash9x/chartwise/internal/prompt"
	"github.com/xkilldash9x/chartwise/internal/settings"
)

func TestVersion(t *testing.T) {
	isolate(t)

	_, out, err := runCLI(t, &fakeLLM{}, "version")
	require.NoError(t, err)
	assert.Equal(t, "chartwise version "+Version+"\n", out)

	_, out, err = runCLI(t, &fakeLLM{}, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "chartwise version "+Version)
}

func TestRootCmd_NoArgs(t *testing.T) {
	isolate(t)

	_, out, err := runCLI(t, &fakeLLM{})
	require.NoError(t, err)
	assert.Contains(t, out, "Chartwise answers questions about financial dashboards")
}

func TestExtract(t *testing.T) {
	dir := isolate(t)
	page := writePage(t, dir)

	t.Run("JSON", func(t *testing.T) {
		_, out, err := runCLI(t, &fakeLLM{}, "extract", "--file", page, "--url", quoteURL)
		require.NoError(t, err)
		assert.Contains(t, out, `"pageType": "symbol"`)
		assert.Contains(t, out, `"currentPrice": "189.50"`)
	})

	t.Run("Summary", func(t *testing.T) {
		_, out, err := runCLI(t, &fakeLLM{}, "extract", "--summary", "--file", page, "--url", quoteURL)
		require.NoError(t, err)
		assert.Contains(t, out, "Symbol:")
		assert.Contains(t, out, "189.50")
	})

	t.Run("OnlyPrice", func(t *testing.T) {
		_, out, err := runCLI(t, &fakeLLM{}, "extract", "--only", "price", "--file", page, "--url", quoteURL)
		require.NoError(t, err)
		assert.Contains(t, out, `"currentPrice": "189.50"`)
		assert.NotContains(t, out, "pageStructure")
	})

	t.Run("UnknownGroup", func(t *testing.T) {
		_, _, err := runCLI(t, &fakeLLM{}, "extract", "--only", "news", "--file", page)
		assert.ErrorContains(t, err, `unknown field group "news"`)
	})

	t.Run("NeedsPage", func(t *testing.T) {
		_, _, err := runCLI(t, &fakeLLM{}, "extract")
		assert.ErrorContains(t, err, "either --file or --url is required")
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, _, err := runCLI(t, &fakeLLM{}, "extract", "--file", filepath.Join(dir, "absent.html"))
		assert.ErrorContains(t, err, "failed to read page file")
	})
}

func TestAsk(t *testing.T) {
	dir := isolate(t)
	page := writePage(t, dir)
	reply := `{"response": "AAPL is at 189.50.", "actions": [{"type": "highlight", "selector": ".tv-symbol-price-quote__value", "label": "Show price", "description": "Outline the quote"}]}`

	t.Run("Text", func(t *testing.T) {
		llm := &fakeLLM{reply: reply}
		_, out, err := runCLI(t, llm, "ask", "--file", page, "--url", quoteURL, "--api-key", validKey, "What", "is", "the", "price?")

		require.NoError(t, err)
		assert.Contains(t, out, "AAPL is at 189.50.")
		assert.Contains(t, out, "Suggested actions:")
		assert.Contains(t, out, "1. Show price (highlight .tv-symbol-price-quote__value)")
		assert.Contains(t, out, "Outline the quote")
		assert.Contains(t, llm.last().UserPrompt, "What is the price?")
		assert.Equal(t, validKey, llm.last().APIKey)
		assert.True(t, llm.closed)
	})

	t.Run("JSON", func(t *testing.T) {
		_, out, err := runCLI(t, &fakeLLM{reply: reply}, "ask", "--json", "--file", page, "--url", quoteURL, "--api-key", validKey, "price?")

		require.NoError(t, err)
		assert.Contains(t, out, `"success": true`)
		assert.Contains(t, out, `"aiResponse": "AAPL is at 189.50."`)
	})

	t.Run("ModelFlags", func(t *testing.T) {
		llm := &fakeLLM{reply: "ok"}
		_, _, err := runCLI(t, llm, "ask", "--file", page, "--url", quoteURL, "--api-key", validKey,
			"--model", "gemini-1.5-pro", "--max-tokens", "64", "--temperature", "0.2", "price?")

		require.NoError(t, err)
		got := llm.last()
		assert.Equal(t, "gemini-1.5-pro", got.Model)
		assert.Equal(t, 64, got.Options.MaxTokens)
		assert.InDelta(t, 0.2, got.Options.Temperature, 1e-9)
	})

	t.Run("MissingKey", func(t *testing.T) {
		llm := &fakeLLM{reply: reply}
		_, _, err := runCLI(t, llm, "ask", "--file", page, "--url", quoteURL, "price?")

		require.Error(t, err)
		assert.ErrorIs(t, err, assistant.ErrConfiguration)
		assert.Equal(t, "Please check your API key in settings. (API key is not set)", err.Error())
		assert.Empty(t, llm.requests)
	})

	t.Run("GatewayFailure", func(t *testing.T) {
		llm := &fakeLLM{err: &llmclient.GatewayError{Kind: llmclient.KindRateLimited, Provider: "gemini", StatusCode: 429}}
		_, out, err := runCLI(t, llm, "ask", "--json", "--file", page, "--url", quoteURL, "--api-key", validKey, "price?")

		require.Error(t, err)
		assert.Equal(t, llmclient.KindRateLimited, llmclient.KindOf(err))
		assert.Contains(t, out, `"kind": "rate_limited"`)
	})
}

func TestAsk_Quick(t *testing.T) {
	dir := isolate(t)
	page := writePage(t, dir)

	llm := &fakeLLM{reply: "Key stats look fine."}
	_, _, err := runCLI(t, llm, "ask", "--file", page, "--url", quoteURL, "--api-key", validKey, "--quick", "keyStats")
	require.NoError(t, err)
	text, _ := prompt.Quick(prompt.QuickKeyStats)
	assert.Contains(t, llm.last().UserPrompt, text)

	_, _, err = runCLI(t, llm, "ask", "--file", page, "--api-key", validKey, "--quick", "gossip")
	assert.ErrorContains(t, err, `unknown quick prompt "gossip"`)

	_, _, err = runCLI(t, llm, "ask", "--file", page, "--api-key", validKey, "--quick", "trend", "and", "more")
	assert.ErrorContains(t, err, "not both")

	_, _, err = runCLI(t, llm, "ask", "--file", page, "--api-key", validKey)
	assert.ErrorContains(t, err, "a command or --quick is required")
	assert.Len(t, llm.requests, 1)
}

func TestAsk_UsesSavedSettings(t *testing.T) {
	dir := isolate(t)
	page := writePage(t, dir)
	store, err := settings.NewFileStore(filepath.Join(dir, "settings.yaml"))
	require.NoError(t, err)
	require.NoError(t, store.Save(settings.Settings{APIKey: validKey, Model: "gemini-1.5-pro", MaxTokens: 111}))

	llm := &fakeLLM{reply: "fine"}
	_, out, err := runCLI(t, llm, "ask", "--file", page, "--url", quoteURL, "price?")

	require.NoError(t, err)
	assert.Contains(t, out, "fine")
	assert.Equal(t, validKey, llm.last().APIKey)
	assert.Equal(t, "gemini-1.5-pro", llm.last().Model)
	assert.Equal(t, 111, llm.last().Options.MaxTokens)
}

func TestPing(t *testing.T) {
	isolate(t)

	t.Run("Gemini", func(t *testing.T) {
		llm := &fakeLLM{reply: "OK\n"}
		_, out, err := runCLI(t, llm, "ping", "--api-key", validKey)

		require.NoError(t, err)
		assert.Equal(t, "Connection OK (gemini): OK\n", out)
		assert.Equal(t, llmclient.PingPrompt, llm.last().UserPrompt)
		assert.Equal(t, "", llm.last().Model, "the configured default model is used")
	})

	t.Run("OpenAIDefaultModel", func(t *testing.T) {
		llm := &fakeLLM{reply: "OK"}
		_, out, err := runCLI(t, llm, "ping", "--provider", "openai", "--api-key", "sk-test-0123456789abcdef")

		require.NoError(t, err)
		assert.Contains(t, out, "Connection OK (openai)")
		assert.Equal(t, llmclient.DefaultModel("openai"), llm.last().Model)
	})

	t.Run("NoKey", func(t *testing.T) {
		_, _, err := runCLI(t, &fakeLLM{}, "ping")
		assert.ErrorContains(t, err, "no API key configured")
	})

	t.Run("BadKeyFormat", func(t *testing.T) {
		llm := &fakeLLM{}
		_, _, err := runCLI(t, llm, "ping", "--api-key", "sk-looks-like-openai-key")
		require.Error(t, err)
		assert.Empty(t, llm.requests)
	})

	t.Run("Rejected", func(t *testing.T) {
		llm := &fakeLLM{err: &llmclient.GatewayError{Kind: llmclient.KindAuthentication, Provider: "gemini", StatusCode: 403}}
		_, _, err := runCLI(t, llm, "ping", "--api-key", validKey)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "check your API key")
	})
}

func TestConfigPrecedence(t *testing.T) {
	dir := isolate(t)
	page := writePage(t, dir)
	cfgPath := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("llm:\n  max_tokens: 123\nextractor:\n  max_list_items: 4\n"), 0o600))

	a, _, err := runCLI(t, &fakeLLM{}, "--config", cfgPath, "extract", "--file", page)
	require.NoError(t, err)
	assert.Equal(t, 123, a.cfg.LLM.MaxTokens)
	assert.Equal(t, 4, a.cfg.Extractor.MaxListItems)

	t.Setenv("CHARTWISE_LLM_MAX_TOKENS", "456")
	a, _, err = runCLI(t, &fakeLLM{}, "--config", cfgPath, "extract", "--file", page)
	require.NoError(t, err)
	assert.Equal(t, 456, a.cfg.LLM.MaxTokens, "environment overrides the config file")

	t.Setenv("CHARTWISE_LLM_API_KEY", "from-env")
	a, _, err = runCLI(t, &fakeLLM{}, "--config", cfgPath, "extract", "--file", page, "--url", quoteURL)
	require.NoError(t, err)
	assert.Equal(t, "from-env", a.cfg.LLM.APIKey)

	a, _, err = runCLI(t, &fakeLLM{reply: "OK"}, "--config", cfgPath, "ping", "--api-key", validKey)
	require.NoError(t, err)
	assert.Equal(t, validKey, a.cfg.LLM.APIKey, "flags override the environment")
}

func TestConfigErrors(t *testing.T) {
	dir := isolate(t)

	_, _, err := runCLI(t, &fakeLLM{}, "--config", filepath.Join(dir, "missing.yaml"), "extract")
	assert.ErrorContains(t, err, "error reading config file")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("llm:\n  temperature: 5\n"), 0o600))
	_, _, err = runCLI(t, &fakeLLM{}, "--config", bad, "extract")
	assert.ErrorContains(t, err, "temperature")
}

func TestServe_StopsOnCancel(t *testing.T) {
	isolate(t)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	llm := &fakeLLM{}
	_, _, err := runCLIContext(ctx, t, llm, "serve", "--listen", "127.0.0.1:0")

	require.NoError(t, err)
	assert.True(t, llm.closed)
}

// statusHost fails Status while fail is set.
type statusHost struct {
	fail atomic.Bool
}

func (h *statusHost) Document(context.Context) (pagehost.Source, error) {
	return pagehost.Source{}, pagehost.ErrNoPage
}

func (h *statusHost) Execute(context.Context, schemas.Action) (schemas.DispatchResult, error) {
	return schemas.DispatchResult{}, nil
}

func (h *statusHost) Status(context.Context) (schemas.PageStatus, error) {
	if h.fail.Load() {
		return schemas.PageStatus{}, errHostDown
	}
	return schemas.PageStatus{HostActive: true}, nil
}

var errHostDown = errors.New("host down")

func TestWatchHost(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	host := &statusHost{}
	host.fail.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watchHost(ctx, host, 5*time.Millisecond, zap.New(core)) }()

	require.Eventually(t, func() bool { return logs.FilterMessage("Page host is not responding.").Len() == 1 }, time.Second, 5*time.Millisecond)
	host.fail.Store(false)
	require.Eventually(t, func() bool { return logs.FilterMessage("Page host recovered.").Len() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, 1, logs.FilterMessage("Page host is not responding.").Len(), "failures are reported once per outage")
}
