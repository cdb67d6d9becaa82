// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chartwise/api/schemas"
	"github.com/xkilldash9x/chartwise/internal/config"
	"github.com/xkilldash9x/chartwise/internal/observability"
)

const (
	validKey  = "AIzaSyD-cmd-test-key-0123456789abcd"
	quoteURL  = "https://www.tradingview.com/symbols/NASDAQ-AAPL/"
	quotePage = `<html><head><title>AAPL Apple Inc</title></head><body>
<div class="tv-symbol-header__short-title">AAPL</div>
<div class="tv-symbol-price-quote__value">189.50</div>
</body></html>`
)

// fakeLLM replies with a fixed completion and records requests.
type fakeLLM struct {
	reply string
	err   error

	mu       sync.Mutex
	requests []schemas.GenerationRequest
	closed   bool
}

func (f *fakeLLM) Generate(_ context.Context, req schemas.GenerationRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.reply, f.err
}

func (f *fakeLLM) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeLLM) last() schemas.GenerationRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return schemas.GenerationRequest{}
	}
	return f.requests[len(f.requests)-1]
}

// isolate points every file the CLI touches at a temp directory and clears
// API key variables inherited from the developer's shell.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("HOME", dir)
	t.Setenv("CHARTWISE_SETTINGS_PATH", filepath.Join(dir, "settings.yaml"))
	for _, k := range []string{"CHARTWISE_LLM_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY"} {
		t.Setenv(k, "")
	}

	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)
	return dir
}

// runCLI executes args against a fresh command tree using llm as the model.
func runCLI(t *testing.T, llm schemas.LLMClient, args ...string) (*app, string, error) {
	t.Helper()
	return runCLIContext(context.Background(), t, llm, args...)
}

func runCLIContext(ctx context.Context, t *testing.T, llm schemas.LLMClient, args ...string) (*app, string, error) {
	t.Helper()
	a := newApp()
	a.newLLM = func(config.LLMConfig, *zap.Logger) (schemas.LLMClient, error) { return llm, nil }
	root := newRootCmd(a)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.ExecuteContext(ctx)
	return a, out.String(), err
}

func writePage(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(path, []byte(quotePage), 0o600))
	return path
}
