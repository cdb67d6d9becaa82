package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/chartwise/api/schemas"
	"github.com/xkilldash9x/chartwise/internal/config"
)

// MockLLMClient is a mock implementation of the LLMClient interface for testing.
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	return m.Called().Error(0)
}

// recordingTimer fires immediately and remembers each requested wait.
type recordingTimer struct {
	mu      sync.Mutex
	waits   []time.Duration
	c       chan time.Time
	stopped bool
}

func newRecordingTimer() *recordingTimer {
	return &recordingTimer{c: make(chan time.Time, 1)}
}

func (t *recordingTimer) Start(d time.Duration) {
	t.mu.Lock()
	t.waits = append(t.waits, d)
	t.mu.Unlock()
	t.c <- time.Now()
}

func (t *recordingTimer) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *recordingTimer) C() <-chan time.Time { return t.c }

func (t *recordingTimer) Waits() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.waits...)
}

func (t *recordingTimer) factory() func() backoff.Timer {
	return func() backoff.Timer { return t }
}

// setupTestLogger returns a logger whose entries can be inspected.
func setupTestLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

// getValidLLMConfig returns an LLMConfig pointing at endpoint.
func getValidLLMConfig(provider config.LLMProvider, endpoint string) config.LLMConfig {
	cfg := config.NewDefaultConfig().LLM
	cfg.Provider = provider
	cfg.Endpoint = endpoint
	cfg.APIKey = "test-api-key"
	cfg.APITimeout = 5 * time.Second
	if provider == config.ProviderOpenAI {
		cfg.Model = "gpt-4o-mini"
	} else {
		cfg.Model = "gemini-test"
	}
	return cfg
}

func createTestRequest() schemas.GenerationRequest {
	return schemas.GenerationRequest{
		SystemPrompt: "System prompt instructions.",
		UserPrompt:   "User query.",
		Options:      schemas.GenerationOptions{Temperature: 0.7, MaxTokens: 500},
	}
}

// scriptedServer replies with the statuses in order, then repeats the last one.
// A 200 reply uses okBody.
func scriptedServer(t *testing.T, okBody string, statuses ...int) (*httptest.Server, *callCounter) {
	t.Helper()
	calls := &callCounter{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.inc()
		status := statuses[len(statuses)-1]
		if n-1 < len(statuses) {
			status = statuses[n-1]
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = w.Write([]byte(okBody))
			return
		}
		fmt.Fprintf(w, `{"error": {"code": %d, "message": "upstream said %s"}}`, status, http.StatusText(status))
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

type callCounter struct {
	mu sync.Mutex
	n  int
}

func (c *callCounter) inc() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}

func (c *callCounter) Load() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
