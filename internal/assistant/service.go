// Package assistant runs the command pipeline: capture the page, extract and
// summarize it, prompt the model, and turn the reply into validated actions.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/chartwise/api/schemas"
	"github.com/xkilldash9x/chartwise/internal/config"
	"github.com/xkilldash9x/chartwise/internal/extractor"
	"github.com/xkilldash9x/chartwise/internal/llmclient"
	"github.com/xkilldash9x/chartwise/internal/llmutil"
	"github.com/xkilldash9x/chartwise/internal/pagehost"
	"github.com/xkilldash9x/chartwise/internal/prompt"
	"github.com/xkilldash9x/chartwise/internal/summarizer"
)

var (
	// ErrConfiguration means the request cannot be sent as configured, usually
	// because the API key is missing or malformed.
	ErrConfiguration = errors.New("assistant is not configured")
	// ErrContextUnavailable means no usable page snapshot could be obtained.
	ErrContextUnavailable = errors.New("page context is unavailable")
	// ErrBusy is returned while another command is in flight.
	ErrBusy = errors.New("another request is already in progress")
	// ErrEmptyCommand is returned for a blank user command.
	ErrEmptyCommand = prompt.ErrEmptyCommand
)

// DefaultRequestTimeout bounds a whole model call, retries included.
const DefaultRequestTimeout = 45 * time.Second

// Service executes user commands against the model.
type Service struct {
	llm       schemas.LLMClient
	cfg       config.LLMConfig
	extractor *extractor.Extractor
	cache     *extractor.Cache
	inflight  *semaphore.Weighted
	logger    *zap.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithExtractor replaces the default extractor.
func WithExtractor(e *extractor.Extractor) Option {
	return func(s *Service) { s.extractor = e }
}

// WithCache sets the snapshot cache. A nil cache disables caching.
func WithCache(c *extractor.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// NewService wires the pipeline around an LLM client.
func NewService(llm schemas.LLMClient, cfg config.LLMConfig, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		llm:      llm,
		cfg:      cfg,
		inflight: semaphore.NewWeighted(1),
		logger:   logger.Named("assistant"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.extractor == nil {
		s.extractor = extractor.New(logger)
	}
	return s
}

// Execute runs one command against the snapshot carried in req.
func (s *Service) Execute(ctx context.Context, req schemas.CommandRequest) (schemas.ModelReply, error) {
	if !s.inflight.TryAcquire(1) {
		return schemas.ModelReply{}, ErrBusy
	}
	defer s.inflight.Release(1)
	return s.execute(ctx, req)
}

// Command captures the page from host, then executes the command against it.
func (s *Service) Command(ctx context.Context, host pagehost.Host, req schemas.CommandRequest) (schemas.ModelReply, error) {
	if !s.inflight.TryAcquire(1) {
		return schemas.ModelReply{}, ErrBusy
	}
	defer s.inflight.Release(1)

	if err := s.checkKey(req); err != nil {
		return schemas.ModelReply{}, err
	}
	if strings.TrimSpace(req.UserCommand) == "" {
		return schemas.ModelReply{}, ErrEmptyCommand
	}

	snap, err := s.Snapshot(ctx, host)
	if err != nil {
		return schemas.ModelReply{}, err
	}
	req.Snapshot = &snap
	return s.execute(ctx, req)
}

// Snapshot captures and extracts the current page, reusing a recent snapshot
// of the same URL when the cache allows.
func (s *Service) Snapshot(ctx context.Context, host pagehost.Host) (schemas.PageSnapshot, error) {
	src, err := host.Document(ctx)
	if err != nil {
		return schemas.PageSnapshot{}, fmt.Errorf("%w: %w", ErrContextUnavailable, err)
	}
	if cached, ok := s.cache.Get(src.URL); ok {
		s.logger.Debug("Using cached snapshot.", zap.String("url", src.URL))
		return cached, nil
	}

	doc, err := extractor.NewDocumentFromString(src.HTML, src.URL)
	if err != nil {
		return schemas.PageSnapshot{}, fmt.Errorf("%w: %w", ErrContextUnavailable, err)
	}
	snap := s.extractor.Extract(doc)
	s.cache.Put(snap)
	return snap, nil
}

func (s *Service) execute(ctx context.Context, req schemas.CommandRequest) (schemas.ModelReply, error) {
	if err := s.checkKey(req); err != nil {
		return schemas.ModelReply{}, err
	}
	if strings.TrimSpace(req.UserCommand) == "" {
		return schemas.ModelReply{}, ErrEmptyCommand
	}
	if req.Snapshot == nil || req.Snapshot.IsZero() {
		return schemas.ModelReply{}, ErrContextUnavailable
	}

	payload, err := prompt.Build(req.UserCommand, summarizer.Summarize(*req.Snapshot))
	if err != nil {
		return schemas.ModelReply{}, err
	}

	timeout := s.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	raw, err := s.llm.Generate(ctx, s.generationRequest(req, payload))
	if err != nil {
		s.logger.Warn("Model call failed.", zap.Error(err), zap.String("kind", string(llmclient.KindOf(err))))
		return schemas.ModelReply{}, fmt.Errorf("model call failed: %w", err)
	}

	reply := llmutil.ParseReply(raw)
	s.logger.Info("Command answered.",
		zap.String("symbol", req.Snapshot.Symbol),
		zap.Int("actions", len(reply.Actions)),
		zap.Duration("duration", time.Since(start)))
	return reply, nil
}

func (s *Service) apiKey(req schemas.CommandRequest) string {
	if req.APIKey != "" {
		return req.APIKey
	}
	return s.cfg.APIKey
}

func (s *Service) provider(req schemas.CommandRequest) config.LLMProvider {
	if req.Provider != "" {
		return config.LLMProvider(strings.ToLower(req.Provider))
	}
	return llmclient.ProviderForModel(req.ModelParams.Model, s.cfg.Provider)
}

func (s *Service) checkKey(req schemas.CommandRequest) error {
	key := s.apiKey(req)
	if key == "" {
		return fmt.Errorf("%w: API key is not set", ErrConfiguration)
	}
	if err := s.cfg.CheckKey(s.provider(req), key); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return nil
}

func (s *Service) generationRequest(req schemas.CommandRequest, p prompt.Payload) schemas.GenerationRequest {
	opts := schemas.GenerationOptions{
		Temperature: req.ModelParams.Temperature,
		MaxTokens:   req.ModelParams.MaxTokens,
	}
	if opts.Temperature == 0 {
		opts.Temperature = s.cfg.Temperature
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = s.cfg.MaxTokens
	}
	model := req.ModelParams.Model
	if provider := s.provider(req); model == "" && provider != s.cfg.Provider {
		model = llmclient.DefaultModel(provider)
	}
	return schemas.GenerationRequest{
		SystemPrompt: p.System,
		UserPrompt:   p.User,
		Model:        model,
		APIKey:       s.apiKey(req),
		Options:      opts,
	}
}

// Dispatch validates action and hands it to host. Actions that fail
// validation or have no selector never reach the host.
func (s *Service) Dispatch(ctx context.Context, host pagehost.Host, action schemas.Action) schemas.DispatchResult {
	valid, ok := llmutil.ValidateAction(action)
	if !ok {
		return schemas.DispatchResult{Error: fmt.Sprintf("unknown action type %q", action.Type)}
	}
	if !valid.Dispatchable() {
		return schemas.DispatchResult{Error: "action has no target selector"}
	}

	res, err := host.Execute(ctx, valid)
	if err != nil {
		s.logger.Warn("Action dispatch failed.", zap.String("type", string(valid.Type)), zap.Error(err))
		return schemas.DispatchResult{Error: err.Error()}
	}
	if res.Success && valid.Type != schemas.ActionExtract && valid.Type != schemas.ActionHighlight {
		s.cache.Invalidate()
	}
	return res
}
