// Package relay serves the HTTP API used by the extension popup and hosts the
// websocket the content script connects to.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chartwise/api/schemas"
	"github.com/xkilldash9x/chartwise/internal/assistant"
	"github.com/xkilldash9x/chartwise/internal/config"
	"github.com/xkilldash9x/chartwise/internal/pagehost"
	"github.com/xkilldash9x/chartwise/internal/settings"
	"github.com/xkilldash9x/chartwise/internal/wsbridge"
)

// maxBodyBytes bounds request bodies; inline page markup can be large.
const maxBodyBytes = 8 << 20

// Dependencies are the services the relay fronts.
type Dependencies struct {
	Assistant *assistant.Service
	LLM       schemas.LLMClient
	Settings  settings.Store
	// Bridge serves /ws. It is also the page host unless Host is set.
	Bridge *wsbridge.Bridge
	Host   pagehost.Host
}

// Server is the relay HTTP server.
type Server struct {
	cfg       config.RelayConfig
	llmCfg    config.LLMConfig
	assistant *assistant.Service
	llm       schemas.LLMClient
	settings  settings.Store
	bridge    *wsbridge.Bridge
	host      pagehost.Host
	logger    *zap.Logger
}

// NewServer creates a relay for cfg.
func NewServer(cfg *config.Config, deps Dependencies, logger *zap.Logger) *Server {
	s := &Server{
		cfg:       cfg.Relay,
		llmCfg:    cfg.LLM,
		assistant: deps.Assistant,
		llm:       deps.LLM,
		settings:  deps.Settings,
		bridge:    deps.Bridge,
		host:      deps.Host,
		logger:    logger.Named("relay"),
	}
	if s.host == nil && s.bridge != nil {
		s.host = s.bridge
	}
	if s.settings == nil {
		s.settings = &settings.MemoryStore{}
	}
	return s
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(s.cfg.AllowedOrigins))

	r.Get("/health", s.handleHealth)
	if s.bridge != nil {
		r.Get("/ws", s.bridge.HandleWS)
	}

	r.Group(func(r chi.Router) {
		r.Use(requestLogger(s.logger))
		r.Route("/v1", func(r chi.Router) {
			r.Post("/command", s.handleCommand)
			r.Post("/actions/dispatch", s.handleDispatch)
			r.Get("/snapshot", s.handleSnapshot)
			r.Get("/status", s.handleStatus)
			r.Get("/prompts", s.handlePrompts)
			r.Get("/settings", s.handleGetSettings)
			r.Put("/settings", s.handlePutSettings)
			r.Post("/settings/test", s.handleTestSettings)
		})
	})
	return r
}

// Start listens on the configured address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully within the configured shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("Relay listening.", zap.String("address", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down relay...")
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	if s.bridge != nil {
		_ = s.bridge.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Relay shutdown error.", zap.Error(err))
		return err
	}
	<-errCh
	s.logger.Info("Relay stopped.")
	return nil
}
