package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chartwise/api/schemas"
	"github.com/xkilldash9x/chartwise/internal/assistant"
	"github.com/xkilldash9x/chartwise/internal/config"
	"github.com/xkilldash9x/chartwise/internal/llmclient"
	"github.com/xkilldash9x/chartwise/internal/pagehost"
	"github.com/xkilldash9x/chartwise/internal/prompt"
	"github.com/xkilldash9x/chartwise/internal/settings"
	"github.com/xkilldash9x/chartwise/internal/wsbridge"
)

// commandBody is the popup's command request. When HTML is set the command
// runs against that markup instead of the connected page.
type commandBody struct {
	UserCommand string               `json:"userCommand"`
	HTML        string               `json:"html,omitempty"`
	URL         string               `json:"url,omitempty"`
	Provider    string               `json:"provider,omitempty"`
	ModelParams *schemas.ModelParams `json:"modelParams,omitempty"`
}

type dispatchBody struct {
	Action schemas.Action `json:"action"`
	HTML   string         `json:"html,omitempty"`
	URL    string         `json:"url,omitempty"`
}

type testSettingsBody struct {
	APIKey string `json:"apiKey,omitempty"`
	Model  string `json:"model,omitempty"`
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.bridge != nil {
		body["sessions"] = s.bridge.Count()
	}
	s.respondJSON(w, http.StatusOK, body)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var body commandBody
	if !s.decode(w, r, &body) {
		return
	}
	if s.assistant == nil {
		s.respondError(w, http.StatusServiceUnavailable, "assistant is not available", "configuration")
		return
	}

	stored, err := s.settings.Load()
	if err != nil {
		s.logger.Error("Failed to load settings.", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "Failed to load settings.", "internal")
		return
	}
	req := schemas.CommandRequest{
		UserCommand: body.UserCommand,
		APIKey:      stored.APIKey,
		Provider:    stored.Provider,
		ModelParams: stored.Params(),
	}
	if body.Provider != "" {
		req.Provider = body.Provider
	}
	if body.ModelParams != nil {
		req.ModelParams = *body.ModelParams
	}

	host, ok := s.pageHost(w, body.HTML, body.URL)
	if !ok {
		return
	}
	reply, err := s.assistant.Command(r.Context(), host, req)
	if err != nil {
		s.logger.Warn("Command failed.", zap.String("kind", assistant.Kind(err)), zap.Error(err))
		s.respondJSON(w, statusFor(err), schemas.CommandResponse{
			Error:     assistant.Describe(err),
			ErrorKind: assistant.Kind(err),
			RequestID: middleware.GetReqID(r.Context()),
		})
		return
	}
	s.respondJSON(w, http.StatusOK, schemas.CommandResponse{
		Success:    true,
		AIResponse: reply.Response,
		Actions:    reply.Actions,
		RequestID:  middleware.GetReqID(r.Context()),
	})
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var body dispatchBody
	if !s.decode(w, r, &body) {
		return
	}
	if s.assistant == nil {
		s.respondError(w, http.StatusServiceUnavailable, "assistant is not available", "configuration")
		return
	}
	host, ok := s.pageHost(w, body.HTML, body.URL)
	if !ok {
		return
	}
	res := s.assistant.Dispatch(r.Context(), host, body.Action)
	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	s.respondJSON(w, status, res)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil || s.host == nil {
		s.respondError(w, http.StatusServiceUnavailable, "no page host is available", "context_unavailable")
		return
	}
	snap, err := s.assistant.Snapshot(r.Context(), s.host)
	if err != nil {
		s.respondError(w, statusFor(err), assistant.Describe(err), assistant.Kind(err))
		return
	}
	s.respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.host == nil {
		s.respondJSON(w, http.StatusOK, schemas.PageStatus{})
		return
	}
	status, err := s.host.Status(r.Context())
	switch {
	case errors.Is(err, wsbridge.ErrNoActiveSession), errors.Is(err, pagehost.ErrNoPage):
		s.respondJSON(w, http.StatusOK, schemas.PageStatus{})
	case err != nil:
		s.logger.Warn("Status check failed.", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error(), "context_unavailable")
	default:
		s.respondJSON(w, http.StatusOK, status)
	}
}

type quickPrompt struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// handlePrompts lists the canned commands offered as popup buttons.
func (s *Server) handlePrompts(w http.ResponseWriter, r *http.Request) {
	out := make([]quickPrompt, 0, len(prompt.QuickPrompts))
	for _, q := range prompt.QuickPrompts {
		text, _ := prompt.Quick(q)
		out = append(out, quickPrompt{ID: string(q), Text: text})
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"prompts": out})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	stored, err := s.settings.Load()
	if err != nil {
		s.logger.Error("Failed to load settings.", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "Failed to load settings.", "internal")
		return
	}
	s.respondJSON(w, http.StatusOK, stored.Masked())
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var update settings.Settings
	if !s.decode(w, r, &update) {
		return
	}
	stored, err := s.settings.Load()
	if err != nil {
		s.logger.Error("Failed to load settings.", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "Failed to load settings.", "internal")
		return
	}
	merged := stored.Merge(update)

	if merged.Provider != "" {
		switch config.LLMProvider(strings.ToLower(merged.Provider)) {
		case config.ProviderGemini, config.ProviderOpenAI:
		default:
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown provider %q", merged.Provider), "configuration")
			return
		}
	}
	if merged.APIKey != stored.APIKey {
		if err := s.llmCfg.CheckKey(s.providerFor(merged), merged.APIKey); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error(), "configuration")
			return
		}
	}
	if err := s.settings.Save(merged); err != nil {
		s.logger.Error("Failed to save settings.", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "Failed to save settings.", "internal")
		return
	}
	s.logger.Info("Settings updated.", zap.String("provider", merged.Provider), zap.String("model", merged.Model))
	s.respondJSON(w, http.StatusOK, merged.Masked())
}

func (s *Server) handleTestSettings(w http.ResponseWriter, r *http.Request) {
	var body testSettingsBody
	if r.ContentLength != 0 && !s.decode(w, r, &body) {
		return
	}
	if s.llm == nil {
		s.respondError(w, http.StatusServiceUnavailable, "model client is not available", "configuration")
		return
	}
	stored, err := s.settings.Load()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "Failed to load settings.", "internal")
		return
	}
	candidate := stored.Merge(settings.Settings{APIKey: body.APIKey, Model: body.Model})
	if candidate.APIKey == "" {
		candidate.APIKey = s.llmCfg.APIKey
	}
	if err := s.llmCfg.CheckKey(s.providerFor(candidate), candidate.APIKey); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error(), "configuration")
		return
	}

	model := candidate.Model
	if model == "" && candidate.Provider != "" && config.LLMProvider(candidate.Provider) != s.llmCfg.Provider {
		model = llmclient.DefaultModel(config.LLMProvider(candidate.Provider))
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout())
	defer cancel()
	reply, err := llmclient.Ping(ctx, s.llm, candidate.APIKey, model)
	if err != nil {
		s.respondError(w, statusFor(err), assistant.Describe(err), assistant.Kind(err))
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"success": true, "reply": strings.TrimSpace(reply)})
}

// pageHost picks the host for a request: inline markup wins over the
// connected page.
func (s *Server) pageHost(w http.ResponseWriter, markup, pageURL string) (pagehost.Host, bool) {
	if markup != "" {
		return pagehost.NewStaticHost(markup, pageURL, s.logger), true
	}
	if s.host == nil {
		s.respondError(w, http.StatusServiceUnavailable, "no page host is available", "context_unavailable")
		return nil, false
	}
	return s.host, true
}

func (s *Server) providerFor(st settings.Settings) config.LLMProvider {
	if st.Provider != "" {
		return config.LLMProvider(strings.ToLower(st.Provider))
	}
	return llmclient.ProviderForModel(st.Model, s.llmCfg.Provider)
}

func (s *Server) requestTimeout() time.Duration {
	if s.llmCfg.RequestTimeout > 0 {
		return s.llmCfg.RequestTimeout
	}
	return assistant.DefaultRequestTimeout
}

// statusFor maps a pipeline error to an HTTP status.
func statusFor(err error) int {
	switch assistant.Kind(err) {
	case "busy":
		return http.StatusConflict
	case "empty_command", "configuration":
		return http.StatusBadRequest
	case "context_unavailable":
		return http.StatusServiceUnavailable
	case string(llmclient.KindRateLimited):
		return http.StatusTooManyRequests
	case string(llmclient.KindAuthentication), string(llmclient.KindInvalidRequest),
		string(llmclient.KindTransient), string(llmclient.KindRejected):
		return http.StatusBadGateway
	case "timeout":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err), "invalid_request")
		return false
	}
	return true
}

func (s *Server) respondError(w http.ResponseWriter, status int, message, kind string) {
	s.respondJSON(w, status, errorBody{Error: message, Kind: kind})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response.", zap.Error(err))
	}
}
