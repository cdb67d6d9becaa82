package cmd

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/chartwise/api/schemas"
	"github.com/xkilldash9x/chartwise/internal/assistant"
	"github.com/xkilldash9x/chartwise/internal/browser"
	"github.com/xkilldash9x/chartwise/internal/extractor"
	"github.com/xkilldash9x/chartwise/internal/pagehost"
	"github.com/xkilldash9x/chartwise/internal/settings"
)

// pageFlags select the page a command works on.
type pageFlags struct {
	file string
	url  string
}

// openHost returns a host for the page: a saved HTML file when --file is
// given, otherwise a headless browser navigated to --url. The returned
// cleanup must always be called.
func (a *app) openHost(ctx context.Context, pf pageFlags) (pagehost.Host, func(), error) {
	switch {
	case pf.file != "":
		host, err := pagehost.LoadStaticHost(pf.file, pf.url, a.logger)
		if err != nil {
			return nil, func() {}, err
		}
		return host, func() {}, nil
	case pf.url != "":
		chrome, err := browser.NewChromeHost(ctx, a.cfg.Browser, a.logger)
		if err != nil {
			return nil, func() {}, err
		}
		if err := chrome.Navigate(ctx, pf.url); err != nil {
			chrome.Close()
			return nil, func() {}, err
		}
		if !pagehost.IsSupportedURL(pf.url) {
			a.logger.Warn("Page is not a supported dashboard; extraction may be sparse.", zap.String("url", pf.url))
		}
		return chrome, chrome.Close, nil
	default:
		return nil, func() {}, fmt.Errorf("either --file or --url is required")
	}
}

// newExtractor applies the extractor configuration.
func (a *app) newExtractor() *extractor.Extractor {
	return extractor.New(a.logger, extractor.WithMaxListItems(a.cfg.Extractor.MaxListItems))
}

// newService builds the assistant pipeline. The caller closes the client.
func (a *app) newService() (*assistant.Service, schemas.LLMClient, error) {
	llm, err := a.newLLM(a.cfg.LLM, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	svc := assistant.NewService(llm, a.cfg.LLM, a.logger,
		assistant.WithExtractor(a.newExtractor()),
		assistant.WithCache(extractor.NewCache(a.cfg.Extractor.CacheTTL, nil)),
	)
	return svc, llm, nil
}

// settingsStore opens the persisted settings file.
func (a *app) settingsStore() (*settings.FileStore, error) {
	return settings.NewFileStore(a.cfg.Settings.Path)
}

// storedSettings loads persisted settings, logging and ignoring failures.
func (a *app) storedSettings() settings.Settings {
	store, err := a.settingsStore()
	if err != nil {
		a.logger.Debug("Settings store unavailable.", zap.Error(err))
		return settings.Settings{}
	}
	s, err := store.Load()
	if err != nil {
		a.logger.Warn("Ignoring unreadable settings file.", zap.String("path", store.Path()), zap.Error(err))
		return settings.Settings{}
	}
	return s
}

// modelFlags override the persisted model preferences for one invocation.
type modelFlags struct {
	provider    string
	model       string
	maxTokens   int
	temperature float64
}

// baseRequest fills a command request from persisted settings. A configured
// API key (flag, environment or config file) wins over the persisted one.
func (a *app) baseRequest(command string, mf modelFlags) schemas.CommandRequest {
	stored := a.storedSettings()
	req := schemas.CommandRequest{
		UserCommand: strings.TrimSpace(command),
		APIKey:      stored.APIKey,
		Provider:    stored.Provider,
		ModelParams: stored.Params(),
	}
	if a.cfg.LLM.APIKey != "" {
		req.APIKey = a.cfg.LLM.APIKey
	}
	if mf.provider != "" {
		req.Provider = mf.provider
	}
	if mf.model != "" {
		req.ModelParams.Model = mf.model
	}
	if mf.maxTokens > 0 {
		req.ModelParams.MaxTokens = mf.maxTokens
	}
	if mf.temperature > 0 {
		req.ModelParams.Temperature = mf.temperature
	}
	return req
}
