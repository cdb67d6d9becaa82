package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/chartwise/internal/config"
)

// hideAutomationScript runs before page scripts on every document. Some
// dashboards serve a reduced page to automated browsers.
const hideAutomationScript = `Object.defineProperty(Object.getPrototypeOf(navigator), 'webdriver', { get: () => undefined });`

// Persona is the browser profile the tab presents to pages.
type Persona struct {
	UserAgent string
	Platform  string
	Locale    string
	Timezone  string
}

// personaFromConfig fills unset fields with a desktop Chrome profile.
func personaFromConfig(cfg config.BrowserConfig) Persona {
	p := Persona{
		UserAgent: cfg.UserAgent,
		Platform:  "Win32",
		Locale:    cfg.Locale,
		Timezone:  cfg.Timezone,
	}
	if p.UserAgent == "" {
		p.UserAgent = defaultUserAgent
	}
	if p.Locale == "" {
		p.Locale = "en-US"
	}
	return p
}

// acceptLanguage builds the Accept-Language header for the persona's locale,
// e.g. "de-DE,de;q=0.9".
func (p Persona) acceptLanguage() string {
	lang, _, found := strings.Cut(p.Locale, "-")
	if !found || lang == "" {
		return p.Locale
	}
	return fmt.Sprintf("%s,%s;q=0.9", p.Locale, lang)
}

// tasks applies the persona to the current target.
func (p Persona) tasks() chromedp.Tasks {
	tasks := chromedp.Tasks{
		emulation.SetUserAgentOverride(p.UserAgent).
			WithAcceptLanguage(p.acceptLanguage()).
			WithPlatform(p.Platform),
		emulation.SetLocaleOverride().WithLocale(p.Locale),
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": p.acceptLanguage()}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(hideAutomationScript).Do(ctx); err != nil {
				return fmt.Errorf("failed to install page script: %w", err)
			}
			return nil
		}),
	}
	if p.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(p.Timezone))
	}
	return tasks
}
