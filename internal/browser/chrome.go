// internal/browser/chrome.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chartwise/api/schemas"
	"github.com/xkilldash9x/chartwise/internal/config"
	"github.com/xkilldash9x/chartwise/internal/pagehost"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// ChromeHost drives a single Chrome tab through chromedp and serves it as a
// pagehost.Host.
type ChromeHost struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
	now    func() time.Time

	// mu serializes tab access; chromedp runs one action list at a time per target.
	mu          sync.Mutex
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
}

var _ pagehost.Host = (*ChromeHost)(nil)

// NewChromeHost launches Chrome and opens a blank tab. The browser lives until
// Close is called or ctx is cancelled.
func NewChromeHost(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*ChromeHost, error) {
	h := &ChromeHost{cfg: cfg, logger: logger.Named("chrome_host"), now: time.Now}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOptions(cfg)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	h.allocCancel, h.tabCtx, h.tabCancel = allocCancel, tabCtx, tabCancel
	chromedp.ListenTarget(tabCtx, h.onTargetEvent)

	persona := personaFromConfig(cfg)
	startCtx, cancel := context.WithTimeout(tabCtx, 30*time.Second)
	defer cancel()
	if err := chromedp.Run(startCtx, persona.tasks(), chromedp.Navigate("about:blank")); err != nil {
		h.Close()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}
	h.logger.Info("Browser launched.", zap.Bool("headless", cfg.Headless), zap.String("locale", persona.Locale))
	return h, nil
}

// onTargetEvent dismisses JavaScript dialogs, which would otherwise block every
// later action, and forwards console output at debug level.
func (h *ChromeHost) onTargetEvent(ev interface{}) {
	switch ev := ev.(type) {
	case *page.EventJavascriptDialogOpening:
		h.logger.Debug("Dismissing page dialog.", zap.String("type", string(ev.Type)), zap.String("message", ev.Message))
		go func() {
			if err := chromedp.Run(h.tabCtx, page.HandleJavaScriptDialog(false)); err != nil && h.tabCtx.Err() == nil {
				h.logger.Warn("Could not dismiss page dialog.", zap.Error(err))
			}
		}()
	case *cdpruntime.EventConsoleAPICalled:
		if ce := h.logger.Check(zap.DebugLevel, "Page console."); ce != nil {
			args := make([]string, 0, len(ev.Args))
			for _, arg := range ev.Args {
				if arg.Value != nil {
					args = append(args, string(arg.Value))
				} else {
					args = append(args, arg.Description)
				}
			}
			ce.Write(zap.String("level", string(ev.Type)), zap.Strings("args", args))
		}
	}
}

// allocatorFlags are the Chrome switches applied on top of chromedp's defaults.
func allocatorFlags(cfg config.BrowserConfig, goos string) map[string]any {
	flags := map[string]any{
		"headless":               cfg.Headless,
		"disable-gpu":            cfg.Headless,
		"disable-extensions":     true,
		"disable-blink-features": "AutomationControlled",
		"hide-scrollbars":        true,
		"mute-audio":             true,
	}
	if goos == "linux" {
		flags["no-sandbox"] = true
		flags["disable-dev-shm-usage"] = true
	}
	return flags
}

func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	var opts []chromedp.ExecAllocatorOption
	for _, opt := range chromedp.DefaultExecAllocatorOptions {
		opts = append(opts, opt)
	}

	flags := allocatorFlags(cfg, runtime.GOOS)
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}

	opts = append(opts, chromedp.UserAgent(personaFromConfig(cfg).UserAgent))
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// run executes tasks on the tab, bounded by both ctx and timeout.
func (h *ChromeHost) run(ctx context.Context, timeout time.Duration, tasks ...chromedp.Action) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	runCtx, cancel := context.WithTimeout(h.tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, tasks...)
}

func (h *ChromeHost) navigationTimeout() time.Duration {
	if h.cfg.NavigationTimeout > 0 {
		return h.cfg.NavigationTimeout
	}
	return 60 * time.Second
}

// Navigate loads pageURL and waits for the body plus the configured settle time.
func (h *ChromeHost) Navigate(ctx context.Context, pageURL string) error {
	tasks := []chromedp.Action{
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if h.cfg.PostLoadWait > 0 {
		tasks = append(tasks, chromedp.Sleep(h.cfg.PostLoadWait))
	}
	if err := h.run(ctx, h.navigationTimeout(), tasks...); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", pageURL, err)
	}
	h.logger.Debug("Navigated.", zap.String("url", pageURL))
	return nil
}

// Document captures the rendered DOM of the tab.
func (h *ChromeHost) Document(ctx context.Context) (pagehost.Source, error) {
	var src pagehost.Source
	err := h.run(ctx, h.navigationTimeout(),
		chromedp.Location(&src.URL),
		chromedp.Title(&src.Title),
		chromedp.OuterHTML("html", &src.HTML, chromedp.ByQuery),
	)
	if err != nil {
		return pagehost.Source{}, fmt.Errorf("failed to capture page: %w", err)
	}
	if src.HTML == "" || src.URL == "about:blank" {
		return pagehost.Source{}, pagehost.ErrNoPage
	}
	return src, nil
}

// Execute performs action in the tab. Failures on the page are reported in
// the result; only an unusable host yields an error.
func (h *ChromeHost) Execute(ctx context.Context, action schemas.Action) (schemas.DispatchResult, error) {
	var extracted string
	tasks, err := actionTasks(action, &extracted)
	if err != nil {
		return schemas.DispatchResult{Error: err.Error()}, nil
	}
	if err := h.run(ctx, h.navigationTimeout(), tasks...); err != nil {
		if ctx.Err() != nil {
			return schemas.DispatchResult{}, ctx.Err()
		}
		h.logger.Warn("Page action failed.", zap.String("type", string(action.Type)), zap.String("selector", action.Selector), zap.Error(err))
		return schemas.DispatchResult{Error: fmt.Sprintf("%s %s failed: %v", action.Type, action.Selector, err)}, nil
	}

	msg := fmt.Sprintf("%s completed", action.Label)
	if action.Type == schemas.ActionExtract {
		msg = extracted
	}
	return schemas.DispatchResult{Success: true, Message: msg}, nil
}

// actionTasks translates an action into chromedp steps. extracted receives the
// element text for extract actions.
func actionTasks(a schemas.Action, extracted *string) ([]chromedp.Action, error) {
	sel := a.Selector
	switch a.Type {
	case schemas.ActionClick:
		return []chromedp.Action{
			chromedp.ScrollIntoView(sel, chromedp.ByQuery),
			chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible),
		}, nil
	case schemas.ActionTypeText:
		return []chromedp.Action{
			chromedp.Focus(sel, chromedp.ByQuery),
			chromedp.SetValue(sel, "", chromedp.ByQuery),
			chromedp.SendKeys(sel, a.Value, chromedp.ByQuery),
		}, nil
	case schemas.ActionNavigate:
		if a.Value != "" {
			return []chromedp.Action{chromedp.Navigate(a.Value)}, nil
		}
		return []chromedp.Action{chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible)}, nil
	case schemas.ActionScroll:
		return []chromedp.Action{chromedp.ScrollIntoView(sel, chromedp.ByQuery)}, nil
	case schemas.ActionHighlight:
		script, err := highlightScript(sel)
		if err != nil {
			return nil, err
		}
		return []chromedp.Action{
			chromedp.ScrollIntoView(sel, chromedp.ByQuery),
			chromedp.Evaluate(script, nil),
		}, nil
	case schemas.ActionSelect:
		return []chromedp.Action{chromedp.SetValue(sel, a.Value, chromedp.ByQuery)}, nil
	case schemas.ActionExtract:
		return []chromedp.Action{chromedp.Text(sel, extracted, chromedp.ByQuery, chromedp.NodeVisible)}, nil
	default:
		return nil, fmt.Errorf("unsupported action type %q", a.Type)
	}
}

// highlightScript outlines the first element matching selector for three seconds.
func highlightScript(selector string) (string, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) return false;
  const prev = el.style.outline;
  el.style.outline = "3px solid #f5a623";
  setTimeout(() => { el.style.outline = prev; }, 3000);
  return true;
})()`, quoted), nil
}

// Status describes the tab.
func (h *ChromeHost) Status(ctx context.Context) (schemas.PageStatus, error) {
	src, err := h.Document(ctx)
	if err != nil {
		return schemas.PageStatus{}, err
	}
	return pagehost.StatusFromSource(src, true, h.now()), nil
}

// Close shuts the tab and the browser process down.
func (h *ChromeHost) Close() {
	if h.tabCancel != nil {
		h.tabCancel()
	}
	if h.allocCancel != nil {
		h.allocCancel()
	}
}
