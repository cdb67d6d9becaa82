// Package pagehost defines the boundary between the assistant and whatever is
// showing the page: a headless browser, the extension content script or a
// fixed HTML document.
package pagehost

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/xkilldash9x/chartwise/api/schemas"
	"github.com/xkilldash9x/chartwise/internal/extractor"
)

// ErrNoPage is returned when the host has no page loaded.
var ErrNoPage = errors.New("no page is loaded")

// Source is a captured copy of the page.
type Source struct {
	HTML  string
	URL   string
	Title string
}

// Host provides page content and executes actions against the page.
type Host interface {
	// Document captures the current page.
	Document(ctx context.Context) (Source, error)
	// Execute performs a single action on a best-effort basis.
	Execute(ctx context.Context, action schemas.Action) (schemas.DispatchResult, error)
	// Status describes the page the host is attached to.
	Status(ctx context.Context) (schemas.PageStatus, error)
}

// supportedHosts are the sites whose layout the extractor heuristics target.
var supportedHosts = []string{"tradingview.com"}

// IsSupportedURL reports whether raw points at a supported dashboard.
func IsSupportedURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range supportedHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// StatusFromSource derives a PageStatus from captured markup.
func StatusFromSource(src Source, active bool, now time.Time) schemas.PageStatus {
	status := schemas.PageStatus{
		URL:        src.URL,
		Title:      src.Title,
		Supported:  IsSupportedURL(src.URL),
		HostActive: active,
		Timestamp:  now.UTC(),
	}
	doc, err := extractor.NewDocumentFromString(src.HTML, src.URL)
	if err != nil {
		return status
	}
	if status.Title == "" {
		status.Title = doc.Title()
	}
	status.CanvasCount = len(doc.Query("//canvas"))
	status.InputCount = len(doc.Query("//input"))
	return status
}
