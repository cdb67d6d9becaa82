package schemas

import "time"

// PageType is inferred from the shape of the page URL.
type PageType string

const (
	PageChart    PageType = "chart"
	PageSymbol   PageType = "symbol"
	PageScreener PageType = "screener"
)

// UnknownSymbol is reported when no ticker could be located on the page.
const UnknownSymbol = "UNKNOWN"

// PriceData holds the raw price strings found on the page. Values are not validated.
type PriceData struct {
	CurrentPrice  string `json:"currentPrice,omitempty"`
	Change        string `json:"change,omitempty"`
	ChangePercent string `json:"changePercent,omitempty"`
}

// Empty reports whether no price field was found.
func (p *PriceData) Empty() bool {
	return p == nil || (p.CurrentPrice == "" && p.Change == "" && p.ChangePercent == "")
}

// ChartInfo describes the chart widget, if one is present.
type ChartInfo struct {
	HasChart        bool     `json:"hasChart"`
	Timeframes      []string `json:"timeframes,omitempty"`
	ActiveTimeframe string   `json:"activeTimeframe,omitempty"`
}

// KeyStats are label-adjacent statistics (volume, market cap...) as raw strings.
type KeyStats struct {
	Volume    string `json:"volume,omitempty"`
	MarketCap string `json:"marketCap,omitempty"`
	PERatio   string `json:"peRatio,omitempty"`
	DayRange  string `json:"dayRange,omitempty"`
}

// Empty reports whether no statistic was found.
func (k *KeyStats) Empty() bool {
	return k == nil || (k.Volume == "" && k.MarketCap == "" && k.PERatio == "" && k.DayRange == "")
}

// ListItem is a ticker found in a watchlist-like region of the page.
type ListItem struct {
	Symbol        string   `json:"symbol"`
	RawText       string   `json:"text"`
	LocatorHint   string   `json:"element"`
	ChangePercent string   `json:"changePercent,omitempty"`
	Performance   *float64 `json:"performance,omitempty"`
}

// PageStructure counts structural elements and lists the sections believed available.
type PageStructure struct {
	HasChart          bool     `json:"hasChart"`
	HasSearchBox      bool     `json:"hasSearchBox"`
	CanvasCount       int      `json:"canvasCount"`
	InputCount        int      `json:"inputCount"`
	ButtonCount       int      `json:"buttonCount"`
	SectionsAvailable []string `json:"sectionsAvailable,omitempty"`
}

// PageSnapshot is a point-in-time, best-effort extraction of visible page data.
// A snapshot is never mutated after the extractor returns it.
type PageSnapshot struct {
	PageType        PageType       `json:"pageType"`
	Symbol          string         `json:"symbol"`
	PriceData       *PriceData     `json:"priceData,omitempty"`
	ChartInfo       *ChartInfo     `json:"chartInfo,omitempty"`
	KeyStats        *KeyStats      `json:"keyStatistics,omitempty"`
	ListItems       []ListItem     `json:"watchlistData,omitempty"`
	PageStructure   *PageStructure `json:"pageStructure,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
	SourceURL       string         `json:"url"`
	ExtractionError string         `json:"error,omitempty"`
}

// IsZero reports whether the snapshot was never populated by an extractor.
func (s *PageSnapshot) IsZero() bool {
	return s == nil || (s.PageType == "" && s.Timestamp.IsZero())
}

// PageStatus is a lightweight description of the page the host is attached to.
type PageStatus struct {
	URL           string    `json:"url"`
	Title         string    `json:"title"`
	Supported     bool      `json:"isSupported"`
	HostActive    bool      `json:"contentScriptActive"`
	CanvasCount   int       `json:"canvasElements"`
	InputCount    int       `json:"inputElements"`
	Timestamp     time.Time `json:"timestamp"`
	ActiveSession string    `json:"sessionId,omitempty"`
}
