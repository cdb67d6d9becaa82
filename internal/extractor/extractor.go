// internal/extractor/extractor.go
package extractor

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/chartwise/api/schemas"
)

// DefaultMaxListItems bounds the list items collected from a page.
const DefaultMaxListItems = 10

// Extractor turns a Document into a PageSnapshot using best-effort heuristics.
// It holds no per-page state and is safe for concurrent use.
type Extractor struct {
	logger       *zap.Logger
	maxListItems int
	now          func() time.Time
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxListItems overrides the list item cap.
func WithMaxListItems(n int) Option {
	return func(e *Extractor) {
		e.maxListItems = n
	}
}

// WithClock overrides the time source used for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		e.now = now
	}
}

// New creates an Extractor.
func New(logger *zap.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Extractor{
		logger:       logger.Named("extractor"),
		maxListItems: DefaultMaxListItems,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Query selects which field groups ExtractSpecific populates.
type Query string

const (
	QueryAll       Query = "all"
	QueryPrice     Query = "price"
	QuerySymbol    Query = "symbol"
	QueryChart     Query = "chart"
	QueryWatchlist Query = "watchlist"
)

// narrow reports whether q selects a single field group.
func (q Query) narrow() bool {
	switch q {
	case QueryPrice, QuerySymbol, QueryChart, QueryWatchlist:
		return true
	}
	return false
}

// Extract produces a snapshot of doc. It never panics and never fails: each field
// group is extracted independently, and the first failure is recorded in
// ExtractionError while the remaining groups still contribute.
func (e *Extractor) Extract(doc Document) schemas.PageSnapshot {
	return e.ExtractSpecific(doc, QueryAll)
}

// ExtractSpecific behaves like Extract but only populates the groups selected by q.
// Unknown queries are treated as QueryAll.
func (e *Extractor) ExtractSpecific(doc Document, q Query) schemas.PageSnapshot {
	snap := schemas.PageSnapshot{
		PageType:  schemas.PageChart,
		Symbol:    schemas.UnknownSymbol,
		Timestamp: e.now().UTC(),
	}
	if doc == nil {
		snap.ExtractionError = "no document available"
		return snap
	}

	r := run{logger: e.logger, snap: &snap}
	r.guard("url", func() {
		snap.SourceURL = doc.URL()
		snap.PageType = detectPageType(snap.SourceURL)
	})

	all := !q.narrow()
	if all || q == QuerySymbol {
		r.guard("symbol", func() { snap.Symbol = extractSymbol(doc) })
	}
	if all || q == QueryPrice {
		r.guard("price", func() { snap.PriceData = extractPrice(doc) })
	}
	if all || q == QueryChart {
		r.guard("chart", func() { snap.ChartInfo = extractChartInfo(doc) })
	}
	if all {
		r.guard("keyStats", func() { snap.KeyStats = extractKeyStats(doc) })
	}
	if all || q == QueryWatchlist {
		r.guard("listItems", func() { snap.ListItems = extractListItems(doc, e.maxListItems) })
	}
	if all {
		r.guard("structure", func() { snap.PageStructure = analyzeStructure(doc) })
	}

	e.logger.Debug("Page extraction complete",
		zap.String("url", snap.SourceURL),
		zap.String("symbol", snap.Symbol),
		zap.String("query", string(q)),
		zap.Bool("partial", snap.ExtractionError != ""),
	)
	return snap
}

// run isolates sub-extractions from each other.
type run struct {
	logger *zap.Logger
	snap   *schemas.PageSnapshot
}

func (r *run) guard(name string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			msg := fmt.Sprintf("%s extraction failed: %v", name, p)
			r.logger.Warn("Sub-extraction failed; continuing with partial snapshot",
				zap.String("group", name),
				zap.Any("panic", p),
			)
			if r.snap.ExtractionError == "" {
				r.snap.ExtractionError = msg
			}
		}
	}()
	fn()
}
