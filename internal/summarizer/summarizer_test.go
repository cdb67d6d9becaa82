package summarizer

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/chartwise/api/schemas"
)

func perf(f float64) *float64 { return &f }

func fullSnapshot() schemas.PageSnapshot {
	return schemas.PageSnapshot{
		PageType:  schemas.PageSymbol,
		Symbol:    "AAPL",
		PriceData: &schemas.PriceData{CurrentPrice: "182.50", Change: "+1.25", ChangePercent: "+0.69%"},
		KeyStats:  &schemas.KeyStats{Volume: "54.3M", MarketCap: "2.84T", PERatio: "29.4"},
		ChartInfo: &schemas.ChartInfo{HasChart: true, Timeframes: []string{"1m", "1h", "1d"}, ActiveTimeframe: "1h"},
		ListItems: []schemas.ListItem{
			{Symbol: "MSFT", ChangePercent: "-0.35%", Performance: perf(-0.35)},
			{Symbol: "TSLA", ChangePercent: "+3.42%", Performance: perf(3.42)},
			{Symbol: "NVDA", ChangePercent: "+1.10%", Performance: perf(1.10)},
			{Symbol: "AMZN"},
			{Symbol: "META", ChangePercent: "+0.20%", Performance: perf(0.2)},
			{Symbol: "GOOG", ChangePercent: "+9.00%", Performance: perf(9)},
		},
		PageStructure: &schemas.PageStructure{
			HasChart:          true,
			HasSearchBox:      true,
			CanvasCount:       2,
			InputCount:        3,
			ButtonCount:       14,
			SectionsAvailable: []string{"chart", "data"},
		},
		Timestamp: time.Date(2025, 10, 26, 10, 0, 0, 0, time.UTC),
		SourceURL: "https://www.tradingview.com/symbols/AAPL/",
	}
}

func TestSummarize_FullSnapshot(t *testing.T) {
	want := strings.Join([]string{
		"Symbol: AAPL",
		"Price Data: Price: 182.50, Change: +1.25, Change%: +0.69%",
		"Key Stats: Market Cap: 2.84T, P/E Ratio: 29.4, Volume: 54.3M",
		"Chart: available; active timeframe 1h; timeframes 1m, 1h, 1d",
		"Watchlist (Top 5): MSFT (-0.35%), TSLA (+3.42%), NVDA (+1.10%), AMZN, META (+0.20%)",
		"Best Performer: TSLA (+3.42%)",
		"Page: 2 canvas, 3 inputs, 14 buttons, search box; sections: chart, data",
	}, "\n")

	assert.Equal(t, want, Summarize(fullSnapshot()))
}

func TestSummarize_Idempotent(t *testing.T) {
	s := fullSnapshot()
	assert.Equal(t, Summarize(s), Summarize(s))
}

func TestSummarize_OmitsEmptyGroups(t *testing.T) {
	s := schemas.PageSnapshot{
		PageType:  schemas.PageChart,
		Symbol:    schemas.UnknownSymbol,
		PriceData: &schemas.PriceData{ChangePercent: "-0.64%"},
		ChartInfo: &schemas.ChartInfo{},
		KeyStats:  &schemas.KeyStats{},
	}

	got := Summarize(s)

	assert.Equal(t, "Price Data: Change%: -0.64%", got)
	assert.NotContains(t, got, "N/A")
	assert.NotContains(t, got, "UNKNOWN")
}

func TestSummarize_NoData(t *testing.T) {
	assert.Equal(t, NoData, Summarize(schemas.PageSnapshot{}))
	assert.Equal(t, NoData, Summarize(schemas.PageSnapshot{Symbol: schemas.UnknownSymbol, PageStructure: &schemas.PageStructure{}}))
}

func TestSummarize_BestPerformerRequiresPositivePerformance(t *testing.T) {
	s := schemas.PageSnapshot{
		ListItems: []schemas.ListItem{
			{Symbol: "MSFT", Performance: perf(-1)},
			{Symbol: "FLAT", Performance: perf(0)},
			{Symbol: "AMZN"},
		},
	}

	got := Summarize(s)

	assert.Equal(t, "Watchlist (Top 3): MSFT, FLAT, AMZN", got)
	assert.NotContains(t, got, "Best Performer")
}

func TestSummarize_BestPerformerTieKeepsFirst(t *testing.T) {
	s := schemas.PageSnapshot{
		ListItems: []schemas.ListItem{
			{Symbol: "AAA", Performance: perf(2)},
			{Symbol: "BBB", Performance: perf(2)},
		},
	}
	assert.Contains(t, Summarize(s), "Best Performer: AAA (+2%)")
}
