// Package summarizer renders a PageSnapshot as the bounded text block embedded in model prompts.
package summarizer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xkilldash9x/chartwise/api/schemas"
)

// MaxListItems is the number of list items included in a summary.
const MaxListItems = 5

// NoData is returned when a snapshot has nothing worth reporting.
const NoData = "No page data available."

// Summarize returns one line per non-empty field group in a fixed order:
// symbol, price, key stats, chart, watchlist, best performer, page structure.
// The output depends only on s.
func Summarize(s schemas.PageSnapshot) string {
	var lines []string

	if s.Symbol != "" && s.Symbol != schemas.UnknownSymbol {
		lines = append(lines, "Symbol: "+s.Symbol)
	}
	if line := priceLine(s.PriceData); line != "" {
		lines = append(lines, line)
	}
	if line := statsLine(s.KeyStats); line != "" {
		lines = append(lines, line)
	}
	if line := chartLine(s.ChartInfo); line != "" {
		lines = append(lines, line)
	}
	if line := watchlistLine(s.ListItems); line != "" {
		lines = append(lines, line)
	}
	if line := bestPerformerLine(s.ListItems); line != "" {
		lines = append(lines, line)
	}
	if line := structureLine(s.PageStructure); line != "" {
		lines = append(lines, line)
	}

	if len(lines) == 0 {
		return NoData
	}
	return strings.Join(lines, "\n")
}

func priceLine(p *schemas.PriceData) string {
	if p.Empty() {
		return ""
	}
	var parts []string
	if p.CurrentPrice != "" {
		parts = append(parts, "Price: "+p.CurrentPrice)
	}
	if p.Change != "" {
		parts = append(parts, "Change: "+p.Change)
	}
	if p.ChangePercent != "" {
		parts = append(parts, "Change%: "+p.ChangePercent)
	}
	return "Price Data: " + strings.Join(parts, ", ")
}

func statsLine(k *schemas.KeyStats) string {
	if k.Empty() {
		return ""
	}
	var parts []string
	if k.MarketCap != "" {
		parts = append(parts, "Market Cap: "+k.MarketCap)
	}
	if k.PERatio != "" {
		parts = append(parts, "P/E Ratio: "+k.PERatio)
	}
	if k.Volume != "" {
		parts = append(parts, "Volume: "+k.Volume)
	}
	if k.DayRange != "" {
		parts = append(parts, "Day's Range: "+k.DayRange)
	}
	return "Key Stats: " + strings.Join(parts, ", ")
}

func chartLine(c *schemas.ChartInfo) string {
	if c == nil || (!c.HasChart && c.ActiveTimeframe == "" && len(c.Timeframes) == 0) {
		return ""
	}
	var parts []string
	if c.HasChart {
		parts = append(parts, "available")
	}
	if c.ActiveTimeframe != "" {
		parts = append(parts, "active timeframe "+c.ActiveTimeframe)
	}
	if len(c.Timeframes) > 0 {
		parts = append(parts, "timeframes "+strings.Join(c.Timeframes, ", "))
	}
	return "Chart: " + strings.Join(parts, "; ")
}

func watchlistLine(items []schemas.ListItem) string {
	if len(items) == 0 {
		return ""
	}
	n := len(items)
	if n > MaxListItems {
		n = MaxListItems
	}
	entries := make([]string, 0, n)
	for _, it := range items[:n] {
		if it.ChangePercent != "" {
			entries = append(entries, fmt.Sprintf("%s (%s)", it.Symbol, it.ChangePercent))
		} else {
			entries = append(entries, it.Symbol)
		}
	}
	return fmt.Sprintf("Watchlist (Top %d): %s", n, strings.Join(entries, ", "))
}

// bestPerformerLine names the summarized item with the highest strictly positive
// performance. Ties keep the earliest item.
func bestPerformerLine(items []schemas.ListItem) string {
	if len(items) > MaxListItems {
		items = items[:MaxListItems]
	}
	var best *schemas.ListItem
	for i := range items {
		it := &items[i]
		if it.Performance == nil || *it.Performance <= 0 {
			continue
		}
		if best == nil || *it.Performance > *best.Performance {
			best = it
		}
	}
	if best == nil {
		return ""
	}
	return fmt.Sprintf("Best Performer: %s (+%s%%)", best.Symbol, strconv.FormatFloat(*best.Performance, 'f', -1, 64))
}

func structureLine(p *schemas.PageStructure) string {
	if p == nil {
		return ""
	}
	if p.CanvasCount == 0 && p.InputCount == 0 && p.ButtonCount == 0 && len(p.SectionsAvailable) == 0 {
		return ""
	}
	line := fmt.Sprintf("Page: %d canvas, %d inputs, %d buttons", p.CanvasCount, p.InputCount, p.ButtonCount)
	if p.HasSearchBox {
		line += ", search box"
	}
	if len(p.SectionsAvailable) > 0 {
		line += "; sections: " + strings.Join(p.SectionsAvailable, ", ")
	}
	return line
}
