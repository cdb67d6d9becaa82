// internal/extractor/heuristics.go
package extractor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/xkilldash9x/chartwise/api/schemas"
)

var (
	// urlSymbolRe tolerates an exchange prefix such as NASDAQ-AAPL or NYSE:IBM.
	urlSymbolRe   = regexp.MustCompile(`(?i)symbols/(?:[a-z]+[-:])?([a-z]{2,6})`)
	titleSymbolRe = regexp.MustCompile(`([A-Z]{2,6})`)
	textSymbolRe  = regexp.MustCompile(`\b([A-Z]{2,6})\b`)

	priceTokenRe  = regexp.MustCompile(`(\d{1,5}\.?\d{0,4})`)
	changeTokenRe = regexp.MustCompile(`[-+]?\d+\.?\d*%?`)
	percentRe     = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?%`)

	activeTimeframeRe = regexp.MustCompile(`^\d+[mhdwM]$`)
)

// priceSelectors are tried in order; the first selector that yields a price wins.
var priceSelectors = []string{
	"//*[contains(@class,'price')]",
	"//*[contains(@class,'last')]",
	"//*[contains(@class,'value')]",
}

const (
	minPlausiblePrice = 0.0
	maxPlausiblePrice = 100000.0
)

// bodyPriceFallbacks apply only when the URL names the instrument and no price element matched.
var bodyPriceFallbacks = []struct {
	urlToken string
	pattern  *regexp.Regexp
}{
	{urlToken: "SPX", pattern: regexp.MustCompile(`6[,.]?\d{3}\.?\d{2}`)},
}

// Timeframes is the vocabulary of chart intervals recognized on the page.
var Timeframes = []string{"1m", "5m", "15m", "30m", "1h", "4h", "1d", "1w", "1M"}

// listStoplist holds uppercase tokens that are never tickers.
var listStoplist = map[string]bool{
	"USD": true,
	"GMT": true,
	"UTC": true,
	"EST": true,
	"NEW": true,
	"THE": true,
	"AND": true,
}

const (
	maxListItemTextLen = 100
	maxStatLabelLen    = 60
)

// defaultSections is reported for every page; the host does not enumerate real sections.
var defaultSections = []string{"chart", "data"}

const (
	symbolTextQuery    = "//*[self::div or self::span or self::h1 or self::h2]"
	timeframeQuery     = "//*[self::button or self::div or self::span]"
	activeMarkerQuery  = "//*[contains(@class,'active') or contains(@class,'selected')]"
	listItemQuery      = "//*[self::div or self::span or self::td]"
	statCandidateQuery = "//*[self::div or self::span or self::td or self::th or self::dt or self::dd or self::li]"
	canvasQuery        = "//canvas"
	inputQuery         = "//input"
	buttonQuery        = "//button"
	searchBoxQuery     = "//input[@type='text' or @type='search']"
)

// detectPageType infers the page kind from the URL path. Unrecognized shapes default to chart.
func detectPageType(pageURL string) schemas.PageType {
	switch {
	case strings.Contains(pageURL, "/chart"):
		return schemas.PageChart
	case strings.Contains(pageURL, "/symbols"):
		return schemas.PageSymbol
	case strings.Contains(pageURL, "/screener"):
		return schemas.PageScreener
	default:
		return schemas.PageChart
	}
}

func extractSymbol(doc Document) string {
	if m := urlSymbolRe.FindStringSubmatch(doc.URL()); m != nil {
		return strings.ToUpper(m[1])
	}
	if m := titleSymbolRe.FindStringSubmatch(doc.Title()); m != nil {
		return m[1]
	}
	for _, el := range doc.Query(symbolTextQuery) {
		if !el.Visible() {
			continue
		}
		if m := textSymbolRe.FindStringSubmatch(el.Text()); m != nil {
			return m[1]
		}
	}
	return schemas.UnknownSymbol
}

func extractPrice(doc Document) *schemas.PriceData {
	var pd schemas.PriceData

	for _, selector := range priceSelectors {
		for _, el := range doc.Query(selector) {
			if !el.Visible() {
				continue
			}
			text := el.Text()
			if text == "" {
				continue
			}

			if pd.CurrentPrice == "" && !strings.Contains(text, "vol") && !strings.Contains(text, "Vol") {
				if m := priceTokenRe.FindString(text); m != "" {
					if v, err := strconv.ParseFloat(m, 64); err == nil && v > minPlausiblePrice && v < maxPlausiblePrice {
						pd.CurrentPrice = m
					}
				}
			}

			for _, tok := range changeTokenRe.FindAllString(text, -1) {
				if strings.HasSuffix(tok, "%") {
					if pd.ChangePercent == "" {
						pd.ChangePercent = tok
					}
				} else if pd.Change == "" && tok != pd.CurrentPrice {
					pd.Change = tok
				}
			}
		}
		if pd.CurrentPrice != "" {
			break
		}
	}

	if pd.CurrentPrice == "" {
		pageURL := doc.URL()
		for _, fb := range bodyPriceFallbacks {
			if !strings.Contains(pageURL, fb.urlToken) {
				continue
			}
			if m := fb.pattern.FindString(doc.BodyText()); m != "" {
				pd.CurrentPrice = m
				break
			}
		}
	}

	if pd.Empty() {
		return nil
	}
	return &pd
}

func extractChartInfo(doc Document) *schemas.ChartInfo {
	info := &schemas.ChartInfo{
		HasChart: len(doc.Query(canvasQuery)) > 0,
	}

	known := make(map[string]bool, len(Timeframes))
	for _, tf := range Timeframes {
		known[tf] = true
	}
	seen := make(map[string]bool)
	for _, el := range doc.Query(timeframeQuery) {
		if !el.Visible() {
			continue
		}
		text := el.Text()
		if known[text] && !seen[text] {
			seen[text] = true
			info.Timeframes = append(info.Timeframes, text)
		}
	}

	for _, el := range doc.Query(activeMarkerQuery) {
		text := el.Text()
		if activeTimeframeRe.MatchString(text) {
			info.ActiveTimeframe = text
			break
		}
	}
	return info
}

// statRule recognizes one key statistic either inline ("Volume 1.2M") or as a
// label element followed by a value element.
type statRule struct {
	labelOnly *regexp.Regexp
	inline    *regexp.Regexp
	assign    func(*schemas.KeyStats, string)
}

const statValuePattern = `[-+]?[0-9$][\w.,%$]*(?:\s*[-–]\s*[0-9$][\w.,%$]*)?`

var statValueRe = regexp.MustCompile(`^` + statValuePattern + `$`)

func newStatRule(label string, assign func(*schemas.KeyStats, string)) statRule {
	return statRule{
		labelOnly: regexp.MustCompile(`(?i)^(?:` + label + `)\s*:?$`),
		inline:    regexp.MustCompile(`(?i)^(?:` + label + `)\s*:?\s+(` + statValuePattern + `)$`),
		assign:    assign,
	}
}

var statRules = []statRule{
	newStatRule(`volume|vol\.?`, func(k *schemas.KeyStats, v string) { k.Volume = v }),
	newStatRule(`market\s*cap(?:italization)?`, func(k *schemas.KeyStats, v string) { k.MarketCap = v }),
	newStatRule(`p/e(?:\s*ratio)?(?:\s*\(ttm\))?`, func(k *schemas.KeyStats, v string) { k.PERatio = v }),
	newStatRule(`day'?s\s*range`, func(k *schemas.KeyStats, v string) { k.DayRange = v }),
}

func extractKeyStats(doc Document) *schemas.KeyStats {
	var stats schemas.KeyStats
	found := make([]bool, len(statRules))

	for _, el := range doc.Query(statCandidateQuery) {
		if !el.Visible() {
			continue
		}
		text := el.Text()
		if text == "" || len(text) > maxStatLabelLen {
			continue
		}
		for i, rule := range statRules {
			if found[i] {
				continue
			}
			if m := rule.inline.FindStringSubmatch(text); m != nil {
				rule.assign(&stats, m[1])
				found[i] = true
				continue
			}
			if rule.labelOnly.MatchString(text) {
				next := el.Next()
				if next == nil {
					continue
				}
				if v := next.Text(); statValueRe.MatchString(v) {
					rule.assign(&stats, v)
					found[i] = true
				}
			}
		}
	}

	if stats.Empty() {
		return nil
	}
	return &stats
}

func extractListItems(doc Document, limit int) []schemas.ListItem {
	if limit <= 0 {
		return nil
	}
	var items []schemas.ListItem
	seen := make(map[string]bool)

	for _, el := range doc.Query(listItemQuery) {
		if len(items) >= limit {
			break
		}
		if !el.Visible() {
			continue
		}
		text := el.Text()
		if text == "" || len(text) >= maxListItemTextLen {
			continue
		}
		symbol := ""
		for _, m := range textSymbolRe.FindAllStringSubmatch(text, -1) {
			if !listStoplist[m[1]] {
				symbol = m[1]
				break
			}
		}
		if symbol == "" || seen[symbol] {
			continue
		}
		seen[symbol] = true

		item := schemas.ListItem{
			Symbol:      symbol,
			RawText:     text,
			LocatorHint: locatorHint(el),
		}
		if pct := percentRe.FindString(text); pct != "" {
			item.ChangePercent = pct
			if v, err := strconv.ParseFloat(strings.TrimSuffix(pct, "%"), 64); err == nil {
				item.Performance = &v
			}
		}
		items = append(items, item)
	}
	return items
}

// locatorHint renders a coarse selector for el: #id, then .firstclass, then the tag name.
func locatorHint(el Element) string {
	if id := el.ID(); id != "" {
		return "#" + id
	}
	if classes := strings.Fields(el.Class()); len(classes) > 0 {
		return "." + classes[0]
	}
	return el.Tag()
}

func analyzeStructure(doc Document) *schemas.PageStructure {
	canvases := len(doc.Query(canvasQuery))
	return &schemas.PageStructure{
		HasChart:          canvases > 0,
		HasSearchBox:      len(doc.Query(searchBoxQuery)) > 0,
		CanvasCount:       canvases,
		InputCount:        len(doc.Query(inputQuery)),
		ButtonCount:       len(doc.Query(buttonQuery)),
		SectionsAvailable: append([]string(nil), defaultSections...),
	}
}
