// internal/prompt/prompt.go
package prompt

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/xkilldash9x/chartwise/api/schemas"
)

// ErrEmptyCommand is returned when the user command is blank.
var ErrEmptyCommand = errors.New("user command is empty")

// MaxUserPromptBytes bounds the user prompt. The page summary is cut to fit; the
// command itself is never shortened.
const MaxUserPromptBytes = 8 * 1024

const truncationMarker = "\n...(context truncated)"

// Payload is the pair of prompts sent to the model.
type Payload struct {
	System string
	User   string
}

// actionExample documents one action type to the model.
type actionExample struct {
	Type    schemas.ActionType
	Purpose string
	Example string
}

// actionExamples must cover every entry of schemas.ActionTypes.
var actionExamples = []actionExample{
	{schemas.ActionClick, "Click a button, tab or link",
		`{"type": "click", "selector": "[data-name='time-intervals'] button", "label": "1H", "description": "Change to 1H timeframe"}`},
	{schemas.ActionTypeText, "Type text into an input",
		`{"type": "type", "selector": "input[data-role='search']", "value": "AAPL", "label": "Search AAPL", "description": "Search for AAPL"}`},
	{schemas.ActionNavigate, "Open a different page or section",
		`{"type": "navigate", "selector": "a[href*='/symbols/TSLA']", "value": "https://www.tradingview.com/symbols/TSLA/", "label": "Open TSLA", "description": "Go to the TSLA overview"}`},
	{schemas.ActionScroll, "Scroll an element into view",
		`{"type": "scroll", "selector": "#news", "label": "News", "description": "Scroll to the news section"}`},
	{schemas.ActionHighlight, "Visually highlight a data point",
		`{"type": "highlight", "selector": ".price-value", "label": "Price", "description": "Highlight the current price"}`},
	{schemas.ActionExtract, "Read a specific value from the page",
		`{"type": "extract", "selector": "[data-name='volume']", "label": "Volume", "description": "Read today's volume"}`},
	{schemas.ActionSelect, "Choose an option in a dropdown",
		`{"type": "select", "selector": "select#interval", "value": "4h", "label": "4H", "description": "Select the 4H interval"}`},
}

var systemPrompt = sync.OnceValue(buildSystemPrompt)

// SystemPrompt returns the fixed instruction template.
func SystemPrompt() string {
	return systemPrompt()
}

func buildSystemPrompt() string {
	var b strings.Builder
	b.WriteString(`You are an AI assistant for financial chart and market-data pages (TradingView style). You analyze the page data you are given AND suggest actions the user can trigger on the page.

Your role is to:
1. Answer the user's question using the provided page context
2. Explain price movement, trends and statistics in clear terms
3. Suggest specific page actions when the user wants something done (change timeframe, search a symbol, open the best performer, click something)
4. State clearly when the context does not contain the requested information

Supported action types:
`)
	for _, ex := range actionExamples {
		fmt.Fprintf(&b, "- %q: %s\n", string(ex.Type), ex.Purpose)
	}
	b.WriteString(`
Always respond with a single JSON object of exactly this shape:
{
  "response": "Your helpful analysis and answer here",
  "actions": [
    {
      "type": "one of the supported action types",
      "selector": "CSS selector of the target element",
      "value": "text to type, option to select or URL to open (optional)",
      "label": "Short button text",
      "description": "What this action does"
    }
  ]
}

Example actions:
`)
	for _, ex := range actionExamples {
		fmt.Fprintf(&b, "- %s\n", ex.Example)
	}
	b.WriteString(`
Use an empty "actions" array when no action is relevant. Respond ONLY with valid JSON.`)
	return b.String()
}

// Build wraps the summary and the verbatim user command in the request template.
func Build(userCommand, summary string) (Payload, error) {
	if strings.TrimSpace(userCommand) == "" {
		return Payload{}, ErrEmptyCommand
	}

	user := renderUser(userCommand, summary)
	if len(user) > MaxUserPromptBytes {
		overflow := len(user) - MaxUserPromptBytes
		user = renderUser(userCommand, truncateSummary(summary, len(summary)-overflow-len(truncationMarker)))
	}

	return Payload{System: SystemPrompt(), User: user}, nil
}

func renderUser(userCommand, summary string) string {
	if strings.TrimSpace(summary) == "" {
		summary = "No page data available."
	}
	return fmt.Sprintf(`USER COMMAND: "%s"

CURRENT PAGE CONTEXT:
%s

Analyze this data and respond to the user's command. Include relevant actions they can take on the page.
Respond in JSON format with "response" and "actions" fields.`, userCommand, summary)
}

// truncateSummary cuts s to at most limit bytes, preferring a line boundary and
// never splitting a rune.
func truncateSummary(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	cut := s[:limit]
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		cut = cut[:i]
	}
	return cut + truncationMarker
}
