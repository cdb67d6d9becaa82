package prompt

// QuickPrompt names a canned command offered by the UI.
type QuickPrompt string

const (
	QuickCurrentPrice   QuickPrompt = "currentPrice"
	QuickPerformance    QuickPrompt = "performance"
	QuickKeyStats       QuickPrompt = "keyStats"
	QuickTrend          QuickPrompt = "trend"
	QuickNews           QuickPrompt = "news"
	QuickRecommendation QuickPrompt = "recommendation"
)

var quickPrompts = map[QuickPrompt]string{
	QuickCurrentPrice:   "What is the current price and how has it changed today? Provide context about the movement.",
	QuickPerformance:    "Analyze today's performance. What factors might be influencing the price movement? Look at volume, change percentage, and any available news.",
	QuickKeyStats:       "Summarize the key statistics for this symbol. Highlight the most important metrics like P/E ratio, market cap, volume, and any standout numbers.",
	QuickTrend:          "Analyze the recent price trend. What does the chart data suggest about momentum? Are there any notable patterns?",
	QuickNews:           "What are the latest news developments for this symbol? Summarize the most recent and relevant articles.",
	QuickRecommendation: "What do analysts recommend for this symbol? Provide the consensus recommendation and price targets if available.",
}

// QuickPrompts lists the canned commands in display order.
var QuickPrompts = []QuickPrompt{
	QuickCurrentPrice,
	QuickPerformance,
	QuickKeyStats,
	QuickTrend,
	QuickNews,
	QuickRecommendation,
}

// Quick returns the command text for kind.
func Quick(kind QuickPrompt) (string, bool) {
	text, ok := quickPrompts[kind]
	return text, ok
}
