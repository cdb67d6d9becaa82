package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chartwise/api/schemas"
	"github.com/xkilldash9x/chartwise/internal/assistant"
	"github.com/xkilldash9x/chartwise/internal/prompt"
)

func newAskCmd(a *app) *cobra.Command {
	var (
		pf     pageFlags
		mf     modelFlags
		quick  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "ask [command...]",
		Short: "Ask a question about a dashboard page",
		Long: `Captures the page, extracts its market data and asks the model about it.
The page comes from a saved HTML file (--file) or is loaded in headless Chrome (--url).`,
		Example: `  chartwise ask --url https://www.tradingview.com/symbols/NASDAQ-AAPL/ "What is the trend?"
  chartwise ask --file watchlist.html --url https://www.tradingview.com/watchlists/ "Which symbol is up the most?"
  chartwise ask --url https://www.tradingview.com/symbols/NASDAQ-AAPL/ --quick keyStats`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			command, err := commandText(args, quick)
			if err != nil {
				return err
			}

			host, cleanup, err := a.openHost(ctx, pf)
			defer cleanup()
			if err != nil {
				return err
			}
			svc, llm, err := a.newService()
			if err != nil {
				return err
			}
			defer llm.Close()

			req := a.baseRequest(command, mf)
			reply, err := svc.Command(ctx, host, req)
			if err != nil {
				a.logger.Debug("Command failed.", zap.Error(err))
				if asJSON {
					_ = writeJSON(cmd.OutOrStdout(), schemas.CommandResponse{
						Error:     assistant.Describe(err),
						ErrorKind: assistant.Kind(err),
					})
				}
				return describe(err)
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), schemas.CommandResponse{
					Success:    true,
					AIResponse: reply.Response,
					Actions:    reply.Actions,
				})
			}
			return writeReply(cmd.OutOrStdout(), reply)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&pf.file, "file", "f", "", "saved HTML page to read instead of launching a browser")
	flags.StringVarP(&pf.url, "url", "u", "", "page URL (loaded in headless Chrome unless --file is given)")
	addModelFlags(cmd, &mf)
	flags.StringVar(&quick, "quick", "", "ask a canned question instead: "+quickNames())
	flags.BoolVar(&asJSON, "json", false, "print the response as JSON")
	return cmd
}

// commandText resolves the command from the positional words or a quick prompt name.
func commandText(args []string, quick string) (string, error) {
	switch {
	case quick != "" && len(args) > 0:
		return "", fmt.Errorf("pass either a command or --quick, not both")
	case quick != "":
		text, ok := prompt.Quick(prompt.QuickPrompt(quick))
		if !ok {
			return "", fmt.Errorf("unknown quick prompt %q (choose from %s)", quick, quickNames())
		}
		return text, nil
	case len(args) == 0:
		return "", fmt.Errorf("a command or --quick is required")
	}
	return strings.Join(args, " "), nil
}

func quickNames() string {
	names := make([]string, len(prompt.QuickPrompts))
	for i, q := range prompt.QuickPrompts {
		names[i] = string(q)
	}
	return strings.Join(names, ", ")
}

// addModelFlags registers the per-invocation model overrides and the API key flag.
func addModelFlags(cmd *cobra.Command, mf *modelFlags) {
	flags := cmd.Flags()
	flags.StringVar(&mf.provider, "provider", "", "model provider (gemini or openai)")
	flags.StringVarP(&mf.model, "model", "m", "", "model name, e.g. gemini-1.5-flash-latest or gpt-4o-mini")
	flags.IntVar(&mf.maxTokens, "max-tokens", 0, "completion token limit")
	flags.Float64Var(&mf.temperature, "temperature", 0, "sampling temperature")
	flags.String("api-key", "", "model provider API key")
	bindFlag(flags, "api-key", "llm.api_key")
}
