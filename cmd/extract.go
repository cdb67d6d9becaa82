package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/chartwise/internal/extractor"
	"github.com/xkilldash9x/chartwise/internal/summarizer"
)

func newExtractCmd(a *app) *cobra.Command {
	var (
		pf      pageFlags
		only    string
		summary bool
	)
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Print the market data extracted from a page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			query := extractor.Query(only)
			switch query {
			case extractor.QueryAll, extractor.QueryPrice, extractor.QuerySymbol, extractor.QueryChart, extractor.QueryWatchlist:
			default:
				return fmt.Errorf("unknown field group %q (choose from all, price, symbol, chart, watchlist)", only)
			}

			host, cleanup, err := a.openHost(ctx, pf)
			defer cleanup()
			if err != nil {
				return err
			}

			src, err := host.Document(ctx)
			if err != nil {
				return fmt.Errorf("failed to capture page: %w", err)
			}
			doc, err := extractor.NewDocumentFromString(src.HTML, src.URL)
			if err != nil {
				return fmt.Errorf("failed to parse page: %w", err)
			}
			snap := a.newExtractor().ExtractSpecific(doc, query)

			if summary {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), summarizer.Summarize(snap))
				return err
			}
			return writeJSON(cmd.OutOrStdout(), snap)
		},
	}
	cmd.Flags().StringVarP(&pf.file, "file", "f", "", "saved HTML page to read instead of launching a browser")
	cmd.Flags().StringVarP(&pf.url, "url", "u", "", "page URL (loaded in headless Chrome unless --file is given)")
	cmd.Flags().StringVar(&only, "only", string(extractor.QueryAll), "field group to extract: all, price, symbol, chart or watchlist")
	cmd.Flags().BoolVar(&summary, "summary", false, "print the model-facing summary instead of JSON")
	return cmd
}
