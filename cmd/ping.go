package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/chartwise/internal/assistant"
	"github.com/xkilldash9x/chartwise/internal/config"
	"github.com/xkilldash9x/chartwise/internal/llmclient"
)

func newPingCmd(a *app) *cobra.Command {
	var mf modelFlags
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that the API key and model work",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := a.baseRequest("", mf)
			if req.APIKey == "" {
				return errors.New("no API key configured: set CHARTWISE_LLM_API_KEY, pass --api-key or save one in settings")
			}
			provider := config.LLMProvider(strings.ToLower(req.Provider))
			if provider == "" {
				provider = llmclient.ProviderForModel(req.ModelParams.Model, a.cfg.LLM.Provider)
			}
			if err := a.cfg.LLM.CheckKey(provider, req.APIKey); err != nil {
				return err
			}
			model := req.ModelParams.Model
			if model == "" && provider != a.cfg.LLM.Provider {
				model = llmclient.DefaultModel(provider)
			}

			llm, err := a.newLLM(a.cfg.LLM, a.logger)
			if err != nil {
				return fmt.Errorf("failed to initialize LLM client: %w", err)
			}
			defer llm.Close()

			timeout := a.cfg.LLM.RequestTimeout
			if timeout <= 0 {
				timeout = assistant.DefaultRequestTimeout
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			reply, err := llmclient.Ping(ctx, llm, req.APIKey, model)
			if err != nil {
				return describe(err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Connection OK (%s): %s\n", provider, strings.TrimSpace(reply))
			return err
		},
	}
	addModelFlags(cmd, &mf)
	return cmd
}
