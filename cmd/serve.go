package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/chartwise/internal/pagehost"
	"github.com/xkilldash9x/chartwise/internal/relay"
	"github.com/xkilldash9x/chartwise/internal/wsbridge"
)

// hostCheckInterval is how often serve probes a browser-backed page host.
var hostCheckInterval = 30 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var chromeURL string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay the browser extension talks to",
		Long: `Serves the popup API and the content-script websocket.
With --chrome-url the relay drives its own headless Chrome tab instead of the extension's page.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			svc, llm, err := a.newService()
			if err != nil {
				return err
			}
			defer llm.Close()

			store, err := a.settingsStore()
			if err != nil {
				return err
			}
			a.logger.Info("Using settings file.", zap.String("path", store.Path()))

			bridge := wsbridge.NewBridge(wsbridge.Options{
				CheckOrigin:    relay.CheckOrigin(a.cfg.Relay.AllowedOrigins),
				CommandTimeout: a.cfg.Relay.BridgeTimeout,
			}, a.logger)
			deps := relay.Dependencies{Assistant: svc, LLM: llm, Settings: store, Bridge: bridge}

			if chromeURL != "" {
				host, cleanup, err := a.openHost(ctx, pageFlags{url: chromeURL})
				defer cleanup()
				if err != nil {
					return err
				}
				deps.Host = host
			}

			server := relay.NewServer(a.cfg, deps, a.logger)
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return server.Start(gctx) })
			if deps.Host != nil {
				g.Go(func() error { return watchHost(gctx, deps.Host, hostCheckInterval, a.logger) })
			}

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("listen", "", "address to listen on (default 127.0.0.1:8787)")
	bindFlag(cmd.Flags(), "listen", "relay.listen_addr")
	cmd.Flags().StringVar(&chromeURL, "chrome-url", "", "load this page in headless Chrome and serve it instead of the extension's page")
	return cmd
}

// watchHost logs when the page host stops answering, until ctx ends.
func watchHost(ctx context.Context, host pagehost.Host, every time.Duration, logger *zap.Logger) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	healthy := true
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, every)
			_, err := host.Status(checkCtx)
			cancel()
			switch {
			case err != nil && healthy && ctx.Err() == nil:
				logger.Warn("Page host is not responding.", zap.Error(err))
				healthy = false
			case err == nil && !healthy:
				logger.Info("Page host recovered.")
				healthy = true
			}
		}
	}
}
