// File: cmd/run.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codebuddy-cli/internal/observability"
	"github.com/xkilldash9x/codebuddy-cli/internal/service"
	"github.com/xkilldash9x/codebuddy-cli/internal/tui"
)

// runTUI is swapped in tests.
var runTUI = tui.Run

func newRunCmd(factory service.ComponentFactory) *cobra.Command {
	var noPopup bool

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Watch a browser tab and open the popup",
		Long: `Attaches to (or launches) Chrome, follows the problem you are working on
and captures submission results. The popup runs in this terminal; the learn
and solution overlays open inside the page.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationTUI: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}

			components, err := factory.Create(ctx, cfg, service.ModeFull, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			if err := components.ContentScript.Start(ctx); err != nil {
				return fmt.Errorf("failed to start content script: %w", err)
			}

			if !noPopup {
				if err := components.Popup.Start(ctx); err != nil {
					return fmt.Errorf("failed to start popup: %w", err)
				}
				if err := runTUI(ctx, components.Popup); err != nil {
					return err
				}
				select {
				case <-components.Popup.Closed():
					// The popup handed off to an overlay; keep the page alive.
					cmd.Println("Popup closed; the overlay stays open in the browser. Press Ctrl+C to exit.")
				default:
					return nil
				}
			}

			logger.Info("Watching page.", zap.String("start_url", cfg.Browser.StartURL))
			if err := components.ContentScript.Wait(); err != nil {
				return err
			}
			return ctx.Err()
		},
	}

	runCmd.Flags().BoolVar(&noPopup, "no-popup", false, "only watch the page; use 'codebuddy popup' elsewhere")
	runCmd.Flags().String("remote-url", "", "DevTools URL of a running Chrome (launches one when empty)")
	runCmd.Flags().String("start-url", "", "page to open in the tab")
	runCmd.Flags().Bool("headless", false, "launch Chrome headless")
	runCmd.Flags().String("backend-url", "", "base URL of the hint service")
	runCmd.Flags().String("store", "", "store driver (memory or redis)")
	runCmd.Flags().String("redis-addr", "", "Redis address for the store and bridge")
	runCmd.Flags().Bool("bridge", false, "relay bus messages over Redis")
	return runCmd
}
