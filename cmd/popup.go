// File: cmd/popup.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/codebuddy-cli/internal/config"
	"github.com/xkilldash9x/codebuddy-cli/internal/observability"
	"github.com/xkilldash9x/codebuddy-cli/internal/service"
)

func newPopupCmd(factory service.ComponentFactory) *cobra.Command {
	popupCmd := &cobra.Command{
		Use:   "popup",
		Short: "Open the popup against a page watched by another process",
		Long: `Runs only the popup. The page is watched by 'codebuddy run --no-popup' in
another terminal; both sides share state through Redis.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationTUI: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			// The page lives in another process; only Redis connects the two.
			cfg.Bus.Bridge.Enabled = true
			cfg.Store.Driver = config.StoreDriverRedis

			components, err := factory.Create(ctx, cfg, service.ModePopup, observability.GetLogger())
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			if err := components.Popup.Start(ctx); err != nil {
				return fmt.Errorf("failed to start popup: %w", err)
			}
			return runTUI(ctx, components.Popup)
		},
	}
	popupCmd.Flags().String("backend-url", "", "base URL of the hint service")
	popupCmd.Flags().String("redis-addr", "", "Redis address for the store and bridge")
	return popupCmd
}
