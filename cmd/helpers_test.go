// File: cmd/helpers_test.go
package cmd

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/codebuddy-cli/internal/backend"
	"github.com/xkilldash9x/codebuddy-cli/internal/bus"
	"github.com/xkilldash9x/codebuddy-cli/internal/config"
	"github.com/xkilldash9x/codebuddy-cli/internal/contentscript"
	"github.com/xkilldash9x/codebuddy-cli/internal/observability"
	"github.com/xkilldash9x/codebuddy-cli/internal/page"
	"github.com/xkilldash9x/codebuddy-cli/internal/popup"
	"github.com/xkilldash9x/codebuddy-cli/internal/service"
	"github.com/xkilldash9x/codebuddy-cli/internal/store"
	"github.com/xkilldash9x/codebuddy-cli/internal/tui"
)

// isolateEnvironment keeps a test away from the user's home directory and
// any codebuddy.yaml in the working directory, and resets the global logger.
func isolateEnvironment(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("CODEBUDDY_LOGGER_LOG_FILE", filepath.Join(dir, "codebuddy.log"))
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)
}

// stubTUI replaces the popup TUI for the duration of a test.
func stubTUI(t *testing.T, fn func(ctx context.Context, ctrl tui.Controller) error) {
	t.Helper()
	orig := runTUI
	runTUI = fn
	t.Cleanup(func() { runTUI = orig })
}

// testComponents wires real in-memory components around a parsed document.
func testComponents(t *testing.T, doc *page.Document) *service.Components {
	t.Helper()
	logger := zaptest.NewLogger(t)
	cfg := config.NewDefaultConfig()

	client, err := backend.NewClient(cfg.Backend, logger)
	require.NoError(t, err)
	s := store.NewMemory(cfg.Store.Origin)
	b := bus.New(logger, cfg.Bus.BufferSize)

	components := &service.Components{
		Store:   s,
		Bus:     b,
		Backend: client,
		Popup:   popup.New(s, b, client, cfg.Popup, logger),
	}
	if doc != nil {
		components.ContentScript = contentscript.New(doc, s, b, client, cfg, logger)
	}
	return components
}
