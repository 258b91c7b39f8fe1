// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codebuddy-cli/internal/backend"
	"github.com/xkilldash9x/codebuddy-cli/internal/bus"
	"github.com/xkilldash9x/codebuddy-cli/internal/config"
	"github.com/xkilldash9x/codebuddy-cli/internal/contentscript"
	"github.com/xkilldash9x/codebuddy-cli/internal/page"
	"github.com/xkilldash9x/codebuddy-cli/internal/popup"
	"github.com/xkilldash9x/codebuddy-cli/internal/store"
)

// Mode selects which contexts a process hosts.
type Mode int

const (
	// ModeFull drives a browser tab and hosts the popup alongside it.
	ModeFull Mode = iota
	// ModePopup hosts only the popup; the page lives in another process
	// reached through the Redis bridge.
	ModePopup
)

// ComponentFactory creates the set of components for a run. The
// abstraction keeps the commands testable.
type ComponentFactory interface {
	Create(ctx context.Context, cfg *config.Config, mode Mode, logger *zap.Logger) (*Components, error)
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct{}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// getBrowserExecOptions translates the application config into chromedp allocator options.
func getBrowserExecOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	// The user works in this browser, so it is headed unless asked otherwise.
	opts = append(opts, chromedp.Flag("headless", cfg.Headless))

	for _, arg := range cfg.Args {
		// Boolean flags (e.g. --mute-audio)
		if !strings.Contains(arg, "=") {
			opts = append(opts, chromedp.Flag(strings.TrimPrefix(arg, "--"), true))
			continue
		}
		parts := strings.SplitN(arg, "=", 2)
		opts = append(opts, chromedp.Flag(strings.TrimPrefix(parts[0], "--"), parts[1]))
	}
	return opts
}

// Create wires the components for mode. On failure anything already built
// is shut down.
func (f *concreteFactory) Create(ctx context.Context, cfg *config.Config, mode Mode, logger *zap.Logger) (*Components, error) {
	components := &Components{logger: logger}

	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	if mode == ModePopup && !cfg.Bus.Bridge.Enabled {
		initializationErr = fmt.Errorf("popup-only mode needs the bus bridge (hint: set bus.bridge.enabled and store.driver=redis)")
		return nil, initializationErr
	}

	// 1. Store
	s, err := store.New(ctx, cfg.Store, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize store: %w", err)
		return nil, initializationErr
	}
	components.Store = s
	logger.Debug("Store initialized.", zap.String("driver", cfg.Store.Driver))

	// 2. Bus and optional bridge
	components.Bus = bus.New(logger, cfg.Bus.BufferSize)
	if cfg.Bus.Bridge.Enabled {
		stop, err := StartBridge(ctx, components.Bus, s, cfg.Bus.Bridge, logger)
		if err != nil {
			initializationErr = err
			return nil, initializationErr
		}
		components.bridgeStop = stop
	}

	// 3. Backend client
	client, err := backend.NewClient(cfg.Backend, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize backend client: %w", err)
		return nil, initializationErr
	}
	components.Backend = client

	// 4. Page context
	if mode == ModeFull {
		allocCtx, allocCancel := NewBrowserAllocator(ctx, cfg.Browser)
		components.allocCancel = allocCancel

		tab, err := page.NewTab(allocCtx, cfg.Browser, logger)
		if err != nil {
			initializationErr = fmt.Errorf("failed to open browser tab: %w", err)
			return nil, initializationErr
		}
		components.Tab = tab
		components.ContentScript = contentscript.New(tab, s, components.Bus, client, cfg, logger)
		logger.Debug("Page context initialized.")
	}

	// 5. Popup
	components.Popup = popup.New(s, components.Bus, client, cfg.Popup, logger)

	logger.Info("All components initialized successfully.")
	return components, nil
}
