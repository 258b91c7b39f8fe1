// File: internal/service/components.go
package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/codebuddy-cli/internal/backend"
	"github.com/xkilldash9x/codebuddy-cli/internal/bus"
	"github.com/xkilldash9x/codebuddy-cli/internal/contentscript"
	"github.com/xkilldash9x/codebuddy-cli/internal/page"
	"github.com/xkilldash9x/codebuddy-cli/internal/popup"
	"github.com/xkilldash9x/codebuddy-cli/internal/store"
)

// Components holds every service a run needs and owns their lifecycle.
type Components struct {
	Store         store.Store
	Bus           *bus.Bus
	Backend       *backend.Client
	Tab           *page.Tab
	ContentScript *contentscript.Process
	Popup         *popup.Controller

	// bridgeStop stops the Redis relay and waits for it to exit.
	bridgeStop func()
	// allocCancel releases the browser allocator.
	allocCancel context.CancelFunc

	logger *zap.Logger
}

// Shutdown releases the components in reverse dependency order. It is safe
// on a partially built set.
func (c *Components) Shutdown() {
	logger := c.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Beginning components shutdown sequence.")

	// 1. Stop the contexts first so nothing new is posted or fetched.
	if c.ContentScript != nil {
		if err := c.ContentScript.Stop(); err != nil {
			logger.Warn("Content script stopped with error.", zap.Error(err))
		}
		logger.Debug("Content script stopped.")
	}
	if c.Popup != nil {
		if err := c.Popup.Stop(); err != nil {
			logger.Warn("Popup stopped with error.", zap.Error(err))
		}
		logger.Debug("Popup stopped.")
	}

	// 2. Close the tab, then the browser behind it.
	if c.Tab != nil {
		if err := c.Tab.Close(); err != nil {
			logger.Warn("Error closing tab.", zap.Error(err))
		}
	}
	if c.allocCancel != nil {
		c.allocCancel()
		logger.Debug("Browser allocator released.")
	}

	// 3. Transport.
	if c.bridgeStop != nil {
		c.bridgeStop()
		logger.Debug("Bus bridge stopped.")
	}
	if c.Bus != nil {
		c.Bus.Shutdown()
	}

	// 4. Storage last; the bridge may share its Redis client.
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			logger.Warn("Error closing store.", zap.Error(err))
		}
	}

	logger.Info("All components shut down successfully.")
}
