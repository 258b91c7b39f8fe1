// File: internal/service/initializers.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codebuddy-cli/internal/bus"
	"github.com/xkilldash9x/codebuddy-cli/internal/config"
	"github.com/xkilldash9x/codebuddy-cli/internal/store"
)

// bridgeReadyTimeout bounds how long StartBridge waits for the subscription.
const bridgeReadyTimeout = 10 * time.Second

// NewBrowserAllocator attaches to a running browser when RemoteURL is set and
// launches one otherwise.
func NewBrowserAllocator(ctx context.Context, cfg config.BrowserConfig) (context.Context, context.CancelFunc) {
	if cfg.RemoteURL != "" {
		return chromedp.NewRemoteAllocator(ctx, cfg.RemoteURL)
	}
	return chromedp.NewExecAllocator(ctx, getBrowserExecOptions(cfg)...)
}

// StartBridge relays b over the Redis client behind s. It returns once the
// subscription is live; the returned stop function cancels the relay and
// waits for it.
func StartBridge(ctx context.Context, b *bus.Bus, s store.Store, cfg config.BridgeConfig, logger *zap.Logger) (func(), error) {
	redisStore, ok := s.(*store.Redis)
	if !ok {
		return nil, fmt.Errorf("the bus bridge requires the redis store driver")
	}

	bridgeCtx, cancel := context.WithCancel(ctx)
	bridge := bus.NewBridge(b, redisStore.Client(), cfg.Channel, logger)
	done := make(chan error, 1)
	go func() { done <- bridge.Run(bridgeCtx) }()

	stop := func() {
		cancel()
		if err := <-done; err != nil {
			logger.Warn("Bus bridge exited with error.", zap.Error(err))
		}
	}

	select {
	case <-bridge.Ready():
		logger.Debug("Bus bridge ready.", zap.String("channel", cfg.Channel))
		return stop, nil
	case err := <-done:
		cancel()
		if err == nil {
			err = errors.New("bridge exited before subscribing")
		}
		return nil, fmt.Errorf("bus bridge failed to start: %w", err)
	case <-time.After(bridgeReadyTimeout):
		stop()
		return nil, fmt.Errorf("bus bridge did not become ready within %s", bridgeReadyTimeout)
	case <-ctx.Done():
		stop()
		return nil, ctx.Err()
	}
}
