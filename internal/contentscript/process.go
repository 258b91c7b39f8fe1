// internal/contentscript/process.go
package contentscript

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/codebuddy-cli/internal/bus"
	"github.com/xkilldash9x/codebuddy-cli/internal/config"
	"github.com/xkilldash9x/codebuddy-cli/internal/messages"
	"github.com/xkilldash9x/codebuddy-cli/internal/observer"
	"github.com/xkilldash9x/codebuddy-cli/internal/overlay"
	"github.com/xkilldash9x/codebuddy-cli/internal/page"
	"github.com/xkilldash9x/codebuddy-cli/internal/store"
)

// ErrAlreadyStarted is returned by Start on a running process.
var ErrAlreadyStarted = errors.New("content script already started")

// Process is the page context: it observes the page, answers overlay
// requests from the popup and runs the overlays. All page and overlay state
// is touched only by the loop goroutine.
type Process struct {
	page     page.Page
	bus      *bus.Bus
	observer *observer.Observer
	overlays *overlay.Manager
	logger   *zap.Logger

	// Callbacks and results handed back to the loop.
	callbacks chan func(context.Context)
	results   chan overlay.Result

	mu          sync.Mutex
	group       *errgroup.Group
	groupCtx    context.Context
	cancel      context.CancelFunc
	unsubscribe func()
}

// New wires a content script for p.
func New(p page.Page, s store.Store, b *bus.Bus, client overlay.Backend, cfg *config.Config, logger *zap.Logger) *Process {
	proc := &Process{
		page:      p,
		bus:       b,
		logger:    logger.Named("contentscript"),
		callbacks: make(chan func(context.Context)),
		results:   make(chan overlay.Result),
	}
	proc.observer = observer.New(p, s, b, proc, cfg.Observer, logger)
	proc.overlays = overlay.NewManager(p, s, client, proc, cfg.Overlay, cfg.Observer.SiteName, logger)
	return proc
}

// Start subscribes to overlay requests and launches the event loop.
func (p *Process) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.group != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	msgs, unsubscribe := p.bus.Subscribe(messages.TypeOpenLearnOverlay, messages.TypeOpenOptimalOverlay)

	p.group, p.groupCtx, p.cancel, p.unsubscribe = g, gctx, cancel, unsubscribe
	g.Go(func() error {
		// Helpers block on handing results back; once the loop is gone
		// they must see the group context end.
		defer cancel()
		return p.loop(gctx, msgs)
	})
	p.logger.Info("Content script started.")
	return nil
}

// Stop ends the loop, waits for helpers and unsubscribes from the bus.
func (p *Process) Stop() error {
	p.mu.Lock()
	g, cancel, unsubscribe := p.group, p.cancel, p.unsubscribe
	p.mu.Unlock()
	if g == nil {
		return nil
	}
	cancel()
	err := g.Wait()
	unsubscribe()
	p.logger.Info("Content script stopped.")
	return err
}

// Wait blocks until the loop exits on its own or is stopped.
func (p *Process) Wait() error {
	p.mu.Lock()
	g := p.group
	p.mu.Unlock()
	if g == nil {
		return nil
	}
	return g.Wait()
}

// After implements observer.Scheduler: fn runs on the loop once d elapses.
func (p *Process) After(d time.Duration, fn func(context.Context)) {
	ctx := p.groupCtx
	p.group.Go(func() error {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil
		}
		select {
		case p.callbacks <- fn:
		case <-ctx.Done():
		}
		return nil
	})
}

// Go implements overlay.Runner. Superseded requests are not cancelled;
// their results are discarded when applied.
func (p *Process) Go(fn func(context.Context) overlay.Result) {
	ctx := p.groupCtx
	p.group.Go(func() error {
		r := fn(ctx)
		select {
		case p.results <- r:
		case <-ctx.Done():
		}
		return nil
	})
}

func (p *Process) loop(ctx context.Context, msgs <-chan bus.Message) error {
	p.observer.Initialize(ctx)
	signals := p.page.Signals()

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				p.logger.Info("Page closed; content script exiting.")
				return nil
			}
			p.handleSignal(ctx, sig)
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			p.handleMessage(ctx, msg)
		case fn := <-p.callbacks:
			fn(ctx)
		case r := <-p.results:
			if err := p.overlays.Apply(ctx, r); err != nil {
				p.logger.Warn("Failed to apply overlay result.", zap.Error(err))
			}
		}
	}
}

func (p *Process) handleSignal(ctx context.Context, sig page.Signal) {
	switch {
	case sig.Kind == page.SignalMutation:
		p.observer.HandleMutations(ctx)
	case sig.Kind.IsNavigation():
		p.observer.HandleNavigation(ctx, sig)
	case sig.Kind == page.SignalOverlay && sig.Overlay != nil:
		if err := p.overlays.HandleAction(ctx, *sig.Overlay); err != nil {
			p.logger.Warn("Overlay action failed.", zap.Error(err))
		}
	default:
		p.logger.Debug("Ignoring page signal.", zap.String("kind", string(sig.Kind)))
	}
}

func (p *Process) handleMessage(ctx context.Context, msg bus.Message) {
	var err error
	switch payload := msg.Payload.(type) {
	case messages.OpenLearnOverlay:
		err = p.overlays.OpenLearn(ctx)
	case messages.OpenOptimalOverlay:
		err = p.overlays.OpenOptimal(ctx, payload.ProblemTitle)
	default:
		p.logger.Debug("Ignoring message.", zap.String("type", string(msg.Type)))
	}
	if err != nil {
		p.logger.Warn("Failed to open overlay.", zap.String("type", string(msg.Type)), zap.Error(err))
	}
}
