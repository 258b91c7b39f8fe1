// internal/page/tab.go
package page

import (
	"context"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/inspector"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codebuddy-cli/internal/config"
)

//go:embed shim.js
var shimScript string

// bindingName is the function the shim calls to report signals.
const bindingName = "__codeBuddySignal"

// Tab is a Page backed by a Chrome tab driven over the DevTools protocol.
type Tab struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.Logger
	timeout  time.Duration
	// targetID is set once the tab exists in the browser.
	targetID target.ID

	mu      sync.RWMutex
	closed  bool
	signals chan Signal
}

// NewTab opens a tab in the browser behind allocCtx, installs the shim and
// navigates to cfg.StartURL when set.
func NewTab(allocCtx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Tab, error) {
	tabCtx, cancel := chromedp.NewContext(allocCtx)

	buffer := cfg.SignalBuffer
	if buffer <= 0 {
		buffer = 64
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	t := &Tab{
		ctx:     tabCtx,
		cancel:  cancel,
		logger:  logger.Named("tab"),
		timeout: timeout,
		signals: make(chan Signal, buffer),
	}

	// Register before the first action so no early event is missed.
	chromedp.ListenTarget(tabCtx, t.handleEvent)

	err := chromedp.Run(tabCtx,
		runtime.AddBinding(bindingName),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := cdppage.AddScriptToEvaluateOnNewDocument(shimScript).Do(ctx)
			if err != nil {
				return fmt.Errorf("failed to inject page shim: %w", err)
			}
			return nil
		}),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to prepare tab: %w", err)
	}

	if cfg.StartURL != "" {
		if err := chromedp.Run(tabCtx, chromedp.Navigate(cfg.StartURL)); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to navigate to %s: %w", cfg.StartURL, err)
		}
	}

	// The current document predates the new-document script; the shim
	// ignores a second install.
	if err := chromedp.Run(tabCtx, chromedp.Evaluate(shimScript, nil)); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to install page shim: %w", err)
	}

	if c := chromedp.FromContext(tabCtx); c != nil && c.Target != nil {
		t.targetID = c.Target.TargetID
		chromedp.ListenBrowser(tabCtx, t.handleBrowserEvent)
	}

	t.logger.Info("Tab ready.", zap.String("start_url", cfg.StartURL))
	return t, nil
}

func (t *Tab) handleEvent(ev interface{}) {
	switch e := ev.(type) {
	case *runtime.EventBindingCalled:
		if e.Name != bindingName {
			return
		}
		var sig Signal
		if err := json.Unmarshal([]byte(e.Payload), &sig); err != nil {
			t.logger.Warn("Could not decode page signal.", zap.Error(err), zap.String("payload", e.Payload))
			return
		}
		t.emit(sig)
	case *cdppage.EventNavigatedWithinDocument:
		t.emit(Signal{Kind: SignalPushState, Location: e.URL})
	case *cdppage.EventLoadEventFired:
		t.emit(Signal{Kind: SignalLoad})
	case *inspector.EventDetached:
		t.gone(string(e.Reason))
	}
}

// handleBrowserEvent watches for the user closing the tab.
func (t *Tab) handleBrowserEvent(ev interface{}) {
	switch e := ev.(type) {
	case *target.EventTargetDestroyed:
		if e.TargetID == t.targetID {
			t.gone("target destroyed")
		}
	case *target.EventDetachedFromTarget:
		if e.TargetID == t.targetID {
			t.gone("detached from target")
		}
	}
}

// gone ends signal delivery once the tab no longer exists. Close cancels the
// chromedp context, which waits for the event goroutine this runs on.
func (t *Tab) gone(reason string) {
	t.logger.Info("Tab went away.", zap.String("reason", reason))
	go func() {
		if err := t.Close(); err != nil {
			t.logger.Warn("Error closing tab.", zap.Error(err))
		}
	}()
}

// emit runs on the CDP event goroutine and must never block it.
func (t *Tab) emit(sig Signal) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}
	select {
	case t.signals <- sig:
	default:
		t.logger.Debug("Signal queue full; dropping signal.", zap.String("kind", string(sig.Kind)))
	}
}

func (t *Tab) run(ctx context.Context, actions ...chromedp.Action) error {
	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	runCtx, cancel := context.WithTimeout(t.ctx, t.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// shimResult is a node snapshot as returned by the shim.
type shimResult struct {
	Found bool   `json:"found"`
	Key   string `json:"key"`
	Text  string `json:"text"`
}

func (t *Tab) Location(ctx context.Context) (string, error) {
	var loc string
	if err := t.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return loc, nil
}

func (t *Tab) QueryOne(ctx context.Context, selector string) (*Node, error) {
	var res shimResult
	if err := t.run(ctx, chromedp.Evaluate(call("queryOne", selector), &res)); err != nil {
		return nil, fmt.Errorf("query %q failed: %w", selector, err)
	}
	if !res.Found {
		return nil, nil
	}
	return &Node{Key: res.Key, Text: res.Text}, nil
}

func (t *Tab) QueryAll(ctx context.Context, selector string) ([]Node, error) {
	var res []shimResult
	if err := t.run(ctx, chromedp.Evaluate(call("queryAll", selector), &res)); err != nil {
		return nil, fmt.Errorf("query %q failed: %w", selector, err)
	}
	nodes := make([]Node, 0, len(res))
	for _, r := range res {
		nodes = append(nodes, Node{Key: r.Key, Text: r.Text})
	}
	return nodes, nil
}

func (t *Tab) QueryAllWithin(ctx context.Context, scope, selector string) ([]Node, error) {
	var res []shimResult
	if err := t.run(ctx, chromedp.Evaluate(call("queryAllWithin", scope, selector), &res)); err != nil {
		return nil, fmt.Errorf("query %q within %q failed: %w", selector, scope, err)
	}
	nodes := make([]Node, 0, len(res))
	for _, r := range res {
		nodes = append(nodes, Node{Key: r.Key, Text: r.Text})
	}
	return nodes, nil
}

func (t *Tab) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := t.run(ctx, chromedp.Evaluate(call("exists", id), &exists)); err != nil {
		return false, fmt.Errorf("lookup of #%s failed: %w", id, err)
	}
	return exists, nil
}

func (t *Tab) Mount(ctx context.Context, id, html string) error {
	var ok bool
	if err := t.run(ctx, chromedp.Evaluate(call("mount", id, html), &ok)); err != nil {
		return fmt.Errorf("mount of #%s failed: %w", id, err)
	}
	return nil
}

func (t *Tab) Unmount(ctx context.Context, id string) error {
	var ok bool
	if err := t.run(ctx, chromedp.Evaluate(call("unmount", id), &ok)); err != nil {
		return fmt.Errorf("unmount of #%s failed: %w", id, err)
	}
	return nil
}

func (t *Tab) Signals() <-chan Signal { return t.signals }

// Capabilities of a CDP tab: in-document navigation is reported by the
// protocol itself, so forward navigation is observable.
func (t *Tab) Capabilities() Capabilities {
	return Capabilities{ForwardNavigation: true}
}

// Close detaches from the tab and ends signal delivery.
func (t *Tab) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.cancel()
	close(t.signals)
	return nil
}

// call builds a shim invocation with JSON-quoted string arguments.
func call(fn string, args ...string) string {
	expr := "window.__codeBuddy." + fn + "("
	for i, a := range args {
		if i > 0 {
			expr += ", "
		}
		quoted, _ := json.Marshal(a)
		expr += string(quoted)
	}
	return expr + ")"
}
