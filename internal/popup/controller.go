// internal/popup/controller.go
package popup

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/codebuddy-cli/internal/backend"
	"github.com/xkilldash9x/codebuddy-cli/internal/bus"
	"github.com/xkilldash9x/codebuddy-cli/internal/config"
	"github.com/xkilldash9x/codebuddy-cli/internal/messages"
	"github.com/xkilldash9x/codebuddy-cli/internal/store"
)

var (
	// ErrAlreadyStarted is returned by Start on a running controller.
	ErrAlreadyStarted = errors.New("popup already started")
	// ErrNotRunning is returned by actions before Start or after Stop.
	ErrNotRunning = errors.New("popup is not running")
)

// Backend is the subset of the backend client the popup calls.
type Backend interface {
	Hint(ctx context.Context, problem string) (string, error)
	SimilarProblems(ctx context.Context, problem string) ([]string, error)
	CompaniesAsked(ctx context.Context, problem string) ([]backend.Company, error)
	ExplainError(ctx context.Context, code, submissionError string) (string, error)
	Analyze(ctx context.Context, code, problem string) (backend.Analysis, error)
}

// Bus is the part of the message bus the popup needs.
type Bus interface {
	Post(ctx context.Context, msgType messages.MessageType, payload interface{}) error
	Subscribe(msgTypes ...messages.MessageType) (<-chan bus.Message, func())
}

// requestKind names one guarded asynchronous request.
type requestKind int

const (
	kindHint requestKind = iota
	kindSimilar
	kindCompanies
	kindExplain
	kindAnalysis
	numKinds
)

// result carries a finished request back to the loop together with the
// identity and generation it was issued for.
type result struct {
	kind     requestKind
	identity string
	gen      uint64
	apply    func(s *State)
}

// Controller is the popup context. State changes happen on a single loop
// goroutine; State and Changes may be used from anywhere.
type Controller struct {
	store   store.Store
	bus     Bus
	backend Backend
	cfg     config.PopupConfig
	logger  *zap.Logger

	// Loop-owned.
	state State
	gens  [numKinds]uint64

	actions chan func(context.Context)
	results chan result

	snapMu   sync.RWMutex
	snapshot State
	changes  chan struct{}

	closeOnce sync.Once
	closed    chan struct{}

	mu          sync.Mutex
	group       *errgroup.Group
	groupCtx    context.Context
	cancel      context.CancelFunc
	unsubscribe func()
}

// New creates a popup controller.
func New(s store.Store, b Bus, client Backend, cfg config.PopupConfig, logger *zap.Logger) *Controller {
	if cfg.SimilarLimit <= 0 {
		cfg.SimilarLimit = 5
	}
	return &Controller{
		store:   s,
		bus:     b,
		backend: client,
		cfg:     cfg,
		logger:  logger.Named("popup"),
		actions: make(chan func(context.Context)),
		results: make(chan result),
		changes: make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
}

// Start mounts the popup: it reads the stored problem and submission state,
// subscribes to live updates and starts the loop.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.group != nil {
		return ErrAlreadyStarted
	}

	identity, _, err := c.store.Get(ctx, store.KeyProblemDescription)
	if err != nil {
		c.logger.Warn("Could not read stored problem.", zap.Error(err))
	}
	submissionError, _, err := c.store.Get(ctx, store.KeySubmissionError)
	if err != nil {
		c.logger.Warn("Could not read stored submission error.", zap.Error(err))
	}

	msgs, unsubscribe := c.bus.Subscribe(messages.TypeProblemStart, messages.TypeSubmissionResult)

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	c.group, c.groupCtx, c.cancel, c.unsubscribe = g, gctx, cancel, unsubscribe

	c.state = State{SubmissionError: submissionError}
	c.setIdentity(gctx, identity)
	c.publishState()

	g.Go(func() error { return c.loop(gctx, msgs) })
	c.logger.Info("Popup started.", zap.String("problem", identity))
	return nil
}

// Stop unmounts the popup. In-flight requests are abandoned.
func (c *Controller) Stop() error {
	c.mu.Lock()
	g, cancel, unsubscribe := c.group, c.cancel, c.unsubscribe
	c.mu.Unlock()
	if g == nil {
		return nil
	}
	cancel()
	err := g.Wait()
	unsubscribe()
	c.logger.Info("Popup stopped.")
	return err
}

// State returns the latest snapshot.
func (c *Controller) State() State {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snapshot
}

// Changes receives a value after the state changes. Notifications coalesce.
func (c *Controller) Changes() <-chan struct{} { return c.changes }

// Closed is closed once the popup asks to be dismissed.
func (c *Controller) Closed() <-chan struct{} { return c.closed }

// GetHint requests a hint for the current problem.
func (c *Controller) GetHint() error {
	return c.do(func(ctx context.Context) {
		if !c.state.Enabled(ActionHint) {
			return
		}
		c.state.Panel = PanelHint
		c.state.Hint = RequestState[string]{Status: StatusLoading}
		identity := c.state.Identity
		c.request(kindHint, func(ctx context.Context) func(*State) {
			hint, err := c.backend.Hint(ctx, identity)
			next := textOutcome(hint, err, MsgNoHint, MsgHintError)
			if err != nil {
				c.logger.Warn("Hint request failed.", zap.Error(err))
			}
			return func(s *State) { s.Hint = next }
		})
	})
}

// SimilarProblems requests related problems for the current problem.
func (c *Controller) SimilarProblems() error {
	return c.do(func(ctx context.Context) {
		if !c.state.Enabled(ActionSimilar) {
			return
		}
		c.state.Panel = PanelSimilar
		c.state.Similar = RequestState[[]string]{Status: StatusLoading}
		identity, limit := c.state.Identity, c.cfg.SimilarLimit
		c.request(kindSimilar, func(ctx context.Context) func(*State) {
			similar, err := c.backend.SimilarProblems(ctx, identity)
			next := RequestState[[]string]{Status: StatusLoaded}
			if err != nil {
				c.logger.Warn("Similar problems request failed.", zap.Error(err))
				next = RequestState[[]string]{Status: StatusFailed, Reason: failureReason(err, MsgSimilarError)}
			} else {
				if len(similar) > limit {
					similar = similar[:limit]
				}
				next.Value = similar
			}
			return func(s *State) { s.Similar = next }
		})
	})
}

// Learn asks the page to open the learn overlay and closes the popup.
func (c *Controller) Learn() error {
	return c.do(func(ctx context.Context) {
		if !c.state.Enabled(ActionLearn) {
			return
		}
		c.post(ctx, messages.TypeOpenLearnOverlay, messages.OpenLearnOverlay{})
		c.close()
	})
}

// OptimalSolution asks the page to open the solution overlay and closes the popup.
func (c *Controller) OptimalSolution() error {
	return c.do(func(ctx context.Context) {
		if !c.state.Enabled(ActionOptimal) {
			return
		}
		c.post(ctx, messages.TypeOpenOptimalOverlay, messages.OpenOptimalOverlay{ProblemTitle: c.state.Identity})
		c.close()
	})
}

// ExplainError asks the backend why the last submission failed.
func (c *Controller) ExplainError() error {
	return c.do(func(ctx context.Context) {
		if !c.state.Enabled(ActionExplain) {
			return
		}
		c.state.Panel = PanelExplain
		c.state.Explain = RequestState[string]{Status: StatusLoading}
		submissionError := c.state.SubmissionError
		c.request(kindExplain, func(ctx context.Context) func(*State) {
			code := c.storedCode(ctx)
			explanation, err := c.backend.ExplainError(ctx, code, submissionError)
			next := textOutcome(explanation, err, MsgNoExplanation, MsgExplainError)
			if err != nil {
				c.logger.Warn("Explain request failed.", zap.Error(err))
			}
			return func(s *State) { s.Explain = next }
		})
	})
}

// AnalyzeCode asks the backend to review the last captured code.
func (c *Controller) AnalyzeCode() error {
	return c.do(func(ctx context.Context) {
		if !c.state.Enabled(ActionAnalysis) {
			return
		}
		c.state.Panel = PanelAnalysis
		c.state.Analysis = RequestState[string]{Status: StatusLoading}
		identity := c.state.Identity
		c.request(kindAnalysis, func(ctx context.Context) func(*State) {
			code := c.storedCode(ctx)
			analysis, err := c.backend.Analyze(ctx, code, identity)
			next := textOutcome(analysis.Text, err, MsgNoAnalysis, MsgAnalysisError)
			if err != nil {
				c.logger.Warn("Analyze request failed.", zap.Error(err))
			}
			return func(s *State) { s.Analysis = next }
		})
	})
}

// Dispatch runs the action bound to a.
func (c *Controller) Dispatch(a Action) error {
	switch a {
	case ActionHint:
		return c.GetHint()
	case ActionSimilar:
		return c.SimilarProblems()
	case ActionLearn:
		return c.Learn()
	case ActionOptimal:
		return c.OptimalSolution()
	case ActionExplain:
		return c.ExplainError()
	case ActionAnalysis:
		return c.AnalyzeCode()
	}
	return nil
}

func (c *Controller) loop(ctx context.Context, msgs <-chan bus.Message) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			c.handleMessage(ctx, msg)
		case fn := <-c.actions:
			fn(ctx)
		case r := <-c.results:
			if r.identity != c.state.Identity || r.gen != c.gens[r.kind] {
				c.logger.Debug("Discarding stale result.", zap.Int("kind", int(r.kind)), zap.String("identity", r.identity))
				continue
			}
			r.apply(&c.state)
		}
		c.publishState()
	}
}

func (c *Controller) handleMessage(ctx context.Context, msg bus.Message) {
	switch payload := msg.Payload.(type) {
	case messages.ProblemStart:
		c.setIdentity(ctx, payload.Description)
	case messages.SubmissionResult:
		if payload.Succeeded() {
			c.state.SubmissionError = ""
		} else {
			c.state.SubmissionError = payload.Details
		}
	}
}

// setIdentity moves the popup to a new problem. Requests for the old
// problem are forgotten and the companies lookup starts for the new one.
func (c *Controller) setIdentity(ctx context.Context, identity string) {
	if identity == c.state.Identity {
		return
	}
	c.logger.Debug("Problem identity changed.", zap.String("from", c.state.Identity), zap.String("to", identity))

	for k := range c.gens {
		c.gens[k]++
	}
	c.state = State{Identity: identity, SubmissionError: c.state.SubmissionError}
	if identity == "" {
		return
	}

	c.state.Companies = RequestState[[]backend.Company]{Status: StatusLoading}
	c.request(kindCompanies, func(ctx context.Context) func(*State) {
		companies, err := c.backend.CompaniesAsked(ctx, identity)
		if err != nil {
			c.logger.Warn("Companies request failed.", zap.Error(err))
			companies = nil
		}
		return func(s *State) {
			s.Companies = RequestState[[]backend.Company]{Status: StatusLoaded, Value: companies}
		}
	})
}

// request runs fetch off the loop and hands its outcome back guarded by the
// current identity and a fresh generation for kind.
func (c *Controller) request(kind requestKind, fetch func(context.Context) func(*State)) {
	c.gens[kind]++
	r := result{kind: kind, identity: c.state.Identity, gen: c.gens[kind]}
	ctx := c.groupCtx
	c.group.Go(func() error {
		r.apply = fetch(ctx)
		select {
		case c.results <- r:
		case <-ctx.Done():
		}
		return nil
	})
}

func (c *Controller) do(fn func(context.Context)) error {
	c.mu.Lock()
	ctx := c.groupCtx
	c.mu.Unlock()
	if ctx == nil {
		return ErrNotRunning
	}
	select {
	case c.actions <- fn:
		return nil
	case <-ctx.Done():
		return ErrNotRunning
	}
}

func (c *Controller) post(ctx context.Context, t messages.MessageType, payload interface{}) {
	if err := c.bus.Post(ctx, t, payload); err != nil {
		c.logger.Warn("Failed to post message.", zap.String("type", string(t)), zap.Error(err))
	}
}

func (c *Controller) close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *Controller) storedCode(ctx context.Context) string {
	code, _, err := c.store.Get(ctx, store.KeyUserCode)
	if err != nil {
		c.logger.Warn("Could not read stored code.", zap.Error(err))
	}
	return code
}

func (c *Controller) publishState() {
	c.snapMu.Lock()
	c.snapshot = c.state
	c.snapMu.Unlock()
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// textOutcome maps a text response to its request state. A backend-reported
// error is shown as sent.
func textOutcome(text string, err error, empty, failed string) RequestState[string] {
	if err != nil {
		return RequestState[string]{Status: StatusFailed, Reason: failureReason(err, failed)}
	}
	if text == "" {
		text = empty
	}
	return RequestState[string]{Status: StatusLoaded, Value: text}
}

// failureReason is the backend's own error text when it reported one, and
// fallback otherwise.
func failureReason(err error, fallback string) string {
	if reported, ok := backend.IsReported(err); ok && reported.Message != "" {
		return reported.Message
	}
	return fallback
}
