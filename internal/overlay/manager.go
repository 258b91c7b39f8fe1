// internal/overlay/manager.go
package overlay

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/codebuddy-cli/internal/backend"
	"github.com/xkilldash9x/codebuddy-cli/internal/config"
	"github.com/xkilldash9x/codebuddy-cli/internal/page"
	"github.com/xkilldash9x/codebuddy-cli/internal/store"
)

// Overlay control actions.
const (
	ActionClose  = "close"
	ActionSelect = "select"
)

// Backend is the subset of the backend client the overlays use.
type Backend interface {
	YouTubeSearch(ctx context.Context, query string) (string, error)
	OptimalCode(ctx context.Context, problem string) (backend.SolutionBundle, error)
}

// Runner executes fn off the owning loop and hands its Result back to the
// loop, where it must be passed to Manager.Apply.
type Runner interface {
	Go(fn func(ctx context.Context) Result)
}

// Kind distinguishes the two overlays.
type Kind string

const (
	KindLearn   Kind = "learn"
	KindOptimal Kind = "optimal"
)

// Result is the outcome of an overlay's backend request.
type Result struct {
	Kind     Kind
	Instance uint64
	VideoID  string
	Bundle   backend.SolutionBundle
	Err      error
}

type learnInstance struct {
	id    uint64
	state LearnState
}

type optimalInstance struct {
	id    uint64
	state OptimalState
}

// Manager owns the overlay instances of one page. Like the observer it is
// driven from a single loop goroutine.
type Manager struct {
	page    page.Page
	store   store.Store
	backend Backend
	runner  Runner
	cfg     config.OverlayConfig
	site    string
	logger  *zap.Logger

	nextID  uint64
	learn   *learnInstance
	optimal *optimalInstance
}

// NewManager creates a manager. site prefixes the video search query.
func NewManager(p page.Page, s store.Store, b Backend, r Runner, cfg config.OverlayConfig, site string, logger *zap.Logger) *Manager {
	return &Manager{
		page:    p,
		store:   s,
		backend: b,
		runner:  r,
		cfg:     cfg,
		site:    site,
		logger:  logger.Named("overlay"),
	}
}

// LearnQuery is the video search query for a problem title.
func LearnQuery(site, title string) string {
	return fmt.Sprintf("%s %s solution", site, title)
}

// OpenLearn opens the learn overlay unless it is already on the page.
func (m *Manager) OpenLearn(ctx context.Context) error {
	open, err := m.page.Exists(ctx, m.cfg.LearnID)
	if err != nil {
		return fmt.Errorf("failed to check learn overlay: %w", err)
	}
	if open {
		m.logger.Debug("Learn overlay already open.")
		return nil
	}

	m.nextID++
	inst := &learnInstance{id: m.nextID}
	m.learn = inst

	title, _, err := m.store.Get(ctx, store.KeyProblemDescription)
	if err != nil {
		m.logger.Warn("Could not read problem identity.", zap.Error(err))
	}
	if strings.TrimSpace(title) == "" {
		inst.state = LearnState{Phase: LearnNoProblem, Message: MsgNoProblem}
		return m.mountLearn(ctx)
	}

	inst.state = LearnState{Phase: LearnLoading}
	if err := m.mountLearn(ctx); err != nil {
		return err
	}

	id, query := inst.id, LearnQuery(m.site, title)
	m.runner.Go(func(ctx context.Context) Result {
		videoID, err := m.backend.YouTubeSearch(ctx, query)
		return Result{Kind: KindLearn, Instance: id, VideoID: videoID, Err: err}
	})
	return nil
}

// OpenOptimal opens the solution overlay for title unless it is already on
// the page.
func (m *Manager) OpenOptimal(ctx context.Context, title string) error {
	open, err := m.page.Exists(ctx, m.cfg.OptimalID)
	if err != nil {
		return fmt.Errorf("failed to check solution overlay: %w", err)
	}
	if open {
		m.logger.Debug("Solution overlay already open.")
		return nil
	}

	m.nextID++
	inst := &optimalInstance{id: m.nextID}
	m.optimal = inst

	if strings.TrimSpace(title) == "" {
		inst.state = OptimalState{Phase: OptimalFetchError, Message: MsgNoProblem}
		return m.mountOptimal(ctx)
	}

	inst.state = OptimalState{Phase: OptimalLoading, Title: title}
	if err := m.mountOptimal(ctx); err != nil {
		return err
	}

	id := inst.id
	m.runner.Go(func(ctx context.Context) Result {
		bundle, err := m.backend.OptimalCode(ctx, title)
		return Result{Kind: KindOptimal, Instance: id, Bundle: bundle, Err: err}
	})
	return nil
}

// Apply commits a backend result, unless the instance it belongs to was
// closed or replaced in the meantime.
func (m *Manager) Apply(ctx context.Context, r Result) error {
	switch r.Kind {
	case KindLearn:
		if m.learn == nil || m.learn.id != r.Instance || !m.stillMounted(ctx, m.cfg.LearnID) {
			m.logger.Debug("Discarding stale learn result.", zap.Uint64("instance", r.Instance))
			return nil
		}
		m.learn.state = m.learnOutcome(r)
		return m.mountLearn(ctx)
	case KindOptimal:
		if m.optimal == nil || m.optimal.id != r.Instance || !m.stillMounted(ctx, m.cfg.OptimalID) {
			m.logger.Debug("Discarding stale solution result.", zap.Uint64("instance", r.Instance))
			return nil
		}
		m.optimal.state = optimalOutcome(m.optimal.state, r)
		return m.mountOptimal(ctx)
	}
	return fmt.Errorf("unknown overlay result kind %q", r.Kind)
}

func (m *Manager) learnOutcome(r Result) LearnState {
	if r.Err != nil {
		if re, ok := backend.IsReported(r.Err); ok {
			return LearnState{Phase: LearnNotFound, Message: re.Message}
		}
		m.logger.Warn("Video search failed.", zap.Error(r.Err))
		return LearnState{Phase: LearnFetchError, Message: MsgVideoError}
	}
	if r.VideoID == "" {
		return LearnState{Phase: LearnNotFound, Message: MsgNoVideo}
	}
	return LearnState{Phase: LearnVideoShown, EmbedURL: m.cfg.EmbedBaseURL + url.PathEscape(r.VideoID)}
}

func optimalOutcome(prev OptimalState, r Result) OptimalState {
	if r.Err != nil {
		msg := MsgSolutionError
		if re, ok := backend.IsReported(r.Err); ok && re.Message != "" {
			msg = re.Message
		}
		return OptimalState{Phase: OptimalFetchError, Title: prev.Title, Message: msg}
	}
	return OptimalState{
		Phase:  OptimalSolutionShown,
		Title:  prev.Title,
		Bundle: r.Bundle,
		Tabs:   DefaultTabs(),
	}
}

// HandleAction routes a click on an overlay control.
func (m *Manager) HandleAction(ctx context.Context, a page.OverlayAction) error {
	switch a.Action {
	case ActionClose:
		return m.close(ctx, a.OverlayID)
	case ActionSelect:
		if a.OverlayID != m.cfg.OptimalID || m.optimal == nil {
			return nil
		}
		variant, ok := backend.ParseVariant(a.Variant)
		if !ok {
			return fmt.Errorf("unknown solution variant %q", a.Variant)
		}
		lang, ok := backend.ParseLanguage(a.Language)
		if !ok {
			return fmt.Errorf("unknown language %q", a.Language)
		}
		m.optimal.state = m.optimal.state.Select(variant, lang)
		return m.mountOptimal(ctx)
	}
	m.logger.Debug("Ignoring unknown overlay action.", zap.String("action", a.Action))
	return nil
}

func (m *Manager) close(ctx context.Context, id string) error {
	switch id {
	case m.cfg.LearnID:
		m.learn = nil
	case m.cfg.OptimalID:
		m.optimal = nil
	default:
		return nil
	}
	if err := m.page.Unmount(ctx, id); err != nil {
		return fmt.Errorf("failed to close overlay %s: %w", id, err)
	}
	return nil
}

// LearnState returns the current learn overlay state, if one is open.
func (m *Manager) LearnState() (LearnState, bool) {
	if m.learn == nil {
		return LearnState{}, false
	}
	return m.learn.state, true
}

// OptimalState returns the current solution overlay state, if one is open.
func (m *Manager) OptimalState() (OptimalState, bool) {
	if m.optimal == nil {
		return OptimalState{}, false
	}
	return m.optimal.state, true
}

// stillMounted reports whether the overlay element survived; the host page
// may have replaced the body since the request was issued.
func (m *Manager) stillMounted(ctx context.Context, id string) bool {
	ok, err := m.page.Exists(ctx, id)
	if err != nil {
		m.logger.Debug("Overlay lookup failed.", zap.String("id", id), zap.Error(err))
		return false
	}
	return ok
}

func (m *Manager) mountLearn(ctx context.Context) error {
	if err := m.page.Mount(ctx, m.cfg.LearnID, RenderLearn(m.learn.state)); err != nil {
		return fmt.Errorf("failed to render learn overlay: %w", err)
	}
	return nil
}

func (m *Manager) mountOptimal(ctx context.Context) error {
	if err := m.page.Mount(ctx, m.cfg.OptimalID, RenderOptimal(m.optimal.state)); err != nil {
		return fmt.Errorf("failed to render solution overlay: %w", err)
	}
	return nil
}
