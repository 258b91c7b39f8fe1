// internal/observer/observer.go
package observer

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/codebuddy-cli/internal/config"
	"github.com/xkilldash9x/codebuddy-cli/internal/messages"
	"github.com/xkilldash9x/codebuddy-cli/internal/page"
	"github.com/xkilldash9x/codebuddy-cli/internal/store"
)

// PageKind is the result of classifying a location.
type PageKind int

const (
	PageOther PageKind = iota
	PageProblem
	PageSubmissions
)

func (k PageKind) String() string {
	switch k {
	case PageProblem:
		return "problem"
	case PageSubmissions:
		return "submissions"
	}
	return "other"
}

// Publisher is the part of the message bus the observer needs.
type Publisher interface {
	Post(ctx context.Context, msgType messages.MessageType, payload interface{}) error
}

// Scheduler runs fn after d on the goroutine that owns the observer.
type Scheduler interface {
	After(d time.Duration, fn func(ctx context.Context))
}

// resultKey identifies one observed submission outcome.
type resultKey struct {
	node string
	text string
}

// Observer watches the page for problem identity and submission outcomes.
// It is not safe for concurrent use; every method runs on the owning loop.
type Observer struct {
	page      page.Page
	store     store.Store
	bus       Publisher
	scheduler Scheduler
	cfg       config.ObserverConfig
	logger    *zap.Logger

	kind             PageKind
	mutationsEnabled bool
	lastLocation     string
	lastResult       *resultKey
	// sampleGen invalidates a pending settle-delay sample.
	sampleGen uint64
}

// New creates an observer. Call Initialize to classify the current page.
func New(p page.Page, s store.Store, pub Publisher, scheduler Scheduler, cfg config.ObserverConfig, logger *zap.Logger) *Observer {
	return &Observer{
		page:      p,
		store:     s,
		bus:       pub,
		scheduler: scheduler,
		cfg:       cfg,
		logger:    logger.Named("observer"),
	}
}

// Classify maps a path to a page kind. The problem marker wins when a path
// carries both markers.
func Classify(path string, cfg config.ObserverConfig) PageKind {
	switch {
	case cfg.ProblemPathMarker != "" && strings.Contains(path, cfg.ProblemPathMarker):
		return PageProblem
	case cfg.SubmissionsPathMarker != "" && strings.Contains(path, cfg.SubmissionsPathMarker):
		return PageSubmissions
	}
	return PageOther
}

// Kind is the classification from the last Initialize.
func (o *Observer) Kind() PageKind { return o.kind }

// MutationsEnabled reports whether mutation batches are being processed.
func (o *Observer) MutationsEnabled() bool { return o.mutationsEnabled }

// Initialize classifies the current location and runs the page-kind specific
// setup. It is safe to call repeatedly for the same location.
func (o *Observer) Initialize(ctx context.Context) {
	location, err := o.page.Location(ctx)
	if err != nil {
		o.logger.Warn("Could not read page location; skipping initialization.", zap.Error(err))
		return
	}
	o.lastLocation = location
	// Any sample scheduled by an earlier run is now stale.
	o.sampleGen++

	o.kind = Classify(page.PathOf(location), o.cfg)
	o.logger.Debug("Page classified.", zap.String("location", location), zap.Stringer("kind", o.kind))

	switch o.kind {
	case PageProblem:
		o.mutationsEnabled = true
		o.detectProblem(ctx)
	case PageSubmissions:
		o.mutationsEnabled = false
		gen := o.sampleGen
		o.scheduler.After(o.cfg.SettleDelay, func(ctx context.Context) {
			if gen != o.sampleGen {
				o.logger.Debug("Discarding superseded submission sample.")
				return
			}
			o.SampleSubmissionCode(ctx)
		})
	default:
		o.mutationsEnabled = false
	}
}

func (o *Observer) detectProblem(ctx context.Context) {
	node, err := o.page.QueryOne(ctx, o.cfg.TitleSelector)
	if err != nil {
		o.logger.Warn("Title query failed.", zap.Error(err))
		return
	}
	if node == nil {
		return
	}
	title := strings.TrimSpace(node.Text)
	if title == "" {
		return
	}

	if err := o.store.Set(ctx, store.KeyProblemDescription, title); err != nil {
		o.logger.Warn("Failed to store problem identity.", zap.Error(err))
	}
	o.publish(ctx, messages.TypeProblemStart, messages.ProblemStart{Description: title})
	o.logger.Info("Detected problem.", zap.String("title", title))
}

// HandleMutations processes one mutation batch.
func (o *Observer) HandleMutations(ctx context.Context) {
	if !o.page.Capabilities().ForwardNavigation && o.locationChanged(ctx) {
		// Forward navigation is invisible on this page; the first mutation
		// after it is the earliest point the change can be noticed.
		o.Initialize(ctx)
	}
	if !o.mutationsEnabled {
		return
	}

	node, err := o.page.QueryOne(ctx, o.cfg.ResultSelector)
	if err != nil {
		o.logger.Warn("Result query failed.", zap.Error(err))
		return
	}
	if node == nil {
		return
	}

	key := resultKey{node: node.Key, text: node.Text}
	if o.lastResult != nil && *o.lastResult == key {
		return
	}
	o.lastResult = &key

	details := node.Text
	succeeded := strings.Contains(details, o.cfg.SuccessMarker)
	code := o.userCode(ctx)

	submissionError := details
	result := messages.ResultError
	if succeeded {
		submissionError = ""
		result = messages.ResultSuccess
	}

	if err := o.store.Set(ctx, store.KeyUserCode, code); err != nil {
		o.logger.Warn("Failed to store user code.", zap.Error(err))
	}
	if err := o.store.Set(ctx, store.KeySubmissionError, submissionError); err != nil {
		o.logger.Warn("Failed to store submission error.", zap.Error(err))
	}
	o.publish(ctx, messages.TypeSubmissionResult, messages.SubmissionResult{
		Result:  result,
		Details: details,
		Code:    code,
	})
	o.logger.Info("Captured submission result.", zap.String("result", result))
}

// userCode returns the text of the first code selector that matches a node.
func (o *Observer) userCode(ctx context.Context) string {
	for _, sel := range o.cfg.CodeSelectors {
		node, err := o.page.QueryOne(ctx, sel)
		if err != nil {
			o.logger.Debug("Code query failed.", zap.String("selector", sel), zap.Error(err))
			continue
		}
		if node != nil {
			return node.Text
		}
	}
	return ""
}

// SampleSubmissionCode reads the rendered code lines of the first editor on
// a submission page.
func (o *Observer) SampleSubmissionCode(ctx context.Context) {
	lines, err := o.page.QueryAllWithin(ctx, o.cfg.CodeContainerSelector, o.cfg.CodeLineSelector)
	if err != nil {
		o.logger.Warn("Code line query failed.", zap.Error(err))
		return
	}
	texts := make([]string, 0, len(lines))
	for _, l := range lines {
		texts = append(texts, l.Text)
	}
	code := strings.Join(texts, "\n")
	if code == "" {
		o.logger.Debug("Could not extract code from submissions page.")
		return
	}

	if err := o.store.Set(ctx, store.KeyUserCode, code); err != nil {
		o.logger.Warn("Failed to store submission code.", zap.Error(err))
	}
	o.publish(ctx, messages.TypeSubmissionCode, messages.SubmissionCode{Code: code})
	o.logger.Info("Extracted submission code.", zap.Int("lines", len(lines)))
}

// HandleNavigation re-initializes on any navigation signal.
func (o *Observer) HandleNavigation(ctx context.Context, sig page.Signal) {
	if !sig.Kind.IsNavigation() {
		return
	}
	o.logger.Debug("Navigation signal.", zap.String("kind", string(sig.Kind)), zap.String("location", sig.Location))
	o.Initialize(ctx)
}

func (o *Observer) locationChanged(ctx context.Context) bool {
	location, err := o.page.Location(ctx)
	if err != nil {
		return false
	}
	return location != o.lastLocation
}

func (o *Observer) publish(ctx context.Context, t messages.MessageType, payload interface{}) {
	if err := o.bus.Post(ctx, t, payload); err != nil {
		o.logger.Debug("Publish failed.", zap.String("type", string(t)), zap.Error(err))
	}
}
