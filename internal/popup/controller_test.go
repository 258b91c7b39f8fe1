package popup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	zapobserver "go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/codebuddy-cli/internal/backend"
	"github.com/xkilldash9x/codebuddy-cli/internal/bus"
	"github.com/xkilldash9x/codebuddy-cli/internal/config"
	"github.com/xkilldash9x/codebuddy-cli/internal/messages"
	"github.com/xkilldash9x/codebuddy-cli/internal/store"
)

// MockBackend mocks the popup backend.
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Hint(ctx context.Context, problem string) (string, error) {
	args := m.Called(ctx, problem)
	return args.String(0), args.Error(1)
}

func (m *MockBackend) SimilarProblems(ctx context.Context, problem string) ([]string, error) {
	args := m.Called(ctx, problem)
	similar, _ := args.Get(0).([]string)
	return similar, args.Error(1)
}

func (m *MockBackend) CompaniesAsked(ctx context.Context, problem string) ([]backend.Company, error) {
	args := m.Called(ctx, problem)
	companies, _ := args.Get(0).([]backend.Company)
	return companies, args.Error(1)
}

func (m *MockBackend) ExplainError(ctx context.Context, code, submissionError string) (string, error) {
	args := m.Called(ctx, code, submissionError)
	return args.String(0), args.Error(1)
}

func (m *MockBackend) Analyze(ctx context.Context, code, problem string) (backend.Analysis, error) {
	args := m.Called(ctx, code, problem)
	return args.Get(0).(backend.Analysis), args.Error(1)
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type fixture struct {
	store   *store.Memory
	bus     *bus.Bus
	backend *MockBackend
	ctrl    *Controller
}

func newFixture(t *testing.T, stored map[string]string) *fixture {
	return newFixtureWithLogger(t, stored, zaptest.NewLogger(t))
}

func newFixtureWithLogger(t *testing.T, stored map[string]string, logger *zap.Logger) *fixture {
	t.Helper()
	// Registered first so it runs after the controller is stopped.
	t.Cleanup(func() { goleak.VerifyNone(t) })
	f := &fixture{
		store:   store.NewMemory("https://leetcode.com"),
		bus:     bus.New(logger, 8),
		backend: &MockBackend{},
	}
	for k, v := range stored {
		require.NoError(t, f.store.Set(context.Background(), k, v))
	}
	f.ctrl = New(f.store, f.bus, f.backend, config.NewDefaultConfig().Popup, logger)
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.ctrl.Start(context.Background()))
	t.Cleanup(func() {
		require.NoError(t, f.ctrl.Stop())
		f.bus.Shutdown()
	})
}

func (f *fixture) waitState(t *testing.T, cond func(State) bool) State {
	t.Helper()
	require.Eventually(t, func() bool { return cond(f.ctrl.State()) }, waitFor, tick)
	return f.ctrl.State()
}

func companiesLoaded(s State) bool { return s.Companies.Status == StatusLoaded }

func TestController_HintEndToEnd(t *testing.T) {
	f := newFixture(t, map[string]string{store.KeyProblemDescription: "Two Sum"})
	f.backend.On("CompaniesAsked", mock.Anything, "Two Sum").Return([]backend.Company{{Name: "Google", Year: "2023"}}, nil)
	f.backend.On("Hint", mock.Anything, "Two Sum").Return("Try a hash map.", nil)
	f.start(t)

	s := f.waitState(t, companiesLoaded)
	assert.Equal(t, []string{"Google (2023)"}, View(s).Companies)

	require.NoError(t, f.ctrl.GetHint())
	s = f.waitState(t, func(s State) bool { return s.Hint.Status == StatusLoaded })

	sc := View(s)
	assert.Equal(t, PanelHint, sc.Panel)
	assert.Equal(t, []string{"Try a hash map."}, sc.PanelLines)
	assert.Equal(t, "Two Sum", sc.Problem)
}

func TestController_NoIdentityDisablesActions(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t)

	sc := View(f.ctrl.State())
	assert.Equal(t, MsgNoProblem, sc.Problem)
	for _, ctl := range sc.Controls {
		assert.False(t, ctl.Enabled, "control %s should be disabled", ctl.Action)
	}

	require.NoError(t, f.ctrl.GetHint())
	require.NoError(t, f.ctrl.OptimalSolution())
	// Actions are serialized on the loop; a later one proves the earlier ran.
	require.NoError(t, f.ctrl.SimilarProblems())

	assert.Equal(t, StatusIdle, f.ctrl.State().Hint.Status)
	select {
	case <-f.ctrl.Closed():
		t.Fatal("disabled optimal action closed the popup")
	default:
	}
	f.backend.AssertNotCalled(t, "Hint", mock.Anything, mock.Anything)
	f.backend.AssertNotCalled(t, "CompaniesAsked", mock.Anything, mock.Anything)
}

func TestController_CompaniesFailureShowsPlaceholder(t *testing.T) {
	f := newFixture(t, map[string]string{store.KeyProblemDescription: "Two Sum"})
	f.backend.On("CompaniesAsked", mock.Anything, "Two Sum").Return(nil, errors.New("connection refused"))
	f.start(t)

	s := f.waitState(t, companiesLoaded)
	assert.Equal(t, []string{MsgNoCompanies}, View(s).Companies)
}

func TestController_SimilarProblems(t *testing.T) {
	tests := []struct {
		name     string
		similar  []string
		err      error
		expected []string
		status   Status
	}{
		{
			name:     "truncated to five",
			similar:  []string{"3Sum", "4Sum", "Two Sum II", "Two Sum III", "Subarray Sum", "Two Sum IV"},
			expected: []string{"3Sum", "4Sum", "Two Sum II", "Two Sum III", "Subarray Sum"},
			status:   StatusLoaded,
		},
		{name: "empty list", similar: []string{}, expected: []string{MsgNoSimilar}, status: StatusLoaded},
		{name: "transport error", err: errors.New("timeout"), expected: []string{MsgSimilarError}, status: StatusFailed},
		{
			name:     "reported error shown verbatim",
			err:      &backend.ReportedError{Endpoint: backend.PathSimilarProblems, Message: "problem not indexed"},
			expected: []string{"problem not indexed"},
			status:   StatusFailed,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, map[string]string{store.KeyProblemDescription: "Two Sum"})
			f.backend.On("CompaniesAsked", mock.Anything, "Two Sum").Return([]backend.Company{}, nil)
			f.backend.On("SimilarProblems", mock.Anything, "Two Sum").Return(tc.similar, tc.err)
			f.start(t)

			require.NoError(t, f.ctrl.SimilarProblems())
			s := f.waitState(t, func(s State) bool { return s.Similar.Status == tc.status })
			sc := View(s)
			assert.Equal(t, PanelSimilar, sc.Panel)
			assert.Equal(t, tc.expected, sc.PanelLines)
		})
	}
}

func TestController_ReportedHintErrorShownVerbatim(t *testing.T) {
	f := newFixture(t, map[string]string{store.KeyProblemDescription: "Two Sum"})
	f.backend.On("CompaniesAsked", mock.Anything, "Two Sum").Return([]backend.Company{}, nil)
	f.backend.On("Hint", mock.Anything, "Two Sum").
		Return("", &backend.ReportedError{Endpoint: backend.PathHint, Message: "quota exceeded"}).Once()
	f.backend.On("Hint", mock.Anything, "Two Sum").Return("", errors.New("dial tcp: refused")).Once()
	f.start(t)

	require.NoError(t, f.ctrl.GetHint())
	s := f.waitState(t, func(s State) bool { return s.Hint.Status == StatusFailed })
	assert.Equal(t, []string{"quota exceeded"}, View(s).PanelLines)

	// Failures leave the action usable for a manual retry.
	require.NoError(t, f.ctrl.GetHint())
	s = f.waitState(t, func(s State) bool { return s.Hint.Reason == MsgHintError })
	assert.True(t, s.Enabled(ActionHint))
}

func TestController_PanelFollowsLastAction(t *testing.T) {
	f := newFixture(t, map[string]string{store.KeyProblemDescription: "Two Sum"})
	f.backend.On("CompaniesAsked", mock.Anything, "Two Sum").Return([]backend.Company{}, nil)
	f.backend.On("Hint", mock.Anything, "Two Sum").Return("", nil)
	f.backend.On("SimilarProblems", mock.Anything, "Two Sum").Return([]string{"3Sum"}, nil)
	f.start(t)

	require.NoError(t, f.ctrl.GetHint())
	f.waitState(t, func(s State) bool { return s.Hint.Status == StatusLoaded })
	require.NoError(t, f.ctrl.SimilarProblems())
	s := f.waitState(t, func(s State) bool { return s.Similar.Status == StatusLoaded })

	assert.Equal(t, PanelSimilar, s.Panel)
	assert.Equal(t, MsgNoHint, s.Hint.Value, "hint state is kept while hidden")
	assert.Equal(t, []string{"3Sum"}, View(s).PanelLines)
}

func TestController_StaleCompaniesResultDiscarded(t *testing.T) {
	core, logs := zapobserver.New(zapcore.DebugLevel)
	f := newFixtureWithLogger(t, map[string]string{store.KeyProblemDescription: "Two Sum"}, zap.New(core))

	release := make(chan struct{})
	f.backend.On("CompaniesAsked", mock.Anything, "Two Sum").
		Run(func(mock.Arguments) { <-release }).
		Return([]backend.Company{{Name: "Stale", Year: "2020"}}, nil)
	f.backend.On("CompaniesAsked", mock.Anything, "3Sum").Return([]backend.Company{{Name: "Meta", Year: "2024"}}, nil)
	f.start(t)

	ctx := context.Background()
	require.NoError(t, f.bus.Post(ctx, messages.TypeProblemStart, messages.ProblemStart{Description: "3Sum"}))
	s := f.waitState(t, func(s State) bool { return s.Identity == "3Sum" && companiesLoaded(s) })
	assert.Equal(t, []string{"Meta (2024)"}, View(s).Companies)

	close(release)
	require.Eventually(t, func() bool {
		return logs.FilterMessage("Discarding stale result.").Len() == 1
	}, waitFor, tick)
	assert.Equal(t, []string{"Meta (2024)"}, View(f.ctrl.State()).Companies)
}

func TestController_IdentityChangeResetsRequests(t *testing.T) {
	f := newFixture(t, map[string]string{store.KeyProblemDescription: "Two Sum"})
	f.backend.On("CompaniesAsked", mock.Anything, mock.Anything).Return([]backend.Company{}, nil)
	f.backend.On("Hint", mock.Anything, "Two Sum").Return("Use a map.", nil)
	f.start(t)

	require.NoError(t, f.ctrl.GetHint())
	f.waitState(t, func(s State) bool { return s.Hint.Status == StatusLoaded })

	require.NoError(t, f.bus.Post(context.Background(), messages.TypeProblemStart, messages.ProblemStart{Description: "3Sum"}))
	s := f.waitState(t, func(s State) bool { return s.Identity == "3Sum" })
	assert.Equal(t, StatusIdle, s.Hint.Status)
	assert.Equal(t, PanelNone, s.Panel)

	// The same identity again is not a change.
	require.NoError(t, f.bus.Post(context.Background(), messages.TypeProblemStart, messages.ProblemStart{Description: "3Sum"}))
	f.waitState(t, companiesLoaded)
	f.backend.AssertNumberOfCalls(t, "CompaniesAsked", 2)
}

func TestController_DelegatesOverlays(t *testing.T) {
	tests := []struct {
		name     string
		action   Action
		msgType  messages.MessageType
		expected interface{}
	}{
		{"learn", ActionLearn, messages.TypeOpenLearnOverlay, messages.OpenLearnOverlay{}},
		{"optimal", ActionOptimal, messages.TypeOpenOptimalOverlay, messages.OpenOptimalOverlay{ProblemTitle: "Two Sum"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, map[string]string{store.KeyProblemDescription: "Two Sum"})
			f.backend.On("CompaniesAsked", mock.Anything, "Two Sum").Return([]backend.Company{}, nil)
			opens, unsubscribe := f.bus.Subscribe(tc.msgType)
			defer unsubscribe()
			f.start(t)

			require.NoError(t, f.ctrl.Dispatch(tc.action))
			select {
			case msg := <-opens:
				assert.Equal(t, tc.expected, msg.Payload)
			case <-time.After(waitFor):
				t.Fatal("overlay request was not posted")
			}
			select {
			case <-f.ctrl.Closed():
			case <-time.After(waitFor):
				t.Fatal("popup did not close itself")
			}
		})
	}
}

func TestController_ExplainErrorAndAnalyze(t *testing.T) {
	f := newFixture(t, map[string]string{
		store.KeyProblemDescription: "Two Sum",
		store.KeyUserCode:           "return []",
	})
	f.backend.On("CompaniesAsked", mock.Anything, "Two Sum").Return([]backend.Company{}, nil)
	f.backend.On("ExplainError", mock.Anything, "return []", "Wrong Answer").Return("You return an empty list.\nReturn the indices.", nil)
	f.backend.On("Analyze", mock.Anything, "return []", "Two Sum").Return(backend.Analysis{Text: "O(1), but wrong."}, nil)
	f.start(t)

	s := f.waitState(t, companiesLoaded)
	assert.False(t, s.Enabled(ActionExplain), "no failed submission yet")

	require.NoError(t, f.bus.Post(context.Background(), messages.TypeSubmissionResult, messages.SubmissionResult{
		Result: messages.ResultError, Details: "Wrong Answer", Code: "return []",
	}))
	f.waitState(t, func(s State) bool { return s.Enabled(ActionExplain) })

	require.NoError(t, f.ctrl.ExplainError())
	s = f.waitState(t, func(s State) bool { return s.Explain.Status == StatusLoaded })
	sc := View(s)
	assert.Equal(t, PanelExplain, sc.Panel)
	assert.Equal(t, []string{"You return an empty list.", "Return the indices."}, sc.PanelLines)

	require.NoError(t, f.ctrl.AnalyzeCode())
	s = f.waitState(t, func(s State) bool { return s.Analysis.Status == StatusLoaded })
	assert.Equal(t, []string{"O(1), but wrong."}, View(s).PanelLines)

	require.NoError(t, f.bus.Post(context.Background(), messages.TypeSubmissionResult, messages.SubmissionResult{Result: messages.ResultSuccess}))
	f.waitState(t, func(s State) bool { return s.SubmissionError == "" })
}

func TestController_Lifecycle(t *testing.T) {
	f := newFixture(t, nil)

	assert.ErrorIs(t, f.ctrl.GetHint(), ErrNotRunning)
	require.NoError(t, f.ctrl.Start(context.Background()))
	assert.ErrorIs(t, f.ctrl.Start(context.Background()), ErrAlreadyStarted)
	assert.Equal(t, 1, f.bus.SubscriberCount(messages.TypeProblemStart))

	require.NoError(t, f.ctrl.Stop())
	assert.Equal(t, 0, f.bus.SubscriberCount(messages.TypeProblemStart))
	assert.ErrorIs(t, f.ctrl.GetHint(), ErrNotRunning)
	f.bus.Shutdown()
}
