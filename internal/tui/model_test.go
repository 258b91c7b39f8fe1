package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/codebuddy-cli/internal/backend"
	"github.com/xkilldash9x/codebuddy-cli/internal/popup"
)

type fakeController struct {
	state      popup.State
	changes    chan struct{}
	closed     chan struct{}
	dispatched []popup.Action
	err        error
}

func newFakeController(state popup.State) *fakeController {
	return &fakeController{state: state, changes: make(chan struct{}, 1), closed: make(chan struct{})}
}

func (f *fakeController) State() popup.State { return f.state }
func (f *fakeController) Changes() <-chan struct{} { return f.changes }
func (f *fakeController) Closed() <-chan struct{} { return f.closed }
func (f *fakeController) Dispatch(a popup.Action) error {
	f.dispatched = append(f.dispatched, a)
	return f.err
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func isQuit(t *testing.T, cmd tea.Cmd) bool {
	t.Helper()
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestModel_KeysDispatchEnabledActions(t *testing.T) {
	ctrl := newFakeController(popup.State{Identity: "Two Sum"})
	m := newModel(context.Background(), ctrl)

	for _, k := range []string{"h", "s", "l", "o", "a", "e", "x"} {
		_, cmd := m.Update(key(k))
		assert.False(t, isQuit(t, cmd))
	}
	// Explain stays disabled without a recorded failure; x is unbound.
	assert.Equal(t, []popup.Action{
		popup.ActionHint, popup.ActionSimilar, popup.ActionLearn, popup.ActionOptimal, popup.ActionAnalysis,
	}, ctrl.dispatched)
}

func TestModel_DisabledWithoutProblem(t *testing.T) {
	ctrl := newFakeController(popup.State{})
	m := newModel(context.Background(), ctrl)

	m.Update(key("h"))
	m.Update(key("o"))
	assert.Empty(t, ctrl.dispatched)
	assert.Contains(t, m.View(), popup.MsgNoProblem)
}

func TestModel_Quit(t *testing.T) {
	m := newModel(context.Background(), newFakeController(popup.State{}))

	_, cmd := m.Update(key("q"))
	assert.True(t, isQuit(t, cmd))
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.True(t, isQuit(t, cmd))
	_, cmd = m.Update(closedMsg{})
	assert.True(t, isQuit(t, cmd))
}

func TestModel_StateChangeRefreshesView(t *testing.T) {
	ctrl := newFakeController(popup.State{Identity: "Two Sum"})
	m := newModel(context.Background(), ctrl)

	ctrl.state = popup.State{
		Identity:  "Two Sum",
		Hint:      popup.RequestState[string]{Status: popup.StatusLoaded, Value: "Try a hash map."},
		Companies: popup.RequestState[[]backend.Company]{Status: popup.StatusLoaded, Value: []backend.Company{{Name: "Google", Year: "2023"}}},
		Panel:     popup.PanelHint,
	}
	_, cmd := m.Update(stateChangedMsg{})
	require.NotNil(t, cmd, "model keeps listening for changes")

	view := m.View()
	assert.Contains(t, view, "Try a hash map.")
	assert.Contains(t, view, "Google (2023)")
}

func TestModel_DispatchErrorShown(t *testing.T) {
	ctrl := newFakeController(popup.State{Identity: "Two Sum"})
	ctrl.err = errors.New("popup is not running")
	m := newModel(context.Background(), ctrl)

	m.Update(key("h"))
	assert.Contains(t, m.View(), "popup is not running")
}

func TestModel_WaitingCommandsEndWithProgram(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ctrl := newFakeController(popup.State{Identity: "Two Sum"})
	m := newModel(ctx, ctrl)

	_, change := m.Update(stateChangedMsg{})
	require.NotNil(t, change)

	results := make(chan tea.Msg, 2)
	go func() { results <- change() }()
	go func() { results <- waitForClose(m.ctx, ctrl)() }()

	// The controller stays silent; only the program ending releases them.
	cancel()
	for i := 0; i < 2; i++ {
		select {
		case msg := <-results:
			assert.Nil(t, msg)
		case <-time.After(time.Second):
			t.Fatal("waiting command outlived the program")
		}
	}
}

func TestModel_WaitForChangeDeliversState(t *testing.T) {
	ctrl := newFakeController(popup.State{})
	ctrl.changes <- struct{}{}

	msg := waitForChange(context.Background(), ctrl)()
	assert.Equal(t, stateChangedMsg{}, msg)
}
