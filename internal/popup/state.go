// internal/popup/state.go
package popup

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/codebuddy-cli/internal/backend"
)

// Placeholder texts shown in place of results.
const (
	MsgNoProblem     = "No problem detected"
	MsgLoading       = "Loading..."
	MsgNoHint        = "[No hint available]"
	MsgHintError     = "[Error fetching hint]"
	MsgNoSimilar     = "No similar problems found."
	MsgSimilarError  = "[Error fetching similar problems]"
	MsgNoCompanies   = "No company data found."
	MsgNoExplanation = "[No explanation available]"
	MsgExplainError  = "[Error explaining submission]"
	MsgNoAnalysis    = "[No analysis available]"
	MsgAnalysisError = "[Error analyzing code]"
)

// Status is the lifecycle position of one request.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusLoaded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	case StatusFailed:
		return "failed"
	default:
		return "idle"
	}
}

// RequestState tracks one independent backend request. Reason holds the
// user-visible text when Status is StatusFailed.
type RequestState[T any] struct {
	Status Status
	Value  T
	Reason string
}

// Loading reports whether the request is in flight.
func (r RequestState[T]) Loading() bool { return r.Status == StatusLoading }

// Panel names the result panel chosen by the last action.
type Panel string

const (
	PanelNone     Panel = ""
	PanelHint     Panel = "hint"
	PanelSimilar  Panel = "similar"
	PanelExplain  Panel = "explain"
	PanelAnalysis Panel = "analysis"
)

// Action identifies a popup control.
type Action string

const (
	ActionHint     Action = "hint"
	ActionSimilar  Action = "similar"
	ActionLearn    Action = "learn"
	ActionOptimal  Action = "optimal"
	ActionExplain  Action = "explain"
	ActionAnalysis Action = "analyze"
)

// State is a snapshot of everything the popup shows.
type State struct {
	Identity string
	// SubmissionError is the last recorded failing submission, if any.
	SubmissionError string

	Hint      RequestState[string]
	Similar   RequestState[[]string]
	Companies RequestState[[]backend.Company]
	Explain   RequestState[string]
	Analysis  RequestState[string]

	Panel Panel
}

// Enabled reports whether a control can be used in s.
func (s State) Enabled(a Action) bool {
	if s.Identity == "" {
		return false
	}
	switch a {
	case ActionHint:
		return !s.Hint.Loading()
	case ActionSimilar:
		return !s.Similar.Loading()
	case ActionExplain:
		return s.SubmissionError != "" && !s.Explain.Loading()
	case ActionAnalysis:
		return !s.Analysis.Loading()
	case ActionLearn, ActionOptimal:
		return true
	}
	return false
}

// Control is one rendered button.
type Control struct {
	Action  Action
	Key     string
	Label   string
	Enabled bool
}

// Screen is the text-level rendering of a State.
type Screen struct {
	Problem    string
	Controls   []Control
	Panel      Panel
	PanelTitle string
	PanelLines []string
	Companies  []string
}

// View derives the user-visible strings for s.
func View(s State) Screen {
	sc := Screen{
		Problem: s.Identity,
		Panel:   s.Panel,
	}
	if sc.Problem == "" {
		sc.Problem = MsgNoProblem
	}

	sc.Controls = []Control{
		{ActionHint, "h", busyLabel("Get Hint", s.Hint.Loading()), s.Enabled(ActionHint)},
		{ActionLearn, "l", "Learn", s.Enabled(ActionLearn)},
		{ActionSimilar, "s", busyLabel("Similar Problems", s.Similar.Loading()), s.Enabled(ActionSimilar)},
		{ActionOptimal, "o", "Optimal Solution", s.Enabled(ActionOptimal)},
		{ActionExplain, "e", busyLabel("Explain Error", s.Explain.Loading()), s.Enabled(ActionExplain)},
		{ActionAnalysis, "a", busyLabel("Analyze Code", s.Analysis.Loading()), s.Enabled(ActionAnalysis)},
	}

	switch s.Panel {
	case PanelHint:
		sc.PanelTitle = "Hint"
		sc.PanelLines = textLines(s.Hint)
	case PanelSimilar:
		sc.PanelTitle = "Similar Problems"
		switch s.Similar.Status {
		case StatusLoading:
			sc.PanelLines = []string{MsgLoading}
		case StatusFailed:
			sc.PanelLines = []string{s.Similar.Reason}
		case StatusLoaded:
			if len(s.Similar.Value) == 0 {
				sc.PanelLines = []string{MsgNoSimilar}
			} else {
				sc.PanelLines = append([]string(nil), s.Similar.Value...)
			}
		}
	case PanelExplain:
		sc.PanelTitle = "Submission Error"
		sc.PanelLines = textLines(s.Explain)
	case PanelAnalysis:
		sc.PanelTitle = "Code Analysis"
		sc.PanelLines = textLines(s.Analysis)
	}

	switch s.Companies.Status {
	case StatusLoading:
		sc.Companies = []string{MsgLoading}
	default:
		if len(s.Companies.Value) == 0 {
			sc.Companies = []string{MsgNoCompanies}
			break
		}
		for _, c := range s.Companies.Value {
			sc.Companies = append(sc.Companies, fmt.Sprintf("%s (%s)", c.Name, c.Year))
		}
	}
	return sc
}

func busyLabel(label string, busy bool) string {
	if busy {
		return MsgLoading
	}
	return label
}

func textLines(r RequestState[string]) []string {
	switch r.Status {
	case StatusLoading:
		return []string{MsgLoading}
	case StatusFailed:
		return []string{r.Reason}
	case StatusLoaded:
		return strings.Split(r.Value, "\n")
	}
	return nil
}
