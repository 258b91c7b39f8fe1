// internal/overlay/state.go
package overlay

import (
	"github.com/xkilldash9x/codebuddy-cli/internal/backend"
)

// User-visible messages.
const (
	MsgNoProblem     = "No problem detected."
	MsgNoVideo       = "No video found."
	MsgVideoError    = "Error fetching video."
	MsgSolutionError = "Error fetching solution."
	MsgLoadingVideo  = "Loading video..."
	MsgLoadingSol    = "Loading solution..."
)

// LearnPhase tags the learn overlay state.
type LearnPhase string

const (
	LearnLoading    LearnPhase = "loading"
	LearnVideoShown LearnPhase = "video"
	LearnNotFound   LearnPhase = "not_found"
	LearnFetchError LearnPhase = "fetch_error"
	// LearnNoProblem is entered without any request when no identity is stored.
	LearnNoProblem LearnPhase = "no_problem"
)

// LearnState is everything the learn overlay renders.
type LearnState struct {
	Phase    LearnPhase
	EmbedURL string
	Message  string
}

// OptimalPhase tags the solution overlay state.
type OptimalPhase string

const (
	OptimalLoading       OptimalPhase = "loading"
	OptimalSolutionShown OptimalPhase = "solution"
	OptimalFetchError    OptimalPhase = "fetch_error"
)

// TabSelection holds the selected language of each variant.
type TabSelection map[backend.VariantKind]backend.Language

// DefaultTabs selects python for both variants.
func DefaultTabs() TabSelection {
	return TabSelection{
		backend.VariantOptimal:    backend.LangPython,
		backend.VariantBruteForce: backend.LangPython,
	}
}

// OptimalState is everything the solution overlay renders.
type OptimalState struct {
	Phase   OptimalPhase
	Title   string
	Bundle  backend.SolutionBundle
	Tabs    TabSelection
	Message string
}

// Select returns the state with lang selected for variant. Other variants
// keep their selection. Selection only applies while a solution is shown.
func (s OptimalState) Select(variant backend.VariantKind, lang backend.Language) OptimalState {
	if s.Phase != OptimalSolutionShown {
		return s
	}
	tabs := make(TabSelection, len(s.Tabs)+1)
	for k, v := range s.Tabs {
		tabs[k] = v
	}
	tabs[variant] = lang
	s.Tabs = tabs
	return s
}

// Selected returns the language chosen for variant, python by default.
func (s OptimalState) Selected(variant backend.VariantKind) backend.Language {
	if lang, ok := s.Tabs[variant]; ok {
		return lang
	}
	return backend.LangPython
}
