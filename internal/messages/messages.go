// internal/messages/messages.go
package messages

import (
	"fmt"

	json "github.com/json-iterator/go"
)

// MessageType tags a message on the bus. Values match the wire names used by
// every context so they can cross process boundaries unchanged.
type MessageType string

const (
	// content script -> popup
	TypeProblemStart MessageType = "PROBLEM_START"
	// content script -> any listener
	TypeSubmissionResult MessageType = "SUBMISSION_RESULT"
	TypeSubmissionCode   MessageType = "SUBMISSION_CODE"
	// popup -> content script
	TypeOpenLearnOverlay   MessageType = "OPEN_LEARN_OVERLAY"
	TypeOpenOptimalOverlay MessageType = "OPEN_OPTIMAL_OVERLAY"
)

// AllTypes lists every known message type.
var AllTypes = []MessageType{
	TypeProblemStart,
	TypeSubmissionResult,
	TypeSubmissionCode,
	TypeOpenLearnOverlay,
	TypeOpenOptimalOverlay,
}

// Submission outcomes carried by SubmissionResult.Result.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// ProblemStart announces the detected problem identity.
type ProblemStart struct {
	Description string `json:"description"`
}

// SubmissionResult reports a captured submission outcome.
type SubmissionResult struct {
	Result  string `json:"result"`
	Details string `json:"details"`
	Code    string `json:"code"`
}

// Succeeded reports whether the outcome was a success.
func (s SubmissionResult) Succeeded() bool { return s.Result == ResultSuccess }

// SubmissionCode carries code sampled from a submissions page.
type SubmissionCode struct {
	Code string `json:"code"`
}

// OpenLearnOverlay asks the page context to open the learn overlay.
type OpenLearnOverlay struct{}

// OpenOptimalOverlay asks the page context to open the solution overlay.
type OpenOptimalOverlay struct {
	ProblemTitle string `json:"problemTitle"`
}

// Decode rebuilds a typed payload from its JSON form.
func Decode(msgType MessageType, raw []byte) (interface{}, error) {
	var target interface{}
	switch msgType {
	case TypeProblemStart:
		target = &ProblemStart{}
	case TypeSubmissionResult:
		target = &SubmissionResult{}
	case TypeSubmissionCode:
		target = &SubmissionCode{}
	case TypeOpenLearnOverlay:
		return OpenLearnOverlay{}, nil
	case TypeOpenOptimalOverlay:
		target = &OpenOptimalOverlay{}
	default:
		return nil, fmt.Errorf("unknown message type %q", msgType)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, target); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", msgType, err)
		}
	}

	switch p := target.(type) {
	case *ProblemStart:
		return *p, nil
	case *SubmissionResult:
		return *p, nil
	case *SubmissionCode:
		return *p, nil
	case *OpenOptimalOverlay:
		return *p, nil
	}
	return nil, fmt.Errorf("unhandled payload for %q", msgType)
}
