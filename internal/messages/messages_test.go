package messages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		msgType  MessageType
		raw      string
		expected interface{}
	}{
		{"problem start", TypeProblemStart, `{"description":"Two Sum"}`, ProblemStart{Description: "Two Sum"}},
		{"submission result", TypeSubmissionResult, `{"result":"error","details":"Wrong Answer","code":"x=1"}`,
			SubmissionResult{Result: ResultError, Details: "Wrong Answer", Code: "x=1"}},
		{"submission code", TypeSubmissionCode, `{"code":"print(1)"}`, SubmissionCode{Code: "print(1)"}},
		{"learn overlay ignores body", TypeOpenLearnOverlay, `{"whatever":true}`, OpenLearnOverlay{}},
		{"optimal overlay", TypeOpenOptimalOverlay, `{"problemTitle":"Two Sum"}`, OpenOptimalOverlay{ProblemTitle: "Two Sum"}},
		{"empty body yields zero payload", TypeProblemStart, ``, ProblemStart{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode(tc.msgType, []byte(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode("NOPE", nil)
	assert.ErrorContains(t, err, `unknown message type "NOPE"`)

	_, err = Decode(TypeProblemStart, []byte(`{"description":`))
	assert.ErrorContains(t, err, "failed to decode PROBLEM_START payload")
}

func TestSubmissionResult_Succeeded(t *testing.T) {
	assert.True(t, SubmissionResult{Result: ResultSuccess}.Succeeded())
	assert.False(t, SubmissionResult{Result: ResultError}.Succeeded())
}
