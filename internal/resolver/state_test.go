package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPipelineRun_ForwardTransitions(t *testing.T) {
	run := &pipelineRun{state: StateReceived}
	for _, s := range []State{StateNormalized, StateEmbedded, StateRetrieved, StateContextBuilt, StateGenerated, StateDone} {
		run.advance(s)
		assert.Equal(t, s, run.state)
	}
	assert.True(t, run.state.Terminal())
}

func TestPipelineRun_IllegalTransitionPanics(t *testing.T) {
	run := &pipelineRun{state: StateReceived}
	assert.Panics(t, func() { run.advance(StateRetrieved) })

	done := &pipelineRun{state: StateDone}
	assert.Panics(t, func() { done.advance(StateNormalized) })
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		want    Mode
		topK    int
		wantErr string
	}{
		{"text only", Request{LogText: "  boom  "}, ModeAdHoc, 5, ""},
		{"explicit top k", Request{LogText: "boom", TopK: 20}, ModeAdHoc, 20, ""},
		{"neither", Request{}, "", 0, "one of log_id or log_text is required"},
		{"whitespace text", Request{LogText: " \n\t"}, "", 0, "one of log_id or log_text is required"},
		{"top k too large", Request{LogText: "boom", TopK: 21}, "", 0, "top_k must be between 1 and 20"},
		{"negative top k", Request{LogText: "boom", TopK: -1}, "", 0, "top_k"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := tt.req.validate(5, 20)
			if tt.wantErr != "" {
				assert.ErrorIs(t, err, ErrValidation)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, v.mode)
			assert.Equal(t, tt.topK, v.topK)
			assert.Equal(t, "boom", v.text)
		})
	}
}
