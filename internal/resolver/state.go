package resolver

// State is a resolve request's position in the pipeline.
type State string

const (
	StateReceived     State = "RECEIVED"
	StateNormalized   State = "NORMALIZED"
	StateEmbedded     State = "EMBEDDED"
	StateRetrieved    State = "RETRIEVED"
	StateContextBuilt State = "CONTEXT_BUILT"
	StateGenerated    State = "GENERATED"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

// next lists the single forward transition out of each non-terminal state.
// FAILED is reachable from any of them.
var next = map[State]State{
	StateReceived:     StateNormalized,
	StateNormalized:   StateEmbedded,
	StateEmbedded:     StateRetrieved,
	StateRetrieved:    StateContextBuilt,
	StateContextBuilt: StateGenerated,
	StateGenerated:    StateDone,
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// pipelineRun tracks one request through the state machine.
type pipelineRun struct {
	mode  Mode
	state State
}

// advance moves to to, which must be the successor of the current state.
func (r *pipelineRun) advance(to State) {
	if next[r.state] != to {
		panic("resolver: illegal transition " + string(r.state) + " -> " + string(to))
	}
	r.state = to
}
