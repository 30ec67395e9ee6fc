package engine

// State identifies a node of the fixed turn state machine. A turn moves
// through input filtering, optional retrieval, then alternating reasoning and
// tool execution until the model produces final text, which passes the output
// filter before the turn completes. Fallback is reachable from any state.
type State int

const (
	// StateInputFilter runs the safety filter on the raw user query.
	StateInputFilter State = iota
	// StateRetrieval fetches document context for the query.
	StateRetrieval
	// StateReasoning performs one model call.
	StateReasoning
	// StateToolExec executes the tool calls requested by the last reasoning step.
	StateToolExec
	// StateOutputFilter runs the safety filter on the final assistant text.
	StateOutputFilter
	// StateDone is the sole terminal success state.
	StateDone
	// StateFallback is the terminal state for unrecoverable failures.
	StateFallback
)

// String returns the state machine name of the state.
func (s State) String() string {
	switch s {
	case StateInputFilter:
		return "INPUT_FILTER"
	case StateRetrieval:
		return "RETRIEVAL"
	case StateReasoning:
		return "REASONING"
	case StateToolExec:
		return "TOOL_EXEC"
	case StateOutputFilter:
		return "OUTPUT_FILTER"
	case StateDone:
		return "DONE"
	case StateFallback:
		return "FALLBACK"
	default:
		return "UNKNOWN"
	}
}
