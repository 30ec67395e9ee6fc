package core

import (
	"errors"
	"fmt"
)

// Filter stages reported by SafetyViolationError.
const (
	FilterStageInput  = "input"
	FilterStageOutput = "output"
)

// SafetyViolationError reports content rejected by the safety filter at one
// of the two fixed filter points. It escalates to a user-visible fallback.
type SafetyViolationError struct {
	Stage  string // FilterStageInput or FilterStageOutput
	Reason string
}

func (e *SafetyViolationError) Error() string {
	return fmt.Sprintf("safety violation (%s): %s", e.Stage, e.Reason)
}

// ProviderError reports a failed model provider call. Transient errors
// (timeouts, rate limits) are retried once; failing again forces the
// fallback path.
type ProviderError struct {
	Op        string // "reason", "embed", "compress"
	Transient bool
	Err       error
}

func (e *ProviderError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("provider error (%s, %s): %v", e.Op, kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// RetrievalError reports a failed retrieval query. It is non-fatal to the
// turn: the engine degrades to a no-context reasoning call.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string { return fmt.Sprintf("retrieval error: %v", e.Err) }

func (e *RetrievalError) Unwrap() error { return e.Err }

// ErrEmbeddingSpaceMismatch marks a configuration error: the embedder and
// the vector index disagree on dimensionality. Ingestion and query must use
// the same embedding space; this is never runtime-recoverable.
var ErrEmbeddingSpaceMismatch = errors.New("embedding space mismatch between embedder and index")
