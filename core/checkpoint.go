package core

import "context"

// CheckpointStore persists per-thread conversation state so a turn can be
// resumed or audited. Implementations must be safe for concurrent use and
// must return snapshots that do not alias the stored state: mutating a
// loaded state must not affect a later Load.
type CheckpointStore interface {
	// Load returns the latest state for the thread, or (nil, nil) when the
	// thread has no checkpoint yet.
	Load(ctx context.Context, threadID string) (*ConversationState, error)

	// Save persists the state, replacing any prior checkpoint for the thread.
	Save(ctx context.Context, state *ConversationState) error
}
