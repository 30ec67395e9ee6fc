package checkpoint

import (
	"context"
	"sync"

	"github.com/Shahrukh072/ai-backend/core"
)

// InMemoryStore keeps checkpoints in a process-local map. Snapshots are
// cloned on both Save and Load so callers never share mutable state with the
// store.
type InMemoryStore struct {
	mu     sync.RWMutex
	states map[string]*core.ConversationState
}

var _ core.CheckpointStore = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory checkpoint store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{states: make(map[string]*core.ConversationState)}
}

// Load returns a copy of the checkpoint for threadID, or (nil, nil) when the
// thread has no checkpoint yet.
func (s *InMemoryStore) Load(ctx context.Context, threadID string) (*core.ConversationState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[threadID]
	if !ok {
		return nil, nil
	}
	return state.Clone(), nil
}

// Save stores a copy of the state under its thread ID, replacing any
// previous checkpoint.
func (s *InMemoryStore) Save(ctx context.Context, state *core.ConversationState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.ThreadID] = state.Clone()
	return nil
}

// Len returns the number of stored checkpoints.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}
