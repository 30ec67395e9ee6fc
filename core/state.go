package core

import (
	"encoding/json"
	"sync"
	"time"
)

// Status is the lifecycle phase of a ConversationState. Within a turn the
// status is monotonic: once a terminal status (COMPLETED, FALLBACK, ABORTED)
// has been set it can no longer change; the next turn on the same thread
// resets it to RUNNING via ResetForTurn.
type Status string

const (
	// StatusRunning marks a turn that is still being executed.
	StatusRunning Status = "RUNNING"
	// StatusCompleted marks a turn that produced a filtered final answer.
	StatusCompleted Status = "COMPLETED"
	// StatusFallback marks a turn that terminated on the safe fallback path.
	StatusFallback Status = "FALLBACK"
	// StatusAborted marks a turn cancelled by the caller mid-execution.
	StatusAborted Status = "ABORTED"
)

// Terminal reports whether the status permits no further mutation.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFallback || s == StatusAborted
}

// Conversation roles used in Message.Role. Insertion order of messages is
// the causal/display order and is never reordered.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a tool invocation request surfaced by a model provider,
// unified across vendors so downstream logic needs no per-provider branching.
type ToolCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"` // JSON-encoded argument payload
}

// Message is one role-tagged entry of a conversation. Assistant messages may
// carry tool call requests; tool messages carry the result (or error) of a
// single previously requested call, correlated via ToolCallID.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
}

// ToolCallRecord is one entry of the per-turn tool call trace. Entries are
// append-only and preserve the order in which calls were requested by the
// reasoning step, regardless of concurrent execution order.
type ToolCallRecord struct {
	ToolName  string        `json:"tool_name"`
	Arguments string        `json:"arguments,omitempty"`
	Result    string        `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// ConversationState is the unit of work for one turn and the checkpoint
// unit for a thread. It is mutated exclusively by the orchestration engine
// during graph execution and is safe for concurrent reads once a turn has
// reached a terminal status.
//
// Contract:
//   - Messages and ToolCallLog are append-only within a turn
//   - RetrievedContext is set at most once per turn and never mutated after
//   - Status transitions are monotonic within a turn
//   - 0 <= IterationCount <= the turn's max iterations at every checkpoint write
type ConversationState struct {
	ThreadID         string           `json:"thread_id"`
	UserID           string           `json:"user_id"`
	DocumentID       string           `json:"document_id,omitempty"`
	Messages         []Message        `json:"messages"`
	IterationCount   int              `json:"iteration_count"`
	RetrievedContext string           `json:"retrieved_context,omitempty"`
	ToolCallLog      []ToolCallRecord `json:"tool_call_log,omitempty"`
	Status           Status           `json:"status"`
	StatusReason     string           `json:"status_reason,omitempty"`
	Created          time.Time        `json:"created"`
	Updated          time.Time        `json:"updated"`

	mu sync.RWMutex
}

// NewConversationState creates a fresh RUNNING state for a thread.
func NewConversationState(threadID, userID, documentID string) *ConversationState {
	now := time.Now().UTC()
	return &ConversationState{
		ThreadID:   threadID,
		UserID:     userID,
		DocumentID: documentID,
		Messages:   []Message{},
		Status:     StatusRunning,
		Created:    now,
		Updated:    now,
	}
}

// ResetForTurn prepares a state loaded from a checkpoint for a new turn:
// per-turn fields are cleared while the message history is kept. The scope
// identifiers are re-bound because a thread may be resumed against a
// different document.
func (s *ConversationState) ResetForTurn(userID, documentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UserID = userID
	s.DocumentID = documentID
	s.IterationCount = 0
	s.RetrievedContext = ""
	s.ToolCallLog = nil
	s.Status = StatusRunning
	s.StatusReason = ""
	s.Updated = time.Now().UTC()
}

// AppendMessage appends one message preserving insertion order. Appends to a
// terminal state are ignored.
func (s *ConversationState) AppendMessage(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status.Terminal() {
		return
	}
	s.Messages = append(s.Messages, m)
	s.Updated = time.Now().UTC()
}

// ReplaceLastAssistantContent overwrites the content of the most recent
// assistant message. Used by the output filter when the final answer is
// replaced by a fallback message.
func (s *ConversationState) ReplaceLastAssistantContent(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			s.Messages[i].Content = content
			s.Messages[i].ToolCalls = nil
			s.Updated = time.Now().UTC()
			return
		}
	}
}

// AppendToolCall appends one record to the tool call trace.
func (s *ConversationState) AppendToolCall(r ToolCallRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status.Terminal() {
		return
	}
	s.ToolCallLog = append(s.ToolCallLog, r)
	s.Updated = time.Now().UTC()
}

// SetRetrievedContext sets the per-turn context block. Only the first call
// per turn takes effect; the context is immutable afterwards.
func (s *ConversationState) SetRetrievedContext(ctx string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RetrievedContext != "" || s.Status.Terminal() {
		return false
	}
	s.RetrievedContext = ctx
	s.Updated = time.Now().UTC()
	return true
}

// IncrementIteration advances the loop counter by one and returns the new value.
func (s *ConversationState) IncrementIteration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.IterationCount++
	s.Updated = time.Now().UTC()
	return s.IterationCount
}

// SetStatus transitions the status. Transitions out of a terminal status are
// rejected, keeping the state monotonic; the return value reports whether
// the transition was applied.
func (s *ConversationState) SetStatus(st Status, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status.Terminal() {
		return false
	}
	s.Status = st
	s.StatusReason = reason
	s.Updated = time.Now().UTC()
	return true
}

// GetStatus returns the current status and reason.
func (s *ConversationState) GetStatus() (Status, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status, s.StatusReason
}

// GetMessages returns a copy of the message sequence.
func (s *ConversationState) GetMessages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.Messages))
	copy(out, s.Messages)
	return out
}

// GetToolCallLog returns a copy of the tool call trace.
func (s *ConversationState) GetToolCallLog() []ToolCallRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ToolCallRecord, len(s.ToolCallLog))
	copy(out, s.ToolCallLog)
	return out
}

// GetRetrievedContext returns the per-turn context block ("" when unset).
func (s *ConversationState) GetRetrievedContext() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.RetrievedContext
}

// GetIterationCount returns the current loop counter.
func (s *ConversationState) GetIterationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.IterationCount
}

// LastAssistantText returns the content of the most recent assistant message.
func (s *ConversationState) LastAssistantText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return s.Messages[i].Content
		}
	}
	return ""
}

// Clone returns a deep copy safe for independent mutation. Checkpoint store
// implementations clone on save and load so callers never share memory with
// the persisted snapshot.
func (s *ConversationState) Clone() *ConversationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := &ConversationState{
		ThreadID:         s.ThreadID,
		UserID:           s.UserID,
		DocumentID:       s.DocumentID,
		Messages:         make([]Message, len(s.Messages)),
		IterationCount:   s.IterationCount,
		RetrievedContext: s.RetrievedContext,
		Status:           s.Status,
		StatusReason:     s.StatusReason,
		Created:          s.Created,
		Updated:          s.Updated,
	}
	copy(c.Messages, s.Messages)
	if len(s.ToolCallLog) > 0 {
		c.ToolCallLog = make([]ToolCallRecord, len(s.ToolCallLog))
		copy(c.ToolCallLog, s.ToolCallLog)
	}
	return c
}

// MarshalJSON serializes a consistent snapshot of the state.
func (s *ConversationState) MarshalJSON() ([]byte, error) {
	c := s.Clone()
	type plain ConversationState
	return json.Marshal((*plain)(c))
}

// UnmarshalJSON restores a state snapshot.
func (s *ConversationState) UnmarshalJSON(data []byte) error {
	type plain ConversationState
	return json.Unmarshal(data, (*plain)(s))
}
