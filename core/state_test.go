package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFallback.Terminal())
	assert.True(t, StatusAborted.Terminal())
}

func TestConversationState_StatusIsMonotonic(t *testing.T) {
	s := NewConversationState("t1", "u1", "")

	assert.True(t, s.SetStatus(StatusCompleted, ""))
	assert.False(t, s.SetStatus(StatusFallback, "too late"))

	status, reason := s.GetStatus()
	assert.Equal(t, StatusCompleted, status)
	assert.Empty(t, reason)
}

func TestConversationState_TerminalStateRejectsMutation(t *testing.T) {
	s := NewConversationState("t1", "u1", "")
	s.SetStatus(StatusFallback, "blocked")

	s.AppendMessage(Message{Role: RoleUser, Content: "ignored"})
	s.AppendToolCall(ToolCallRecord{ToolName: "ignored"})
	assert.False(t, s.SetRetrievedContext("ignored"))

	assert.Empty(t, s.GetMessages())
	assert.Empty(t, s.GetToolCallLog())
	assert.Empty(t, s.GetRetrievedContext())
}

func TestConversationState_MessagesPreserveOrder(t *testing.T) {
	s := NewConversationState("t1", "u1", "")
	s.AppendMessage(Message{Role: RoleUser, Content: "one"})
	s.AppendMessage(Message{Role: RoleAssistant, Content: "two"})
	s.AppendMessage(Message{Role: RoleUser, Content: "three"})

	messages := s.GetMessages()
	require.Len(t, messages, 3)
	assert.Equal(t, "one", messages[0].Content)
	assert.Equal(t, "two", messages[1].Content)
	assert.Equal(t, "three", messages[2].Content)
}

func TestConversationState_RetrievedContextIsOneShot(t *testing.T) {
	s := NewConversationState("t1", "u1", "")

	assert.True(t, s.SetRetrievedContext("first"))
	assert.False(t, s.SetRetrievedContext("second"))
	assert.Equal(t, "first", s.GetRetrievedContext())
}

func TestConversationState_ResetForTurn(t *testing.T) {
	s := NewConversationState("t1", "u1", "d1")
	s.AppendMessage(Message{Role: RoleUser, Content: "hello"})
	s.AppendToolCall(ToolCallRecord{ToolName: "calculator"})
	s.SetRetrievedContext("some context")
	s.IncrementIteration()
	s.SetStatus(StatusCompleted, "")

	s.ResetForTurn("u1", "d2")

	status, _ := s.GetStatus()
	assert.Equal(t, StatusRunning, status)
	assert.Equal(t, "d2", s.DocumentID)
	assert.Zero(t, s.GetIterationCount())
	assert.Empty(t, s.GetRetrievedContext())
	assert.Empty(t, s.GetToolCallLog())
	assert.Len(t, s.GetMessages(), 1, "history survives the reset")
}

func TestConversationState_ReplaceLastAssistantContent(t *testing.T) {
	s := NewConversationState("t1", "u1", "")
	s.AppendMessage(Message{Role: RoleUser, Content: "q"})
	s.AppendMessage(Message{Role: RoleAssistant, Content: "unsafe", ToolCalls: []ToolCall{{Name: "x"}}})

	s.ReplaceLastAssistantContent("filtered")

	messages := s.GetMessages()
	assert.Equal(t, "filtered", messages[1].Content)
	assert.Nil(t, messages[1].ToolCalls)
	assert.Equal(t, "filtered", s.LastAssistantText())
}

func TestConversationState_CloneIsIndependent(t *testing.T) {
	s := NewConversationState("t1", "u1", "")
	s.AppendMessage(Message{Role: RoleUser, Content: "original"})

	c := s.Clone()
	c.AppendMessage(Message{Role: RoleUser, Content: "clone only"})

	assert.Len(t, s.GetMessages(), 1)
	assert.Len(t, c.GetMessages(), 2)
}

func TestConversationState_JSONRoundTrip(t *testing.T) {
	s := NewConversationState("t1", "u1", "d1")
	s.AppendMessage(Message{Role: RoleUser, Content: "q"})
	s.AppendMessage(Message{
		Role:      RoleAssistant,
		ToolCalls: []ToolCall{{ID: "c1", Name: "calculator", Arguments: `{"expression":"1+1"}`}},
	})
	s.AppendToolCall(ToolCallRecord{ToolName: "calculator", Arguments: `{"expression":"1+1"}`, Result: "2"})
	s.IncrementIteration()
	s.SetStatus(StatusCompleted, "")

	raw, err := json.Marshal(s)
	require.NoError(t, err)

	var restored ConversationState
	require.NoError(t, json.Unmarshal(raw, &restored))

	assert.Equal(t, s.ThreadID, restored.ThreadID)
	assert.Equal(t, s.GetMessages(), restored.GetMessages())
	assert.Equal(t, s.GetToolCallLog(), restored.GetToolCallLog())
	assert.Equal(t, s.GetIterationCount(), restored.GetIterationCount())

	status, _ := restored.GetStatus()
	assert.Equal(t, StatusCompleted, status)
}
