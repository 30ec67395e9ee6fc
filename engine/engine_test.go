package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shahrukh072/ai-backend/checkpoint"
	"github.com/Shahrukh072/ai-backend/core"
	"github.com/Shahrukh072/ai-backend/logging"
	"github.com/Shahrukh072/ai-backend/model"
	"github.com/Shahrukh072/ai-backend/tool"
)

func quietOptions(o *Options) {
	o.Logger = logging.NoOpLogger{}
	o.Config.RetryBackoff = time.Millisecond
}

type stubRetriever struct {
	chunks []core.RetrievedChunk
	err    error
	calls  int
}

func (r *stubRetriever) Retrieve(ctx context.Context, query, userID, documentID string) ([]core.RetrievedChunk, error) {
	r.calls++
	return r.chunks, r.err
}

func (r *stubRetriever) BuildContext(ctx context.Context, query string, chunks []core.RetrievedChunk, tokenBudget int) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Text
	}
	return strings.Join(parts, "\n\n")
}

func TestRunTurn_CalculatorToolCycle(t *testing.T) {
	m := model.NewScriptedModel().
		AddToolCalls(core.ToolCall{ID: "c1", Name: "calculator", Arguments: `{"expression":"10*5"}`}).
		AddText("The result is 50.")
	eng := New(m, tool.NewRegistry(tool.NewCalculator()), quietOptions)

	res, err := eng.RunTurn(context.Background(), TurnRequest{Query: "what is 10*5?", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.Contains(t, res.ResponseText, "50")
	assert.Equal(t, 1, res.Iterations)
	assert.False(t, res.ContextUsed)

	require.Len(t, res.ToolCallLog, 1)
	assert.Equal(t, "calculator", res.ToolCallLog[0].ToolName)
	assert.Equal(t, "50", res.ToolCallLog[0].Result)
	assert.Empty(t, res.ToolCallLog[0].Error)

	// The second reasoning call must see the tool result.
	reqs := m.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, core.RoleTool, last.Role)
	assert.Equal(t, "50", last.Content)
	assert.Equal(t, "c1", last.ToolCallID)
}

func TestRunTurn_InputFilterRejection(t *testing.T) {
	m := model.NewScriptedModel()
	retriever := &stubRetriever{}
	eng := New(m, nil, quietOptions, func(o *Options) { o.Retriever = retriever })

	res, err := eng.RunTurn(context.Background(), TurnRequest{Query: "I hate everything about you", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, core.StatusFallback, res.Status)
	assert.NotEmpty(t, res.StatusReason)
	assert.Equal(t, "I'm sorry, but I can't help with that request.", res.ResponseText)
	assert.Empty(t, res.ToolCallLog)
	assert.Zero(t, retriever.calls, "retrieval must not run on rejected input")
	assert.Zero(t, m.Calls(), "model must not be called on rejected input")
}

func TestRunTurn_RetrievedContextInjected(t *testing.T) {
	m := model.NewScriptedModel().AddText("Paris, according to the notes.")
	retriever := &stubRetriever{chunks: []core.RetrievedChunk{
		{Text: "The capital of France is Paris.", SimilarityScore: 0.92, SourceDocumentID: "d1"},
	}}
	eng := New(m, nil, quietOptions, func(o *Options) { o.Retriever = retriever })

	res, err := eng.RunTurn(context.Background(), TurnRequest{Query: "capital of France?", UserID: "u1", DocumentID: "d1"})
	require.NoError(t, err)

	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.True(t, res.ContextUsed)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Instructions, "Relevant context from documents:")
	assert.Contains(t, reqs[0].Instructions, "The capital of France is Paris.")
}

func TestRunTurn_EmptyRetrievalCompletesWithoutContext(t *testing.T) {
	m := model.NewScriptedModel().AddText("I don't have notes on that.")
	retriever := &stubRetriever{}
	eng := New(m, nil, quietOptions, func(o *Options) { o.Retriever = retriever })

	res, err := eng.RunTurn(context.Background(), TurnRequest{Query: "anything indexed?", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.False(t, res.ContextUsed)
	assert.Equal(t, 1, retriever.calls)

	reqs := m.Requests()
	assert.NotContains(t, reqs[0].Instructions, "Relevant context from documents:")
}

func TestRunTurn_RetrievalFailureDegrades(t *testing.T) {
	m := model.NewScriptedModel().AddText("answered without context")
	retriever := &stubRetriever{err: errors.New("index offline")}
	eng := New(m, nil, quietOptions, func(o *Options) { o.Retriever = retriever })

	res, err := eng.RunTurn(context.Background(), TurnRequest{Query: "still works?", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.False(t, res.ContextUsed)
}

func TestRunTurn_ToolErrorIsNonFatal(t *testing.T) {
	failing := tool.NewFunctionTool("flaky", "always fails", map[string]any{"type": "object"},
		func(ctx context.Context, args map[string]any) (any, error) {
			return nil, errors.New("downstream unavailable")
		})
	m := model.NewScriptedModel().
		AddToolCalls(core.ToolCall{ID: "f1", Name: "flaky", Arguments: `{}`}).
		AddText("The tool is unavailable right now.")
	eng := New(m, tool.NewRegistry(failing), quietOptions)

	res, err := eng.RunTurn(context.Background(), TurnRequest{Query: "use the flaky tool", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, core.StatusCompleted, res.Status)
	require.Len(t, res.ToolCallLog, 1)
	assert.Contains(t, res.ToolCallLog[0].Error, "downstream unavailable")
	assert.Empty(t, res.ToolCallLog[0].Result)

	// The model sees the failure in the tool message.
	reqs := m.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, core.RoleTool, last.Role)
	assert.Contains(t, last.Content, "Error:")
}

func TestRunTurn_IterationLimitForcesFinalAnswer(t *testing.T) {
	call := core.ToolCall{ID: "t", Name: "get_current_time", Arguments: `{}`}
	m := model.NewScriptedModel().
		AddToolCalls(call).
		AddToolCalls(call).
		AddText("It is late.")
	eng := New(m, tool.NewRegistry(tool.NewCurrentTime()), quietOptions)

	res, err := eng.RunTurn(context.Background(), TurnRequest{Query: "loop forever", UserID: "u1", MaxIterations: 2})
	require.NoError(t, err)

	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, "It is late.", res.ResponseText)

	// The final reasoning call must carry no tool declarations and an
	// instruction to wrap up.
	reqs := m.Requests()
	require.Len(t, reqs, 3)
	assert.NotEmpty(t, reqs[1].Tools)
	assert.Empty(t, reqs[2].Tools)
	assert.Contains(t, reqs[2].Instructions, "final answer")
}

func TestRunTurn_IterationLimitIgnoresFurtherToolRequests(t *testing.T) {
	call := core.ToolCall{ID: "t", Name: "get_current_time", Arguments: `{}`}
	m := model.NewScriptedModel().
		AddToolCalls(call).
		AddToolCalls(call) // returned on the last-chance call, must be ignored
	eng := New(m, tool.NewRegistry(tool.NewCurrentTime()), quietOptions)

	res, err := eng.RunTurn(context.Background(), TurnRequest{Query: "loop forever", UserID: "u1", MaxIterations: 1})
	require.NoError(t, err)

	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.Equal(t, 1, res.Iterations)
	assert.Len(t, res.ToolCallLog, 1)
	assert.NotEmpty(t, res.ResponseText)
}

func TestRunTurn_ProviderRetrySucceeds(t *testing.T) {
	m := model.NewScriptedModel().
		AddError(errors.New("rate limited")).
		AddText("recovered")
	eng := New(m, nil, quietOptions)

	res, err := eng.RunTurn(context.Background(), TurnRequest{Query: "hello", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.Equal(t, "recovered", res.ResponseText)
	assert.Equal(t, 2, m.Calls())
}

func TestRunTurn_ProviderDoubleFailureFallsBack(t *testing.T) {
	m := model.NewScriptedModel().
		AddError(errors.New("rate limited")).
		AddError(errors.New("rate limited again"))
	eng := New(m, nil, quietOptions)

	res, err := eng.RunTurn(context.Background(), TurnRequest{Query: "hello", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, core.StatusFallback, res.Status)
	assert.Contains(t, res.StatusReason, "rate limited again")
	assert.Equal(t, "An error occurred. Please try again or rephrase your question.", res.ResponseText)
	assert.Equal(t, 2, m.Calls())
}

func TestRunTurn_OutputFilterReplacesAnswer(t *testing.T) {
	m := model.NewScriptedModel().AddText("Sure, reach them at alice@example.com")
	store := checkpoint.NewInMemoryStore()
	eng := New(m, nil, quietOptions, func(o *Options) { o.Checkpoints = store })

	res, err := eng.RunTurn(context.Background(), TurnRequest{Query: "how do I contact alice?", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, core.StatusFallback, res.Status)
	assert.Equal(t, "Response filtered due to content policy.", res.ResponseText)

	// The persisted transcript must not contain the filtered text either.
	state, err := store.Load(context.Background(), res.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, "Response filtered due to content policy.", state.LastAssistantText())
}

func TestRunTurn_CancellationPersistsAborted(t *testing.T) {
	m := model.NewScriptedModel().AddText("never reached")
	store := checkpoint.NewInMemoryStore()
	eng := New(m, nil, quietOptions, func(o *Options) { o.Checkpoints = store })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := eng.RunTurn(ctx, TurnRequest{Query: "hello", UserID: "u1", ThreadID: "t-abort"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, core.StatusAborted, res.Status)

	state, loadErr := store.Load(context.Background(), "t-abort")
	require.NoError(t, loadErr)
	require.NotNil(t, state)
	status, _ := state.GetStatus()
	assert.Equal(t, core.StatusAborted, status)
}

func TestRunTurn_MultiTurnThreadKeepsHistory(t *testing.T) {
	m := model.NewScriptedModel().
		AddText("Hello! I'm doing well.").
		AddText("You said hello.")
	store := checkpoint.NewInMemoryStore()
	eng := New(m, nil, quietOptions, func(o *Options) { o.Checkpoints = store })

	first, err := eng.RunTurn(context.Background(), TurnRequest{Query: "hello there", UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, core.StatusCompleted, first.Status)

	second, err := eng.RunTurn(context.Background(), TurnRequest{
		Query: "what did I just say?", UserID: "u1", ThreadID: first.ThreadID,
	})
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, second.Status)
	assert.Equal(t, first.ThreadID, second.ThreadID)

	// The second reasoning call sees the full prior exchange.
	reqs := m.Requests()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[1].Messages, 3)
	assert.Equal(t, "hello there", reqs[1].Messages[0].Content)
	assert.Equal(t, "Hello! I'm doing well.", reqs[1].Messages[1].Content)
	assert.Equal(t, "what did I just say?", reqs[1].Messages[2].Content)

	state, err := store.Load(context.Background(), first.ThreadID)
	require.NoError(t, err)
	assert.Len(t, state.GetMessages(), 4)
}

// gateModel blocks its first Generate call until released, so a test can
// hold one turn mid-reasoning while another tries to start.
type gateModel struct {
	mu      sync.Mutex
	reqs    []model.Request
	calls   int
	started chan struct{}
	release chan struct{}
}

func newGateModel() *gateModel {
	return &gateModel{started: make(chan struct{}), release: make(chan struct{})}
}

func (m *gateModel) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	m.mu.Lock()
	m.reqs = append(m.reqs, req)
	call := m.calls
	m.calls++
	m.mu.Unlock()

	if call == 0 {
		close(m.started)
		select {
		case <-m.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &model.Response{Text: "first answer"}, nil
	}
	return &model.Response{Text: "second answer"}, nil
}

func (m *gateModel) Info() model.Info { return model.Info{Name: "gate", Provider: "test"} }

func TestRunTurn_SerializesTurnsOnSameThread(t *testing.T) {
	m := newGateModel()
	store := checkpoint.NewInMemoryStore()
	eng := New(m, nil, quietOptions, func(o *Options) { o.Checkpoints = store })

	var wg sync.WaitGroup
	var first, second *TurnResult
	var firstErr, secondErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		first, firstErr = eng.RunTurn(context.Background(), TurnRequest{
			Query: "first question", UserID: "u1", ThreadID: "t-serial",
		})
	}()

	// The first turn now holds the thread, blocked inside its model call.
	<-m.started

	wg.Add(1)
	go func() {
		defer wg.Done()
		second, secondErr = eng.RunTurn(context.Background(), TurnRequest{
			Query: "second question", UserID: "u1", ThreadID: "t-serial",
		})
	}()

	close(m.release)
	wg.Wait()

	require.NoError(t, firstErr)
	require.NoError(t, secondErr)
	assert.Equal(t, core.StatusCompleted, first.Status)
	assert.Equal(t, core.StatusCompleted, second.Status)

	// The waiting turn must have observed the completed first exchange.
	require.Len(t, m.reqs, 2)
	msgs := m.reqs[1].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, "first question", msgs[0].Content)
	assert.Equal(t, "first answer", msgs[1].Content)
	assert.Equal(t, "second question", msgs[2].Content)

	state, err := store.Load(context.Background(), "t-serial")
	require.NoError(t, err)
	assert.Len(t, state.GetMessages(), 4)
}

func TestRunTurn_CheckpointRoundTrip(t *testing.T) {
	m := model.NewScriptedModel().
		AddToolCalls(core.ToolCall{ID: "c1", Name: "calculator", Arguments: `{"expression":"2+2"}`}).
		AddText("4")
	store := checkpoint.NewInMemoryStore()
	eng := New(m, tool.NewRegistry(tool.NewCalculator()), quietOptions, func(o *Options) { o.Checkpoints = store })

	res, err := eng.RunTurn(context.Background(), TurnRequest{Query: "2+2?", UserID: "u1"})
	require.NoError(t, err)

	state, err := store.Load(context.Background(), res.ThreadID)
	require.NoError(t, err)
	require.NotNil(t, state)

	assert.Equal(t, res.Iterations, state.GetIterationCount())
	assert.Equal(t, res.ToolCallLog, state.GetToolCallLog())
	status, _ := state.GetStatus()
	assert.Equal(t, core.StatusCompleted, status)

	messages := state.GetMessages()
	require.Len(t, messages, 4) // user, assistant tool call, tool, assistant
	assert.Equal(t, core.RoleUser, messages[0].Role)
	assert.Equal(t, core.RoleTool, messages[2].Role)
	assert.Equal(t, "4", messages[3].Content)
}

func TestRunTurn_GeneratesThreadID(t *testing.T) {
	m := model.NewScriptedModel().AddText("hi").AddText("hi")
	eng := New(m, nil, quietOptions)

	a, err := eng.RunTurn(context.Background(), TurnRequest{Query: "one", UserID: "u1"})
	require.NoError(t, err)
	b, err := eng.RunTurn(context.Background(), TurnRequest{Query: "two", UserID: "u1"})
	require.NoError(t, err)

	assert.NotEmpty(t, a.ThreadID)
	assert.NotEmpty(t, b.ThreadID)
	assert.NotEqual(t, a.ThreadID, b.ThreadID)
}

func TestRunTurn_EmptyQueryRejected(t *testing.T) {
	eng := New(model.NewScriptedModel(), nil, quietOptions)

	_, err := eng.RunTurn(context.Background(), TurnRequest{UserID: "u1"})
	assert.Error(t, err)
}

func TestRunTurn_EmptyModelTextGetsBestEffort(t *testing.T) {
	m := model.NewScriptedModel().AddText("")
	eng := New(m, nil, quietOptions)

	res, err := eng.RunTurn(context.Background(), TurnRequest{Query: "say nothing", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.NotEmpty(t, res.ResponseText)
}

func TestRecentHistory_WindowAndOrphanedToolMessages(t *testing.T) {
	eng := New(model.NewScriptedModel(), nil, quietOptions, func(o *Options) {
		o.Config.MaxHistoryMessages = 3
	})

	messages := []core.Message{
		{Role: core.RoleUser, Content: "q1"},
		{Role: core.RoleAssistant, ToolCalls: []core.ToolCall{{ID: "x", Name: "calculator"}}},
		{Role: core.RoleTool, Content: "50", ToolCallID: "x"},
		{Role: core.RoleAssistant, Content: "a1"},
		{Role: core.RoleUser, Content: "q2"},
	}

	got := eng.recentHistory(messages)
	require.Len(t, got, 2)
	assert.Equal(t, "a1", got[0].Content)
	assert.Equal(t, "q2", got[1].Content)
}
