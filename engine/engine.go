// Package engine implements the bounded, resumable turn loop that drives a
// conversation: safety filtering, document retrieval, reasoning, tool
// execution and checkpointing.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shahrukh072/ai-backend/checkpoint"
	"github.com/Shahrukh072/ai-backend/core"
	"github.com/Shahrukh072/ai-backend/logging"
	"github.com/Shahrukh072/ai-backend/model"
	"github.com/Shahrukh072/ai-backend/safety"
	"github.com/Shahrukh072/ai-backend/tool"
)

// DefaultSystemPrompt is used when no system prompt is configured.
const DefaultSystemPrompt = "You are a helpful assistant. Use the provided document context and tools when they help answer the question. Answer concisely and truthfully."

const (
	contextHeader  = "Relevant context from documents:"
	lastChanceNote = "You have reached the step limit. Provide your final answer now using only the information above; do not request any tools."

	fallbackUnsafeInput  = "I'm sorry, but I can't help with that request."
	fallbackUnsafeOutput = "Response filtered due to content policy."
	fallbackProvider     = "An error occurred. Please try again or rephrase your question."
	bestEffortText       = "I wasn't able to produce a complete answer within the allowed steps."
)

// Config bounds a single turn.
type Config struct {
	// MaxIterations caps the number of reasoning/tool cycles per turn.
	MaxIterations int
	// RetrievalEnabled controls whether the retrieval stage runs at all.
	RetrievalEnabled bool
	// ContextTokenBudget caps the retrieved context handed to the model.
	ContextTokenBudget int
	// ReasoningTimeout is the deadline for a single model call.
	ReasoningTimeout time.Duration
	// ToolTimeout is the deadline for a single tool call.
	ToolTimeout time.Duration
	// MaxParallelTools limits concurrent tool execution within a batch.
	MaxParallelTools int
	// RetryBackoff is the pause before the single provider retry.
	RetryBackoff time.Duration
	// MaxHistoryMessages caps the history window sent to the model.
	MaxHistoryMessages int
	// SystemPrompt overrides DefaultSystemPrompt when non-empty.
	SystemPrompt string
}

// Retriever is the engine's view of the retrieval pipeline.
type Retriever interface {
	// Retrieve returns ranked chunks relevant to query within the user scope.
	Retrieve(ctx context.Context, query, userID, documentID string) ([]core.RetrievedChunk, error)

	// BuildContext assembles chunks into one context block within tokenBudget,
	// keeping the parts relevant to query when it must shrink them.
	BuildContext(ctx context.Context, query string, chunks []core.RetrievedChunk, tokenBudget int) string
}

// Options configures an Engine beyond its model and tools.
type Options struct {
	Config      Config
	Checkpoints core.CheckpointStore
	Retriever   Retriever
	Filter      safety.Filter
	Logger      logging.Logger
}

// Engine runs conversation turns through the fixed state machine. It is safe
// for concurrent use; turns on the same thread are serialized.
type Engine struct {
	model       model.Model
	tools       *tool.Registry
	executor    *toolExecutor
	cfg         Config
	checkpoints core.CheckpointStore
	retriever   Retriever
	filter      safety.Filter
	logger      logging.Logger

	mu          sync.Mutex
	threadLocks map[string]*sync.Mutex
}

// New creates an engine with in-memory defaults: an in-memory checkpoint
// store, the rule based safety filter and no retriever.
func New(m model.Model, tools *tool.Registry, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config: Config{
			MaxIterations:      10,
			RetrievalEnabled:   true,
			ContextTokenBudget: 2000,
			ReasoningTimeout:   60 * time.Second,
			ToolTimeout:        15 * time.Second,
			MaxParallelTools:   4,
			RetryBackoff:       100 * time.Millisecond,
			MaxHistoryMessages: 20,
		},
		Checkpoints: checkpoint.NewInMemoryStore(),
		Filter:      safety.NewRuleFilter(),
		Logger:      logging.NewDefaultSlogLogger(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Config.SystemPrompt == "" {
		opts.Config.SystemPrompt = DefaultSystemPrompt
	}
	if opts.Config.MaxIterations <= 0 {
		opts.Config.MaxIterations = 10
	}
	if tools == nil {
		tools = tool.NewRegistry()
	}

	return &Engine{
		model:       m,
		tools:       tools,
		executor:    newToolExecutor(tools, opts.Config.MaxParallelTools, opts.Config.ToolTimeout, opts.Logger),
		cfg:         opts.Config,
		checkpoints: opts.Checkpoints,
		retriever:   opts.Retriever,
		filter:      opts.Filter,
		logger:      opts.Logger,
		threadLocks: make(map[string]*sync.Mutex),
	}
}

// Tools returns the engine's tool registry for further registrations.
func (e *Engine) Tools() *tool.Registry { return e.tools }

// TurnRequest describes one user turn.
type TurnRequest struct {
	// Query is the raw user input. Required.
	Query string
	// UserID scopes retrieval and checkpoints.
	UserID string
	// DocumentID optionally narrows retrieval to one document.
	DocumentID string
	// ThreadID resumes an existing conversation; empty starts a new thread.
	ThreadID string
	// MaxIterations overrides the engine default when positive.
	MaxIterations int
}

// TurnResult is the outcome of one turn.
type TurnResult struct {
	ThreadID     string
	ResponseText string
	ToolCallLog  []core.ToolCallRecord
	Iterations   int
	ContextUsed  bool
	Status       core.Status
	StatusReason string
}

// turn carries the mutable state of one RunTurn invocation through the
// state handlers.
type turn struct {
	state         *core.ConversationState
	query         string
	maxIterations int

	pendingCalls []core.ToolCall
	lastChance   bool
	finalText    string
	failReason   string
	contextUsed  bool
}

// RunTurn executes one full turn of the state machine. Concurrent turns on
// the same thread wait for each other; distinct threads run independently.
// The final ConversationState is persisted before RunTurn returns, whatever
// the terminal status.
func (e *Engine) RunTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	if req.Query == "" {
		return nil, errors.New("engine: query must not be empty")
	}

	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}

	lock := e.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	state, err := e.checkpoints.Load(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	}
	if state == nil {
		state = core.NewConversationState(threadID, req.UserID, req.DocumentID)
	} else {
		state.ResetForTurn(req.UserID, req.DocumentID)
	}

	maxIterations := e.cfg.MaxIterations
	if req.MaxIterations > 0 {
		maxIterations = req.MaxIterations
	}
	t := &turn{state: state, query: req.Query, maxIterations: maxIterations}

	e.logger.Info("engine.turn.start", "thread_id", threadID, "user_id", req.UserID)

	current := StateInputFilter
	for {
		if err := ctx.Err(); err != nil {
			state.SetStatus(core.StatusAborted, err.Error())
			e.persist(context.WithoutCancel(ctx), state)
			e.logger.Warn("engine.turn.aborted", "thread_id", threadID, "state", current.String(), "error", err.Error())
			return e.turnResult(t), err
		}

		e.logger.Debug("engine.turn.state", "thread_id", threadID, "state", current.String())

		switch current {
		case StateInputFilter:
			current = e.runInputFilter(t)
		case StateRetrieval:
			current = e.runRetrieval(ctx, t)
		case StateReasoning:
			current = e.runReasoning(ctx, t)
		case StateToolExec:
			current = e.runToolExec(ctx, t)
		case StateOutputFilter:
			current = e.runOutputFilter(t)
		case StateDone:
			state.SetStatus(core.StatusCompleted, "")
			e.persist(ctx, state)
			e.logger.Info("engine.turn.completed", "thread_id", threadID, "iterations", state.GetIterationCount())
			return e.turnResult(t), nil
		case StateFallback:
			state.SetStatus(core.StatusFallback, t.failReason)
			e.persist(ctx, state)
			e.logger.Warn("engine.turn.fallback", "thread_id", threadID, "reason", t.failReason)
			return e.turnResult(t), nil
		}
	}
}

// runInputFilter checks the raw query. A rejection is terminal: retrieval
// and reasoning are skipped and no tool runs.
func (e *Engine) runInputFilter(t *turn) State {
	res := e.filter.Check(t.query)
	if !res.Allowed {
		violation := &core.SafetyViolationError{Stage: core.FilterStageInput, Reason: res.Reason}
		e.logger.Warn("engine.input_filter.rejected", "thread_id", t.state.ThreadID, "reason", res.Reason)

		t.state.AppendMessage(core.Message{Role: core.RoleUser, Content: t.query})
		t.state.AppendMessage(core.Message{Role: core.RoleAssistant, Content: fallbackUnsafeInput})
		t.finalText = fallbackUnsafeInput
		t.failReason = violation.Error()
		return StateFallback
	}

	t.state.AppendMessage(core.Message{Role: core.RoleUser, Content: t.query})
	return StateRetrieval
}

// runRetrieval fetches document context for the query. Failures degrade to a
// no-context reasoning call; they never end the turn.
func (e *Engine) runRetrieval(ctx context.Context, t *turn) State {
	if !e.cfg.RetrievalEnabled || e.retriever == nil {
		return StateReasoning
	}

	chunks, err := e.retriever.Retrieve(ctx, t.query, t.state.UserID, t.state.DocumentID)
	if err != nil {
		e.logger.Warn("engine.retrieval.failed", "thread_id", t.state.ThreadID, "error", err.Error())
		return StateReasoning
	}
	if len(chunks) == 0 {
		e.logger.Debug("engine.retrieval.no_results", "thread_id", t.state.ThreadID)
		return StateReasoning
	}

	block := e.retriever.BuildContext(ctx, t.query, chunks, e.cfg.ContextTokenBudget)
	if block != "" && t.state.SetRetrievedContext(block) {
		t.contextUsed = true
		e.logger.Info("engine.retrieval.context_set", "thread_id", t.state.ThreadID, "chunks", len(chunks))
	}
	return StateReasoning
}

// runReasoning performs one model call. Tool requests start a tool cycle
// unless the iteration bound has been reached, in which case the model is
// asked for final text and any tool requests are ignored.
func (e *Engine) runReasoning(ctx context.Context, t *turn) State {
	req := model.Request{
		Instructions: e.buildInstructions(t),
		Messages:     e.recentHistory(t.state.GetMessages()),
	}
	if !t.lastChance && e.tools.Len() > 0 {
		req.Tools = e.tools.Definitions()
	}

	resp, err := e.reason(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return StateReasoning // the loop head persists the abort
		}
		e.logger.Error("engine.reasoning.failed", "thread_id", t.state.ThreadID, "error", err.Error())
		t.state.AppendMessage(core.Message{Role: core.RoleAssistant, Content: fallbackProvider})
		t.finalText = fallbackProvider
		t.failReason = err.Error()
		return StateFallback
	}

	if len(resp.ToolCalls) > 0 && !t.lastChance {
		t.state.AppendMessage(core.Message{
			Role:      core.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})
		iteration := t.state.IncrementIteration()
		if iteration >= t.maxIterations {
			t.lastChance = true
			e.logger.Warn("engine.iteration_limit", "thread_id", t.state.ThreadID, "iterations", iteration)
		}
		t.pendingCalls = resp.ToolCalls
		return StateToolExec
	}

	text := resp.Text
	if text == "" {
		text = bestEffortText
	}
	t.state.AppendMessage(core.Message{Role: core.RoleAssistant, Content: text})
	t.finalText = text
	return StateOutputFilter
}

// runToolExec executes the pending tool batch and appends one tool message
// per call, in request order. Tool failures are recorded and surfaced to the
// next reasoning call; they never end the turn.
func (e *Engine) runToolExec(ctx context.Context, t *turn) State {
	outcomes := e.executor.execute(ctx, t.pendingCalls)
	t.pendingCalls = nil

	for _, outcome := range outcomes {
		record := core.ToolCallRecord{
			ToolName:  outcome.call.Name,
			Arguments: outcome.call.Arguments,
			Duration:  outcome.duration,
		}
		content := outcome.result
		if outcome.err != nil {
			record.Error = outcome.err.Error()
			content = "Error: " + outcome.err.Error()
		} else {
			record.Result = outcome.result
		}
		t.state.AppendToolCall(record)
		t.state.AppendMessage(core.Message{
			Role:       core.RoleTool,
			Content:    content,
			ToolCallID: outcome.call.ID,
			ToolName:   outcome.call.Name,
		})
	}
	return StateReasoning
}

// runOutputFilter checks the final assistant text. A rejection replaces the
// answer with the canned fallback.
func (e *Engine) runOutputFilter(t *turn) State {
	res := e.filter.Check(t.finalText)
	if res.Allowed {
		return StateDone
	}

	violation := &core.SafetyViolationError{Stage: core.FilterStageOutput, Reason: res.Reason}
	e.logger.Warn("engine.output_filter.rejected", "thread_id", t.state.ThreadID, "reason", res.Reason)

	t.state.ReplaceLastAssistantContent(fallbackUnsafeOutput)
	t.finalText = fallbackUnsafeOutput
	t.failReason = violation.Error()
	return StateFallback
}

// reason performs one model call with a deadline, retrying exactly once
// after a backoff.
func (e *Engine) reason(ctx context.Context, req model.Request) (*model.Response, error) {
	resp, err := e.generateOnce(ctx, req)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	e.logger.Warn("engine.reasoning.retry", "error", err.Error())
	select {
	case <-time.After(e.cfg.RetryBackoff):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	resp, err = e.generateOnce(ctx, req)
	if err != nil {
		return nil, &core.ProviderError{Op: "reason", Transient: false, Err: err}
	}
	return resp, nil
}

func (e *Engine) generateOnce(ctx context.Context, req model.Request) (*model.Response, error) {
	callCtx := ctx
	if e.cfg.ReasoningTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.cfg.ReasoningTimeout)
		defer cancel()
	}
	return e.model.Generate(callCtx, req)
}

func (e *Engine) buildInstructions(t *turn) string {
	instructions := e.cfg.SystemPrompt
	if rc := t.state.GetRetrievedContext(); rc != "" {
		instructions += "\n\n" + contextHeader + "\n" + rc
	}
	if t.lastChance {
		instructions += "\n\n" + lastChanceNote
	}
	return instructions
}

// recentHistory returns the trailing history window. Tool messages orphaned
// by the cut (their assistant tool call fell outside the window) are dropped
// so providers never see a tool result without its request.
func (e *Engine) recentHistory(messages []core.Message) []core.Message {
	if e.cfg.MaxHistoryMessages > 0 && len(messages) > e.cfg.MaxHistoryMessages {
		messages = messages[len(messages)-e.cfg.MaxHistoryMessages:]
	}
	for len(messages) > 0 && messages[0].Role == core.RoleTool {
		messages = messages[1:]
	}
	return messages
}

func (e *Engine) persist(ctx context.Context, state *core.ConversationState) {
	if err := e.checkpoints.Save(ctx, state); err != nil {
		e.logger.Error("engine.checkpoint.save_failed", "thread_id", state.ThreadID, "error", err.Error())
	}
}

func (e *Engine) turnResult(t *turn) *TurnResult {
	status, reason := t.state.GetStatus()
	return &TurnResult{
		ThreadID:     t.state.ThreadID,
		ResponseText: t.finalText,
		ToolCallLog:  t.state.GetToolCallLog(),
		Iterations:   t.state.GetIterationCount(),
		ContextUsed:  t.contextUsed,
		Status:       status,
		StatusReason: reason,
	}
}

// threadLock returns the mutex serializing turns for threadID. Locks are
// retained for the life of the engine, one per thread ever seen, so a turn
// queued on a mutex can never be detached from it; callers with very high
// thread cardinality should recycle engines.
func (e *Engine) threadLock(threadID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.threadLocks[threadID]
	if !ok {
		lock = &sync.Mutex{}
		e.threadLocks[threadID] = lock
	}
	return lock
}
