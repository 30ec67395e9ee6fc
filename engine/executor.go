package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/Shahrukh072/ai-backend/core"
	"github.com/Shahrukh072/ai-backend/logging"
	"github.com/Shahrukh072/ai-backend/tool"
)

// toolOutcome is the result of one tool call within a batch.
type toolOutcome struct {
	call     core.ToolCall
	result   string
	err      error
	duration time.Duration
}

// toolExecutor runs a batch of tool calls, possibly in parallel, and returns
// outcomes in the original request order. It must:
//   - Respect context cancellation
//   - Never panic (recover internally and report an error outcome)
//   - Return exactly one outcome per incoming call
type toolExecutor struct {
	registry    *tool.Registry
	maxParallel int           // <1 means no explicit limit
	timeout     time.Duration // per-call deadline, 0 disables
	logger      logging.Logger
}

func newToolExecutor(registry *tool.Registry, maxParallel int, timeout time.Duration, logger logging.Logger) *toolExecutor {
	return &toolExecutor{
		registry:    registry,
		maxParallel: maxParallel,
		timeout:     timeout,
		logger:      logger,
	}
}

// execute runs all calls and collects their outcomes. Calls skipped due to
// cancellation still yield an outcome carrying the context error.
func (e *toolExecutor) execute(ctx context.Context, calls []core.ToolCall) []toolOutcome {
	n := len(calls)
	if n == 0 {
		return nil
	}

	// Fast path: single call, execute inline.
	if n == 1 {
		return []toolOutcome{e.executeSingle(ctx, calls[0])}
	}

	maxPar := e.maxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	outcomes := make([]toolOutcome, n)
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxPar)

	batchStart := time.Now()
	for i := range calls {
		if ctx.Err() != nil {
			outcomes[i] = toolOutcome{call: calls[i], err: ctx.Err()}
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, call core.ToolCall) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[idx] = e.executeSingle(ctx, call)
		}(i, calls[i])
	}
	wg.Wait()

	e.logger.Debug(
		"engine.tools.batch_complete",
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)
	return outcomes
}

func (e *toolExecutor) executeSingle(ctx context.Context, call core.ToolCall) toolOutcome {
	if err := ctx.Err(); err != nil {
		return toolOutcome{call: call, err: err}
	}

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	var (
		result string
		err    error
	)
	func() { // panic safety
		defer func() {
			if r := recover(); r != nil {
				err = panicError(r)
				e.logger.Error("engine.tool.panic", "tool", call.Name, "recover", r)
			}
		}()
		result, err = e.registry.Execute(callCtx, call.Name, call.Arguments)
	}()
	dur := time.Since(start)

	e.logger.Info(
		"engine.tool.executed",
		"tool", call.Name,
		"duration_ms", dur.Milliseconds(),
		"error", err != nil,
	)
	return toolOutcome{call: call, result: result, err: err, duration: dur}
}

// panicError converts a recovered panic value to an error, capturing the
// stack at the recovery site.
func panicError(r any) error { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("tool panicked: %v", p.val) }
