// Package tool implements the function calling subsystem that lets the engine
// invoke structured capabilities (computations, lookups, document search) with
// schema validated arguments and consistent error handling.
package tool

import (
	"context"
	"fmt"
)

// Error codes attached to ToolError for categorization.
const (
	CodeValidationError  = "VALIDATION_ERROR"
	CodeExecutionError   = "EXECUTION_ERROR"
	CodeUnknownTool      = "UNKNOWN_TOOL"
	CodeInvalidArguments = "INVALID_ARGUMENTS"
)

// Tool defines the interface for extending the engine with external functions.
//
// Tools are registered with a Registry and surfaced to the model as function
// declarations. Arguments arrive as parsed JSON objects validated against the
// tool's schema.
//
// Tool implementations should:
//   - Provide clear, descriptive names (snake_case recommended)
//   - Define proper JSON schema for parameters
//   - Handle errors gracefully
//   - Be thread-safe if used concurrently
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what this tool does.
	// This description is provided to the LLM to help it understand when and
	// how to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]interface{}

	// Call executes the tool with structured, already-validated arguments.
	// The context carries the per-call deadline set by the executor.
	Call(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// ToolError represents errors that occur during tool lookup or execution.
type ToolError struct {
	Tool    string      `json:"tool"`              // Name of the tool that failed
	Message string      `json:"message"`           // Error message
	Code    string      `json:"code"`              // Error code for categorization
	Details interface{} `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
