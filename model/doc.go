// Package model defines the language-model capability consumed by the
// orchestration engine: given an instruction, a message history and an
// optional tool schema, produce either a final answer or a set of requested
// tool calls. Provider adapters (openai, anthropic) live in sub-packages so
// vendors are swapped via dependency injection, not per-vendor branching.
package model
