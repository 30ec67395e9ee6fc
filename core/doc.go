// Package core contains the shared domain types of the agent backend:
// conversation state, messages, tool call records, retrieved chunks, the
// checkpoint store contract and the error taxonomy. All higher level
// packages (engine, retrieval, tool, model) depend on core; core depends
// on nothing but the standard library.
package core
