// Package retrieval implements the document pipeline used to ground model
// answers: boundary aware text splitting, embedding, scoped vector search and
// token budgeted context assembly.
package retrieval
