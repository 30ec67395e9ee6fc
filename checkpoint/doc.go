// Package checkpoint provides thread state persistence. The in-memory store
// is the default for tests and single-process use; the libsql store survives
// restarts.
package checkpoint
