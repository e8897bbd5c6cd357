// Package driver defines the interface the pool consumes from an external
// PostgreSQL client driver. The pool never implements wire-protocol framing;
// it only sequences these primitives.
package driver

import "time"

// Status of an open connection.
type Status int

const (
	// StatusOK means the connection is usable.
	StatusOK Status = iota

	// StatusBad means the connection is broken and must be replaced.
	StatusBad
)

// ExecStatus classifies a completed operation.
type ExecStatus int

const (
	// StatusTuplesOK means the statement succeeded and returned rows.
	StatusTuplesOK ExecStatus = iota

	// StatusCommandOK means the statement succeeded without rows.
	StatusCommandOK

	// StatusError means the server rejected the statement.
	StatusError
)

// Result is the outcome of one statement. Values arrive in text format;
// decoding into typed scalars is the caller's concern, not the pool's.
type Result struct {
	Status  ExecStatus
	Columns []string
	Rows    [][]string

	// Tag is the command completion tag, e.g. "INSERT 0 1".
	Tag string

	// ErrText is the server-provided error message when Status is StatusError.
	ErrText string
}

// Succeeded reports whether the result counts as success: both rows returned
// and command acknowledged qualify.
func (r *Result) Succeeded() bool {
	return r.Status == StatusTuplesOK || r.Status == StatusCommandOK
}

// Driver opens connections to a database server.
type Driver interface {
	// Connect dials the target described by conninfo. A zero timeout uses
	// the driver default.
	Connect(conninfo string, timeout time.Duration) (Conn, error)
}

// Conn is one live connection handle. It is not safe for concurrent use;
// exclusivity is enforced by the pool's checkout discipline or by the
// session's own lock.
type Conn interface {
	// Status reports connection health without a round-trip.
	Status() Status

	// SendQuery dispatches a statement without blocking for the result.
	SendQuery(sql string) error

	// SendPrepare dispatches a named-statement parse request. paramTypes
	// may be nil for server-side inference; nParams still declares the
	// placeholder count.
	SendPrepare(name, sql string, nParams int, paramTypes []uint32) error

	// SendQueryPrepared dispatches an execution of a previously prepared
	// statement with text-format parameters.
	SendQueryPrepared(name string, params []string) error

	// PollReady blocks until input is available or deadline passes. A zero
	// deadline blocks indefinitely. Returns false when the deadline expired
	// with nothing to read.
	PollReady(deadline time.Time) (bool, error)

	// ConsumeInput pulls available input off the transport.
	ConsumeInput() error

	// Busy reports whether the in-flight operation is still in progress.
	Busy() bool

	// NextResult returns the next pipelined result, or (nil, nil) once the
	// pipeline is drained.
	NextResult() (*Result, error)

	// Cancel asks the server to abandon the in-flight operation. Best
	// effort: the server may complete the work anyway.
	Cancel() error

	// Close tears down the connection. Idempotent.
	Close() error
}
