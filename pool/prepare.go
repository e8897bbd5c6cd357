package pool

import (
	"time"

	"github.com/jasonkayzk/pgpool/driver"
	"github.com/jasonkayzk/pgpool/errs"
)

// Prepare parses a named statement on this session. Names are session-local:
// a statement prepared here does not exist on whichever session a future
// checkout returns, so callers must re-prepare after every acquire.
func (s *Session) Prepare(name, sql string, nParams int, paramTypes []uint32, timeout time.Duration) error {
	if name == "" {
		return errs.NewQueryErr("empty statement name")
	}
	_, err := s.run(func() error {
		return s.conn.SendPrepare(name, sql, nParams, paramTypes)
	}, timeout)
	return err
}

// ExecutePrepared runs a previously prepared statement with text-format
// parameters. Completion and cancellation semantics match Query.
func (s *Session) ExecutePrepared(name string, params []string, timeout time.Duration) (*driver.Result, error) {
	if name == "" {
		return nil, errs.NewQueryErr("empty statement name")
	}
	return s.run(func() error {
		return s.conn.SendQueryPrepared(name, params)
	}, timeout)
}

// Deallocate drops a prepared statement. Issued as a plain statement through
// the executor rather than a dedicated primitive, for portability.
func (s *Session) Deallocate(name string, timeout time.Duration) error {
	if name == "" {
		return errs.NewQueryErr("empty statement name")
	}
	return s.Execute("DEALLOCATE "+name, timeout)
}
