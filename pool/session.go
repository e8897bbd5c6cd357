package pool

import (
	"time"

	"github.com/jasonkayzk/pgpool/driver"
)

// Session wraps one live database connection handle.
//
// A Session is owned by exactly one caller at a time: either via pool
// checkout (the default) or via a SharedSession lock. Its methods are the
// unguarded core and are unsafe to call concurrently on the same Session
// without one of those two disciplines.
type Session struct {
	id   uint32
	conn driver.Conn

	inUse    bool
	txActive bool

	lastActivity time.Time
	lastErr      string
}

// ID returns the session's pool-local identifier. A replaced session
// carries a new id.
func (s *Session) ID() uint32 {
	return s.id
}

// Raw returns the underlying connection handle. Use with caution: direct
// manipulation may break session state.
func (s *Session) Raw() driver.Conn {
	return s.conn
}

// InTransaction reports whether a BEGIN has succeeded without a completed
// COMMIT/ROLLBACK since.
func (s *Session) InTransaction() bool {
	return s.txActive
}

// LastError returns the most recent error text for this session. The slot
// is overwritten by each operation and cleared on release.
func (s *Session) LastError() string {
	return s.lastErr
}

// Execute runs a statement and reports success or failure. Both rows
// returned and command acknowledged count as success. timeout <= 0 blocks
// without a deadline.
func (s *Session) Execute(sql string, timeout time.Duration) error {
	_, err := s.run(func() error { return s.conn.SendQuery(sql) }, timeout)
	return err
}

// Query runs a statement and returns its result.
func (s *Session) Query(sql string, timeout time.Duration) (*driver.Result, error) {
	return s.run(func() error { return s.conn.SendQuery(sql) }, timeout)
}

// run dispatches through the executor and keeps the per-session error slot
// and activity stamp current.
func (s *Session) run(send func() error, timeout time.Duration) (*driver.Result, error) {
	s.lastErr = ""
	res, err := runStatement(s.conn, send, timeout)
	s.lastActivity = time.Now()
	if err != nil {
		s.lastErr = err.Error()
		return nil, err
	}
	return res, nil
}

// validate confirms the session is still live with a cheap round-trip,
// bounded by timeout so a dead transport cannot stall the caller.
func (s *Session) validate(timeout time.Duration) bool {
	if s.conn.Status() != driver.StatusOK {
		return false
	}
	res, err := s.Query("SELECT 1", timeout)
	if err != nil {
		return false
	}
	return res.Status == driver.StatusTuplesOK
}

func (s *Session) touch() {
	s.lastActivity = time.Now()
}
