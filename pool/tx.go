package pool

import (
	"github.com/jasonkayzk/pgpool/errs"
)

// Begin starts a transaction. The active flag is set only when the server
// accepted the BEGIN.
func (s *Session) Begin() error {
	if s.txActive {
		return errs.NewIllegalStateErr("transaction already active")
	}
	if err := s.Execute("BEGIN", 0); err != nil {
		return err
	}
	s.txActive = true
	return nil
}

// Commit ends the transaction. The flag is cleared even when the COMMIT
// itself failed: a failed statement implicitly aborts the transaction on the
// server, so the local flag must not outlive server reality.
func (s *Session) Commit() error {
	if !s.txActive {
		return errs.NewIllegalStateErr("no active transaction to commit")
	}
	err := s.Execute("COMMIT", 0)
	s.txActive = false
	return err
}

// Rollback aborts the transaction. The flag is cleared unconditionally, same
// as Commit.
func (s *Session) Rollback() error {
	if !s.txActive {
		return errs.NewIllegalStateErr("no active transaction to rollback")
	}
	err := s.Execute("ROLLBACK", 0)
	s.txActive = false
	return err
}
