package pool

import (
	"sync"
	"time"

	"github.com/jasonkayzk/pgpool/driver"
)

// SharedSession makes one Session safe to use from multiple goroutines. Every
// guarded method acquires the session lock, calls the unguarded core, and
// releases, strictly in that order. No method ever acquires a second
// session's lock while holding this one.
//
// The default pool checkout model does not need this wrapper; it exists for
// the shared-session usage mode only, and the two models are not meant to be
// mixed on one Session.
type SharedSession struct {
	mu sync.Mutex
	s  *Session
}

// NewShared wraps a session for shared use.
func NewShared(s *Session) *SharedSession {
	return &SharedSession{s: s}
}

// Lock takes the session lock manually and returns the unguarded session,
// letting a caller batch several core calls under one lock hold. Pair with
// Unlock, or prefer Do for a guard released on every exit path.
func (g *SharedSession) Lock() *Session {
	g.mu.Lock()
	return g.s
}

// TryLock attempts the lock without blocking.
func (g *SharedSession) TryLock() (*Session, bool) {
	if !g.mu.TryLock() {
		return nil, false
	}
	return g.s, true
}

// Unlock releases a lock taken with Lock or TryLock.
func (g *SharedSession) Unlock() {
	g.mu.Unlock()
}

// Do runs fn with the session lock held; the lock is released on every exit
// path, including a panic inside fn.
func (g *SharedSession) Do(fn func(*Session) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(g.s)
}

func (g *SharedSession) Execute(sql string, timeout time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.s.Execute(sql, timeout)
}

func (g *SharedSession) Query(sql string, timeout time.Duration) (*driver.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.s.Query(sql, timeout)
}

func (g *SharedSession) Prepare(name, sql string, nParams int, paramTypes []uint32, timeout time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.s.Prepare(name, sql, nParams, paramTypes, timeout)
}

func (g *SharedSession) ExecutePrepared(name string, params []string, timeout time.Duration) (*driver.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.s.ExecutePrepared(name, params, timeout)
}

func (g *SharedSession) Deallocate(name string, timeout time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.s.Deallocate(name, timeout)
}

func (g *SharedSession) Begin() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.s.Begin()
}

func (g *SharedSession) Commit() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.s.Commit()
}

func (g *SharedSession) Rollback() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.s.Rollback()
}

func (g *SharedSession) LastError() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.s.LastError()
}

func (g *SharedSession) InTransaction() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.s.InTransaction()
}
