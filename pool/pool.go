package pool

import "time"

// The pool interface
type Pool interface {
	// Acquire checks a session out of the pool. timeout > 0 bounds the
	// wait, timeout == 0 returns immediately without blocking, timeout < 0
	// blocks until a session frees up or the pool shuts down.
	Acquire(timeout time.Duration) (*Session, error)

	// Release returns a session to the pool. A session released with an
	// active transaction is rolled back first.
	Release(s *Session)

	// Destroy shuts the pool down: blocked acquires fail fast, in-use
	// sessions get a short grace period, then everything is force-closed.
	// After Destroy() the pool is no longer usable.
	Destroy()

	// IdleCount returns the number of sessions sitting idle in the pool.
	IdleCount() int

	// ActiveCount returns the number of sessions currently checked out.
	ActiveCount() int

	// TotalCount returns the number of sessions the pool currently holds.
	TotalCount() int
}
