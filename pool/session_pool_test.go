package pool

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jasonkayzk/pgpool/driver"
	"github.com/jasonkayzk/pgpool/drivertest"
	"github.com/jasonkayzk/pgpool/errs"
)

func newTestPool(t *testing.T, tweak func(*Options)) (Pool, *drivertest.Driver) {
	t.Helper()
	drv := drivertest.New()
	opts := &Options{
		Conninfo:       "host=localhost dbname=test",
		MinSessions:    1,
		MaxSessions:    4,
		ConnectTimeout: time.Second,
		AutoReconnect:  true,
		Driver:         drv,
	}
	if tweak != nil {
		tweak(opts)
	}
	p, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(p.Destroy)
	return p, drv
}

func TestNewValidatesConfig(t *testing.T) {
	drv := drivertest.New()

	cases := []struct {
		name string
		opts *Options
	}{
		{"nil options", nil},
		{"missing target", &Options{Driver: drv}},
		{"missing driver", &Options{Conninfo: "host=x"}},
		{"max below one", &Options{Conninfo: "host=x", Driver: drv, MaxSessions: -1}},
		{"min above max", &Options{Conninfo: "host=x", Driver: drv, MinSessions: 5, MaxSessions: 2}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p, err := New(c.opts)
			require.Error(t, err)
			assert.True(t, errs.IsConfigErr(err), "want ConfigErr, got %v", err)
			assert.Nil(t, p)
		})
	}
}

func TestNewToleratesPartialInitFailure(t *testing.T) {
	drv := drivertest.New()
	drv.FailNextConnect(errors.New("connection refused"))
	drv.FailNextConnect(errors.New("connection refused"))

	p, err := New(&Options{
		Conninfo:    "host=x",
		Driver:      drv,
		MinSessions: 3,
		MaxSessions: 3,
	})
	require.NoError(t, err)
	defer p.Destroy()

	assert.Equal(t, 1, p.TotalCount())
	assert.Equal(t, 1, p.IdleCount())
}

func TestNewFailsWhenNoSessionCreated(t *testing.T) {
	drv := drivertest.New()
	drv.FailNextConnect(errors.New("connection refused"))
	drv.FailNextConnect(errors.New("connection refused"))

	p, err := New(&Options{
		Conninfo:    "host=x",
		Driver:      drv,
		MinSessions: 2,
		MaxSessions: 2,
	})
	require.Error(t, err)
	assert.True(t, errs.IsConnectionErr(err), "want ConnectionErr, got %v", err)
	assert.Nil(t, p)
}

func TestAcquireRelease(t *testing.T) {
	p, _ := newTestPool(t, nil)

	s, err := p.Acquire(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, p.ActiveCount())
	assert.Equal(t, 0, p.IdleCount())

	p.Release(s)
	assert.Equal(t, 0, p.ActiveCount())
	assert.Equal(t, 1, p.IdleCount())
}

func TestAcquireGrowsUpToMax(t *testing.T) {
	p, _ := newTestPool(t, func(o *Options) {
		o.MinSessions = 1
		o.MaxSessions = 3
	})

	var held []*Session
	for i := 0; i < 3; i++ {
		s, err := p.Acquire(time.Second)
		require.NoError(t, err)
		held = append(held, s)
	}
	assert.Equal(t, 3, p.TotalCount())

	_, err := p.Acquire(0)
	require.Error(t, err)
	assert.True(t, errs.IsTimeoutErr(err))

	for _, s := range held {
		p.Release(s)
	}
}

func TestAcquireZeroNeverBlocks(t *testing.T) {
	p, _ := newTestPool(t, func(o *Options) {
		o.MinSessions = 1
		o.MaxSessions = 1
	})

	s, err := p.Acquire(0)
	require.NoError(t, err)

	start := time.Now()
	_, err = p.Acquire(0)
	require.Error(t, err)
	assert.True(t, errs.IsTimeoutErr(err))
	assert.Less(t, time.Since(start), 200*time.Millisecond)

	p.Release(s)
	s2, err := p.Acquire(0)
	require.NoError(t, err)
	p.Release(s2)
}

func TestAcquireTimesOut(t *testing.T) {
	p, _ := newTestPool(t, func(o *Options) {
		o.MinSessions = 1
		o.MaxSessions = 1
	})

	s, err := p.Acquire(time.Second)
	require.NoError(t, err)
	defer p.Release(s)

	start := time.Now()
	_, err = p.Acquire(100 * time.Millisecond)
	require.Error(t, err)
	assert.True(t, errs.IsTimeoutErr(err))
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestAcquireNegativeBlocksUntilRelease(t *testing.T) {
	p, _ := newTestPool(t, func(o *Options) {
		o.MinSessions = 1
		o.MaxSessions = 1
	})

	s, err := p.Acquire(-1)
	require.NoError(t, err)

	got := make(chan *Session, 1)
	go func() {
		s2, err := p.Acquire(-1)
		if err == nil {
			got <- s2
		}
	}()

	time.Sleep(100 * time.Millisecond)
	select {
	case <-got:
		t.Fatal("acquire returned before release")
	default:
	}

	p.Release(s)
	select {
	case s2 := <-got:
		p.Release(s2)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by release")
	}
}

func TestAcquireFailsDuringShutdown(t *testing.T) {
	p, _ := newTestPool(t, func(o *Options) {
		o.MinSessions = 1
		o.MaxSessions = 1
	})

	s, err := p.Acquire(time.Second)
	require.NoError(t, err)

	res := make(chan error, 1)
	go func() {
		_, err := p.Acquire(-1)
		res <- err
	}()
	time.Sleep(50 * time.Millisecond)

	go p.Destroy()

	select {
	case err := <-res:
		require.Error(t, err)
		assert.True(t, errs.IsShutdownErr(err), "want ShutdownErr, got %v", err)
	case <-time.After(time.Second):
		t.Fatal("blocked acquire did not fail fast on destroy")
	}

	p.Release(s)
}

func TestReleaseForeignSessionIsNoOp(t *testing.T) {
	p1, _ := newTestPool(t, nil)
	p2, _ := newTestPool(t, nil)

	s, err := p1.Acquire(time.Second)
	require.NoError(t, err)

	idle2 := p2.IdleCount()
	p2.Release(s)
	assert.Equal(t, idle2, p2.IdleCount())
	assert.Equal(t, 1, p1.ActiveCount())

	p1.Release(s)
	assert.Equal(t, 0, p1.ActiveCount())
}

func TestDestroyClosesEverySessionExactlyOnce(t *testing.T) {
	p, drv := newTestPool(t, func(o *Options) {
		o.MinSessions = 3
		o.MaxSessions = 3
	})

	p.Destroy()
	p.Destroy() // idempotent

	conns := drv.Conns()
	require.Len(t, conns, 3)
	for _, c := range conns {
		assert.Equal(t, 1, c.CloseCount())
	}
	assert.Equal(t, 0, p.TotalCount())
}

func TestDestroyForceClosesCheckedOutSessions(t *testing.T) {
	p, drv := newTestPool(t, func(o *Options) {
		o.MinSessions = 1
		o.MaxSessions = 1
	})

	_, err := p.Acquire(time.Second)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		p.Destroy()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("destroy did not complete")
	}

	for _, c := range drv.Conns() {
		assert.Equal(t, 1, c.CloseCount())
	}
}

func TestAutoReconnectReplacesSeveredSession(t *testing.T) {
	p, drv := newTestPool(t, func(o *Options) {
		o.MinSessions = 1
		o.MaxSessions = 2
	})

	s, err := p.Acquire(time.Second)
	require.NoError(t, err)
	oldID := s.ID()
	p.Release(s)

	drv.Conns()[0].Sever()

	s2, err := p.Acquire(time.Second)
	require.NoError(t, err)
	defer p.Release(s2)

	assert.NotEqual(t, oldID, s2.ID())
	assert.Equal(t, 1, drv.Conns()[0].CloseCount())
	require.NoError(t, s2.Execute("SELECT 1", time.Second))
}

func TestSessionIDsAreMonotonicPerPool(t *testing.T) {
	p1, _ := newTestPool(t, nil)
	p2, _ := newTestPool(t, nil)

	s1, err := p1.Acquire(time.Second)
	require.NoError(t, err)
	s2, err := p2.Acquire(time.Second)
	require.NoError(t, err)

	// Two pools hand out independent id sequences.
	assert.Equal(t, s1.ID(), s2.ID())

	p1.Release(s1)
	p2.Release(s2)
}

func TestConcurrentCheckoutNeverExceedsMax(t *testing.T) {
	const (
		workers    = 6
		iterations = 5
		maxConns   = 4
	)

	p, drv := newTestPool(t, func(o *Options) {
		o.MinSessions = 2
		o.MaxSessions = maxConns
	})

	var (
		wg         sync.WaitGroup
		checkedOut int64
		peak       int64
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				s, err := p.Acquire(time.Second)
				if err != nil {
					t.Errorf("acquire: %v", err)
					return
				}

				n := atomic.AddInt64(&checkedOut, 1)
				for {
					old := atomic.LoadInt64(&peak)
					if n <= old || atomic.CompareAndSwapInt64(&peak, old, n) {
						break
					}
				}

				if err := s.Execute("SELECT 1", time.Second); err != nil {
					t.Errorf("execute: %v", err)
				}

				atomic.AddInt64(&checkedOut, -1)
				p.Release(s)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(maxConns))
	assert.LessOrEqual(t, p.TotalCount(), maxConns)
	assert.LessOrEqual(t, len(drv.Conns()), maxConns)
	assert.Equal(t, 0, p.ActiveCount())
}

func TestSessionCallbacks(t *testing.T) {
	var inits, closes int32

	drv := drivertest.New()
	p, err := New(&Options{
		Conninfo:       "host=x",
		Driver:         drv,
		MinSessions:    2,
		MaxSessions:    2,
		OnSessionInit:  func(driver.Conn) { atomic.AddInt32(&inits, 1) },
		OnSessionClose: func(driver.Conn) { atomic.AddInt32(&closes, 1) },
	})
	require.NoError(t, err)
	p.Destroy()

	assert.Equal(t, int32(2), atomic.LoadInt32(&inits))
	assert.Equal(t, int32(2), atomic.LoadInt32(&closes))
}
