package pool

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jasonkayzk/pgpool/driver"
	"github.com/jasonkayzk/pgpool/errs"
	log "github.com/sirupsen/logrus"
)

const (
	destroyGraceRounds   = 10
	destroyGraceInterval = 100 * time.Millisecond
)

// the pool
type sessionPool struct {
	mu   sync.Mutex
	cond *sync.Cond

	// slots is a stable table of size MaxSessions; free holds the indices
	// of empty slots so removal never shifts live entries.
	slots []*Session
	free  []int

	total int
	idle  int

	nextID       uint32
	shuttingDown bool
	destroyed    bool

	opts Options
	id   uuid.UUID
	log  *log.Entry
}

// New builds a pool and eagerly creates up to MinSessions sessions. Partial
// failure is tolerated; construction fails only when not a single session
// could be created.
func New(options *Options) (Pool, error) {
	if options == nil {
		return nil, errs.NewConfigErr("nil options")
	}
	opts := options.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	p := &sessionPool{
		slots: make([]*Session, opts.MaxSessions),
		free:  make([]int, 0, opts.MaxSessions),
		opts:  opts,
		id:    uuid.New(),
	}
	p.cond = sync.NewCond(&p.mu)
	p.log = log.WithField("pool", p.id.String())
	for i := opts.MaxSessions - 1; i >= 0; i-- {
		p.free = append(p.free, i)
	}

	// Build locally, commit on success: nothing is owned by the pool until
	// we know at least one session exists.
	created := make([]*Session, 0, opts.MinSessions)
	for i := 0; i < opts.MinSessions; i++ {
		s, err := p.connect()
		if err != nil {
			p.log.Warnf("initial session %d/%d failed: %v", i+1, opts.MinSessions, err)
			continue
		}
		created = append(created, s)
	}
	if len(created) == 0 {
		return nil, errs.NewConnectionErr("failed to initialize any sessions")
	}
	for _, s := range created {
		p.slots[p.takeSlot()] = s
		p.total++
		p.idle++
	}

	p.log.Debugf("pool ready with %d/%d sessions", p.total, opts.MinSessions)
	return p, nil
}

func (p *sessionPool) Acquire(timeout time.Duration) (*Session, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for !p.shuttingDown {
		// First-match scan over existing slots. Not FIFO-fair: every wakeup
		// re-evaluates from scratch, so a fresh caller can win a freed slot
		// ahead of a longer waiter.
		for i := range p.slots {
			s := p.slots[i]
			if s == nil || s.inUse {
				continue
			}

			if p.opts.AutoReconnect && !s.validate(p.opts.ConnectTimeout) {
				p.log.Warnf("replacing stale session %d", s.id)
				p.closeSession(s)
				ns, err := p.connect()
				if err != nil {
					p.log.Warnf("replacement for session %d failed: %v", s.id, err)
					p.slots[i] = nil
					p.freeSlot(i)
					p.total--
					p.idle--
					continue
				}
				p.slots[i] = ns
				s = ns
			}

			s.inUse = true
			s.touch()
			if p.idle > 0 {
				p.idle--
			}
			return s, nil
		}

		// Room to grow: hand out a brand new session.
		if p.total < p.opts.MaxSessions {
			s, err := p.connect()
			if err == nil {
				s.inUse = true
				s.touch()
				p.slots[p.takeSlot()] = s
				p.total++
				return s, nil
			}
			p.log.Warnf("session create failed: %v", err)
			// Fall through and wait for a release instead.
		}

		if timeout == 0 {
			return nil, errs.NewTimeoutErr("no session available")
		}
		if timeout < 0 {
			p.cond.Wait()
			continue
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, errs.NewTimeoutErr("acquire timed out")
		}
		// sync.Cond has no timed wait; a broadcast at the deadline wakes us
		// (and everyone else, harmlessly: the loop rechecks from scratch).
		t := time.AfterFunc(remaining, p.cond.Broadcast)
		p.cond.Wait()
		t.Stop()
	}

	return nil, errs.NewDefaultShutdownErr()
}

func (p *sessionPool) Release(s *Session) {
	if s == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.owns(s) {
		p.log.Warnf("release of session %d not owned by this pool", s.id)
		return
	}
	if !s.inUse {
		p.log.Warnf("double release of session %d", s.id)
		return
	}

	if s.txActive {
		p.log.Warnf("session %d released with active transaction, rolling back", s.id)
		if err := s.Execute("ROLLBACK", p.opts.ConnectTimeout); err != nil {
			// Swallowed: validation on the next acquire replaces the
			// session if the rollback left it broken.
			p.log.Warnf("session %d: forced rollback failed: %v", s.id, err)
		}
		s.txActive = false
	}

	s.inUse = false
	s.touch()
	s.lastErr = ""
	p.idle++
	p.cond.Signal()
}

func (p *sessionPool) Destroy() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}

	p.shuttingDown = true
	p.cond.Broadcast()

	for i := 0; i < destroyGraceRounds && p.idle < p.total; i++ {
		p.mu.Unlock()
		time.Sleep(destroyGraceInterval)
		p.mu.Lock()
	}

	if p.idle < p.total {
		p.log.Warnf("destroying pool with %d sessions still checked out", p.total-p.idle)
	}

	for i, s := range p.slots {
		if s == nil {
			continue
		}
		p.closeSession(s)
		p.slots[i] = nil
	}
	p.total = 0
	p.idle = 0
	p.destroyed = true
	p.mu.Unlock()
}

func (p *sessionPool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idle
}

func (p *sessionPool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total - p.idle
}

func (p *sessionPool) TotalCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// connect opens a new session. Caller holds the pool lock except during New.
func (p *sessionPool) connect() (*Session, error) {
	p.nextID++
	id := p.nextID

	conn, err := p.opts.Driver.Connect(p.opts.Conninfo, p.opts.ConnectTimeout)
	if err != nil {
		return nil, errs.NewConnectionErr(err.Error())
	}
	if conn.Status() != driver.StatusOK {
		_ = conn.Close()
		return nil, errs.NewConnectionErr("connection unusable after connect")
	}

	s := &Session{id: id, conn: conn, lastActivity: time.Now()}

	// Best-effort timeout tuning; failure is recorded, never fatal.
	if p.opts.ConnectTimeout > 0 {
		stmt := fmt.Sprintf("SET statement_timeout = %d", p.opts.ConnectTimeout.Milliseconds())
		if err := s.Execute(stmt, p.opts.ConnectTimeout); err != nil {
			p.log.Debugf("session %d: set statement_timeout: %v", id, err)
		}
	}

	if p.opts.OnSessionInit != nil {
		p.opts.OnSessionInit(conn)
	}
	return s, nil
}

func (p *sessionPool) closeSession(s *Session) {
	if p.opts.OnSessionClose != nil {
		p.opts.OnSessionClose(s.conn)
	}
	if err := s.conn.Close(); err != nil {
		p.log.Debugf("session %d: close: %v", s.id, err)
	}
}

func (p *sessionPool) owns(s *Session) bool {
	for _, slot := range p.slots {
		if slot == s {
			return true
		}
	}
	return false
}

func (p *sessionPool) takeSlot() int {
	i := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return i
}

func (p *sessionPool) freeSlot(i int) {
	p.free = append(p.free, i)
}
