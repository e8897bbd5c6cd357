// Package drivertest provides an in-process fake of the driver interface so
// pool behavior can be tested without a database server. The fake answers a
// tiny statement dialect: SELECT returns its select list as one text row,
// BEGIN/COMMIT/ROLLBACK track transaction state, prepared statements live in
// a per-connection map, and everything else is acknowledged as a command.
package drivertest

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jasonkayzk/pgpool/driver"
)

// Driver hands out fake connections and records activity for assertions.
type Driver struct {
	mu          sync.Mutex
	connectErrs []error
	connects    int
	conns       []*Conn

	// Respond, when set, overrides the built-in dialect for plain queries.
	Respond func(sql string) *driver.Result

	// ConnectDelay is applied to every Connect call.
	ConnectDelay time.Duration
}

// New returns an empty fake driver.
func New() *Driver {
	return &Driver{}
}

// FailNextConnect queues an error for an upcoming Connect call; queued
// errors are consumed in order, one per call.
func (d *Driver) FailNextConnect(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectErrs = append(d.connectErrs, err)
}

// ConnectCount reports how many Connect calls succeeded or failed.
func (d *Driver) ConnectCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects
}

// Conns returns every connection ever handed out, in creation order.
func (d *Driver) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Conn, len(d.conns))
	copy(out, d.conns)
	return out
}

func (d *Driver) Connect(conninfo string, timeout time.Duration) (driver.Conn, error) {
	if d.ConnectDelay > 0 {
		time.Sleep(d.ConnectDelay)
	}

	d.mu.Lock()
	d.connects++
	if len(d.connectErrs) > 0 {
		err := d.connectErrs[0]
		d.connectErrs = d.connectErrs[1:]
		if err != nil {
			d.mu.Unlock()
			return nil, err
		}
	}
	c := &Conn{
		drv:      d,
		prepared: make(map[string]preparedStmt),
	}
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

type preparedStmt struct {
	sql     string
	nParams int
}

// Conn is one fake connection. Knobs (Sever, DelayNext, StallNext) let tests
// simulate dead transports and slow servers.
type Conn struct {
	drv *Driver

	mu        sync.Mutex
	severed   bool
	closes    int
	cancels   int
	delayNext time.Duration
	stallNext bool
	inTx      bool
	prepared  map[string]preparedStmt

	inflight *driver.Result
	readyAt  time.Time
	queue    []*driver.Result
}

// Sever simulates the underlying connection being cut externally.
func (c *Conn) Sever() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.severed = true
}

// DelayNext makes the next dispatched operation take d to complete.
func (c *Conn) DelayNext(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delayNext = d
}

// StallNext makes the next dispatched operation never complete until it is
// canceled, simulating a server that never responds.
func (c *Conn) StallNext() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stallNext = true
}

// CloseCount reports how many times Close was called.
func (c *Conn) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// CancelCount reports how many best-effort cancels were requested.
func (c *Conn) CancelCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancels
}

// InTx reports the fake server's view of transaction state.
func (c *Conn) InTx() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inTx
}

// Prepared reports whether a named statement exists on this connection.
func (c *Conn) Prepared(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.prepared[name]
	return ok
}

func (c *Conn) Status() driver.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.severed || c.closes > 0 {
		return driver.StatusBad
	}
	return driver.StatusOK
}

func (c *Conn) SendQuery(sql string) error {
	return c.dispatch(func() *driver.Result { return c.evalLocked(sql) })
}

func (c *Conn) SendPrepare(name, sql string, nParams int, paramTypes []uint32) error {
	return c.dispatch(func() *driver.Result {
		if _, ok := c.prepared[name]; ok {
			return errResult(fmt.Sprintf("prepared statement %q already exists", name))
		}
		c.prepared[name] = preparedStmt{sql: sql, nParams: nParams}
		return &driver.Result{Status: driver.StatusCommandOK, Tag: "PREPARE"}
	})
}

func (c *Conn) SendQueryPrepared(name string, params []string) error {
	return c.dispatch(func() *driver.Result {
		stmt, ok := c.prepared[name]
		if !ok {
			return errResult(fmt.Sprintf("prepared statement %q does not exist", name))
		}
		// Substitute high indices first so $1 never clips $10.
		sql := stmt.sql
		for i := len(params) - 1; i >= 0; i-- {
			sql = strings.ReplaceAll(sql, fmt.Sprintf("$%d", i+1), params[i])
		}
		return c.evalLocked(sql)
	})
}

// dispatch runs the fake server work synchronously and parks the result
// until readyAt, modeling a non-blocking send plus a later response.
func (c *Conn) dispatch(eval func() *driver.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closes > 0 {
		return fmt.Errorf("connection is closed")
	}
	if c.severed {
		return fmt.Errorf("connection is severed")
	}
	if c.inflight != nil {
		return fmt.Errorf("another command is already in progress")
	}

	res := eval()
	c.inflight = res
	if c.stallNext {
		c.stallNext = false
		c.readyAt = time.Now().Add(24 * time.Hour)
	} else {
		c.readyAt = time.Now().Add(c.delayNext)
		c.delayNext = 0
	}
	return nil
}

// evalLocked is the mini statement dialect. Caller holds c.mu.
func (c *Conn) evalLocked(sql string) *driver.Result {
	if c.drv != nil && c.drv.Respond != nil {
		if res := c.drv.Respond(sql); res != nil {
			return res
		}
	}

	trimmed := strings.TrimSpace(sql)
	upper := strings.ToUpper(trimmed)

	switch {
	case upper == "BEGIN":
		if c.inTx {
			return errResult("there is already a transaction in progress")
		}
		c.inTx = true
		return &driver.Result{Status: driver.StatusCommandOK, Tag: "BEGIN"}

	case upper == "COMMIT":
		c.inTx = false
		return &driver.Result{Status: driver.StatusCommandOK, Tag: "COMMIT"}

	case upper == "ROLLBACK":
		c.inTx = false
		return &driver.Result{Status: driver.StatusCommandOK, Tag: "ROLLBACK"}

	case strings.HasPrefix(upper, "DEALLOCATE "):
		name := strings.TrimSpace(trimmed[len("DEALLOCATE "):])
		if _, ok := c.prepared[name]; !ok {
			return errResult(fmt.Sprintf("prepared statement %q does not exist", name))
		}
		delete(c.prepared, name)
		return &driver.Result{Status: driver.StatusCommandOK, Tag: "DEALLOCATE"}

	case strings.HasPrefix(upper, "SELECT "):
		list := strings.TrimSpace(trimmed[len("SELECT "):])
		var row []string
		var cols []string
		for i, item := range strings.Split(list, ",") {
			row = append(row, strings.Trim(strings.TrimSpace(item), "'"))
			cols = append(cols, fmt.Sprintf("?column?%d", i+1))
		}
		return &driver.Result{
			Status:  driver.StatusTuplesOK,
			Columns: cols,
			Rows:    [][]string{row},
			Tag:     "SELECT 1",
		}

	default:
		tag := upper
		if i := strings.IndexByte(tag, ' '); i > 0 {
			tag = tag[:i]
		}
		return &driver.Result{Status: driver.StatusCommandOK, Tag: tag}
	}
}

func (c *Conn) PollReady(deadline time.Time) (bool, error) {
	for {
		c.mu.Lock()
		if c.severed {
			c.mu.Unlock()
			return false, fmt.Errorf("connection is severed")
		}
		if c.inflight == nil {
			c.mu.Unlock()
			return true, nil
		}
		readyAt := c.readyAt
		c.mu.Unlock()

		now := time.Now()
		if !readyAt.After(now) {
			return true, nil
		}
		if !deadline.IsZero() && !deadline.After(now) {
			return false, nil
		}

		wait := readyAt.Sub(now)
		if !deadline.IsZero() && deadline.Before(readyAt) {
			wait = deadline.Sub(now)
		}
		if wait > 5*time.Millisecond {
			wait = 5 * time.Millisecond
		}
		time.Sleep(wait)
	}
}

func (c *Conn) ConsumeInput() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.severed {
		return fmt.Errorf("connection is severed")
	}
	if c.inflight != nil && !c.readyAt.After(time.Now()) {
		c.queue = append(c.queue, c.inflight)
		c.inflight = nil
	}
	return nil
}

func (c *Conn) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight != nil
}

func (c *Conn) NextResult() (*driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight != nil && !c.readyAt.After(time.Now()) {
		c.queue = append(c.queue, c.inflight)
		c.inflight = nil
	}
	if len(c.queue) == 0 {
		return nil, nil
	}
	res := c.queue[0]
	c.queue = c.queue[1:]
	return res, nil
}

func (c *Conn) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancels++
	if c.inflight != nil {
		c.inflight = errResult("canceling statement due to user request")
		c.readyAt = time.Now()
	}
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func errResult(msg string) *driver.Result {
	return &driver.Result{Status: driver.StatusError, ErrText: msg}
}
