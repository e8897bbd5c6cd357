// Package pqdriver adapts github.com/lib/pq to the pool's driver interface.
//
// lib/pq exposes a blocking database/sql/driver connection, so the async
// send/poll surface is bridged with one goroutine per in-flight statement and
// a cancelable context standing in for a server-side cancel request.
package pqdriver

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lib/pq"

	pooldrv "github.com/jasonkayzk/pgpool/driver"
)

// Driver opens PostgreSQL connections through lib/pq.
type Driver struct{}

// New returns a pool driver backed by lib/pq.
func New() pooldrv.Driver {
	return Driver{}
}

func (Driver) Connect(conninfo string, timeout time.Duration) (pooldrv.Conn, error) {
	dsn, err := buildDSN(conninfo, timeout)
	if err != nil {
		return nil, err
	}

	raw, err := pq.Driver{}.Open(dsn)
	if err != nil {
		return nil, err
	}
	q, ok := raw.(driver.QueryerContext)
	if !ok {
		_ = raw.Close()
		return nil, fmt.Errorf("pq connection does not support context queries")
	}
	return &conn{raw: raw, q: q}, nil
}

// operation is one statement running in its own goroutine.
type operation struct {
	done   chan struct{}
	cancel context.CancelFunc
	res    *pooldrv.Result
	err    error
}

type conn struct {
	raw    driver.Conn
	q      driver.QueryerContext
	op     *operation
	queue  []*pooldrv.Result
	bad    bool
	closed bool
}

func (c *conn) Status() pooldrv.Status {
	if c.bad || c.closed {
		return pooldrv.StatusBad
	}
	return pooldrv.StatusOK
}

func (c *conn) SendQuery(sql string) error {
	return c.send(sql)
}

// SendPrepare issues PREPARE as SQL. Supplied parameter type OIDs are
// translated to a SQL-level type list; an OID outside the known set drops the
// whole list back to server inference, since PREPARE cannot mix the two.
func (c *conn) SendPrepare(name, sql string, nParams int, paramTypes []uint32) error {
	return c.send(buildPrepare(name, sql, paramTypes))
}

func (c *conn) SendQueryPrepared(name string, params []string) error {
	return c.send(buildExecute(name, params))
}

// buildDSN normalizes a conninfo string (URL or key/value form) and folds a
// connect timeout in when the caller did not set one.
func buildDSN(conninfo string, timeout time.Duration) (string, error) {
	dsn := conninfo
	if strings.HasPrefix(conninfo, "postgres://") || strings.HasPrefix(conninfo, "postgresql://") {
		parsed, err := pq.ParseURL(conninfo)
		if err != nil {
			return "", err
		}
		dsn = parsed
	}
	if timeout > 0 && !strings.Contains(dsn, "connect_timeout") {
		secs := int(timeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		dsn = fmt.Sprintf("%s connect_timeout=%d", dsn, secs)
	}
	return dsn, nil
}

// typeNames maps the common pg_type OIDs onto SQL type names.
var typeNames = map[uint32]string{
	16:   "boolean",
	17:   "bytea",
	20:   "bigint",
	21:   "smallint",
	23:   "integer",
	25:   "text",
	114:  "json",
	700:  "real",
	701:  "double precision",
	1042: "character",
	1043: "character varying",
	1082: "date",
	1083: "time",
	1114: "timestamp",
	1184: "timestamp with time zone",
	1700: "numeric",
	2950: "uuid",
	3802: "jsonb",
}

func buildPrepare(name, sql string, paramTypes []uint32) string {
	var b strings.Builder
	b.WriteString("PREPARE ")
	b.WriteString(pq.QuoteIdentifier(name))
	if len(paramTypes) > 0 {
		types := make([]string, len(paramTypes))
		for i, oid := range paramTypes {
			tn, ok := typeNames[oid]
			if !ok {
				types = nil
				break
			}
			types[i] = tn
		}
		if types != nil {
			b.WriteString("(")
			b.WriteString(strings.Join(types, ", "))
			b.WriteString(")")
		}
	}
	b.WriteString(" AS ")
	b.WriteString(sql)
	return b.String()
}

func buildExecute(name string, params []string) string {
	var b strings.Builder
	b.WriteString("EXECUTE ")
	b.WriteString(pq.QuoteIdentifier(name))
	if len(params) > 0 {
		b.WriteString("(")
		for i, p := range params {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pq.QuoteLiteral(p))
		}
		b.WriteString(")")
	}
	return b.String()
}

func (c *conn) send(sql string) error {
	if c.closed {
		return errors.New("connection is closed")
	}
	if c.op != nil {
		return errors.New("another command is already in progress")
	}

	ctx, cancel := context.WithCancel(context.Background())
	op := &operation{done: make(chan struct{}), cancel: cancel}
	c.op = op

	go func() {
		defer close(op.done)
		defer cancel()
		rows, err := c.q.QueryContext(ctx, sql, nil)
		if err != nil {
			op.res, op.err = classifyErr(err)
			return
		}
		op.res, op.err = collect(rows)
	}()
	return nil
}

func (c *conn) PollReady(deadline time.Time) (bool, error) {
	if c.op == nil {
		return true, nil
	}
	if deadline.IsZero() {
		<-c.op.done
		return true, nil
	}
	wait := time.Until(deadline)
	if wait <= 0 {
		select {
		case <-c.op.done:
			return true, nil
		default:
			return false, nil
		}
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-c.op.done:
		return true, nil
	case <-t.C:
		return false, nil
	}
}

func (c *conn) ConsumeInput() error {
	return c.harvest()
}

func (c *conn) Busy() bool {
	_ = c.harvest()
	return c.op != nil
}

func (c *conn) NextResult() (*pooldrv.Result, error) {
	if err := c.harvest(); err != nil {
		return nil, err
	}
	if len(c.queue) == 0 {
		return nil, nil
	}
	res := c.queue[0]
	c.queue = c.queue[1:]
	return res, nil
}

// harvest moves a finished operation's outcome into the result queue.
func (c *conn) harvest() error {
	if c.op == nil {
		return nil
	}
	select {
	case <-c.op.done:
	default:
		return nil
	}
	op := c.op
	c.op = nil
	if op.err != nil {
		c.bad = true
		return op.err
	}
	c.queue = append(c.queue, op.res)
	return nil
}

func (c *conn) Cancel() error {
	if c.op != nil {
		c.op.cancel()
	}
	return nil
}

func (c *conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.op != nil {
		c.op.cancel()
	}
	return c.raw.Close()
}

// classifyErr separates server rejections (which become error results with
// the server message) from transport failures (which poison the connection).
func classifyErr(err error) (*pooldrv.Result, error) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &pooldrv.Result{Status: pooldrv.StatusError, ErrText: pqErr.Message}, nil
	}
	if errors.Is(err, context.Canceled) {
		return &pooldrv.Result{Status: pooldrv.StatusError, ErrText: "canceling statement due to user request"}, nil
	}
	return nil, err
}

// collect drains a row set into a text-format result. Statements without a
// result set come back as command acknowledgements.
func collect(rows driver.Rows) (*pooldrv.Result, error) {
	defer rows.Close()

	cols := rows.Columns()
	res := &pooldrv.Result{Columns: cols}
	if len(cols) == 0 {
		res.Status = pooldrv.StatusCommandOK
		return res, nil
	}

	res.Status = pooldrv.StatusTuplesOK
	vals := make([]driver.Value, len(cols))
	for {
		if err := rows.Next(vals); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return classifyErr(err)
		}
		row := make([]string, len(vals))
		for i, v := range vals {
			row[i] = text(v)
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

func text(v driver.Value) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case bool:
		if t {
			return "t"
		}
		return "f"
	default:
		return fmt.Sprint(t)
	}
}
