package pool

import (
	"time"

	"github.com/jasonkayzk/pgpool/driver"
	"github.com/jasonkayzk/pgpool/errs"
)

// drainResults clears anything left in the pipeline, e.g. from a prior
// operation that timed out before its results were read.
func drainResults(c driver.Conn) {
	for {
		res, err := c.NextResult()
		if err != nil || res == nil {
			return
		}
	}
}

// awaitCompletion waits until the in-flight operation finishes. timeout > 0
// bounds the wait; on expiry a best-effort server-side cancel is issued and
// TimeoutErr returned. The session is then in an indeterminate state and must
// be validated before reuse (the pool does this on the next acquire).
func awaitCompletion(c driver.Conn, timeout time.Duration) error {
	if timeout <= 0 {
		// No deadline: block until done.
		for {
			if _, err := c.PollReady(time.Time{}); err != nil {
				return errs.NewConnectionErr("wait for result: " + err.Error())
			}
			if err := c.ConsumeInput(); err != nil {
				return errs.NewConnectionErr("consume input: " + err.Error())
			}
			if !c.Busy() {
				return nil
			}
		}
	}

	deadline := time.Now().Add(timeout)
	for {
		ready, err := c.PollReady(deadline)
		if err != nil {
			return errs.NewConnectionErr("wait for result: " + err.Error())
		}
		if !ready {
			_ = c.Cancel()
			return errs.NewTimeoutErr("query execution timed out")
		}
		if err := c.ConsumeInput(); err != nil {
			return errs.NewConnectionErr("consume input: " + err.Error())
		}
		if !c.Busy() {
			return nil
		}
	}
}

// runStatement is the query-execution protocol: drain leftovers, dispatch
// without blocking, wait bounded by timeout, classify the first result and
// drain the rest of the pipeline before returning control of the session.
func runStatement(c driver.Conn, send func() error, timeout time.Duration) (*driver.Result, error) {
	drainResults(c)

	if err := send(); err != nil {
		return nil, errs.NewConnectionErr("dispatch: " + err.Error())
	}

	if err := awaitCompletion(c, timeout); err != nil {
		return nil, err
	}

	res, err := c.NextResult()
	if err != nil {
		return nil, errs.NewConnectionErr("retrieve result: " + err.Error())
	}
	if res == nil {
		return nil, errs.NewConnectionErr("no result received")
	}

	drainResults(c)

	if !res.Succeeded() {
		return nil, errs.NewQueryErr(res.ErrText)
	}
	return res, nil
}
