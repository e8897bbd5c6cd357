package errs

/*
	A error type for an acquire or query that exceeded its deadline

	Always recoverable by the caller; shared state is never corrupted.
*/
type TimeoutErr struct {
	msg string
}

func (e TimeoutErr) Error() string {
	return e.msg
}

func NewTimeoutErr(cause string) TimeoutErr {
	return TimeoutErr{
		msg: cause,
	}
}

func IsTimeoutErr(e error) bool {
	_, ok := e.(TimeoutErr)
	return ok
}
