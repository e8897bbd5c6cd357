package errs

/*
	A error type for a failed connect or a failed validation round-trip

	The pool recovers from these internally by retry/replace; callers only
	see one when the pool has run out of ways to produce a usable session.
*/
type ConnectionErr struct {
	msg string
}

func (e ConnectionErr) Error() string {
	return e.msg
}

func NewConnectionErr(cause string) ConnectionErr {
	return ConnectionErr{
		msg: cause,
	}
}

func IsConnectionErr(e error) bool {
	_, ok := e.(ConnectionErr)
	return ok
}
