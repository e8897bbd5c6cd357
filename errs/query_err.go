package errs

/*
	A error type for a statement the server rejected

	Carries the server-provided message; the session stays reusable.
*/
type QueryErr struct {
	msg string
}

func (e QueryErr) Error() string {
	return e.msg
}

func NewQueryErr(cause string) QueryErr {
	return QueryErr{
		msg: cause,
	}
}

func IsQueryErr(e error) bool {
	_, ok := e.(QueryErr)
	return ok
}
