package errs

/*
	A error type for transaction misuse (double begin, commit without begin)

	A programmer-error signal, raised before any side effect.
*/
type IllegalStateErr struct {
	msg string
}

func (e IllegalStateErr) Error() string {
	return e.msg
}

func NewIllegalStateErr(cause string) IllegalStateErr {
	return IllegalStateErr{
		msg: cause,
	}
}

func IsIllegalStateErr(e error) bool {
	_, ok := e.(IllegalStateErr)
	return ok
}
