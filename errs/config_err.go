package errs

/*
	A error type for invalid pool configuration

	Raised at construction time only; no partial pool is retained.
*/
type ConfigErr struct {
	msg string
}

func (e ConfigErr) Error() string {
	return e.msg
}

func NewConfigErr(cause string) ConfigErr {
	return ConfigErr{
		msg: cause,
	}
}

func IsConfigErr(e error) bool {
	_, ok := e.(ConfigErr)
	return ok
}
