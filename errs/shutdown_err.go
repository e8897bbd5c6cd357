package errs

/*
	A error type for an operation attempted during or after pool teardown

	ShutdownErr is the error resulting if the pool is destroyed via pool.Destroy()
*/
type ShutdownErr struct {
	msg string
}

func (e ShutdownErr) Error() string {
	return e.msg
}

func NewDefaultShutdownErr() ShutdownErr {
	return NewShutdownErr("pool is shutting down")
}

func NewShutdownErr(cause string) ShutdownErr {
	return ShutdownErr{
		msg: cause,
	}
}

func IsShutdownErr(e error) bool {
	_, ok := e.(ShutdownErr)
	return ok
}
