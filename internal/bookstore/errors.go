package bookstore

import "fmt"

// OpError is a domain-level rejection: the request was well-formed but
// the store refused it (unknown customer, unknown book, not enough
// stock). The message is written for the oracle and, ultimately, the
// user — callers surface it as information, not as a fault.
type OpError struct {
	Msg string
}

// Error implements the error interface.
func (e *OpError) Error() string {
	return e.Msg
}

func opErrorf(format string, args ...any) *OpError {
	return &OpError{Msg: fmt.Sprintf(format, args...)}
}
