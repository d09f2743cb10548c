package device

import "fmt"

// ErrorCode is a numeric code as reported by LERR?
type ErrorCode int

// Error codes placed on the error queue
const (
	CodeNoError      ErrorCode = 0
	CodeIllegalValue ErrorCode = 10
	CodeIllegalLink  ErrorCode = 13
)

// Error is a recoverable device error. It never aborts a session; its code
// is queued for the client to read back with LERR?.
type Error struct {
	Code   ErrorCode
	Reason string
}

// Sentinels for errors.Is matching on the code alone
var (
	ErrIllegalValue = &Error{Code: CodeIllegalValue, Reason: "illegal value"}
	ErrIllegalLink  = &Error{Code: CodeIllegalLink, Reason: "illegal link"}
)

func newError(kind *Error, reason string) *Error {
	return &Error{Code: kind.Code, Reason: reason}
}

func (e *Error) Error() string {
	return fmt.Sprintf("device error %d: %s", e.Code, e.Reason)
}

// Is matches any device error carrying the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// String returns the message the real instrument shows for a code
func (c ErrorCode) String() string {
	switch c {
	case CodeNoError:
		return "status ok"
	case CodeIllegalValue:
		return "illegal value"
	case CodeIllegalLink:
		return "illegal link"
	default:
		return fmt.Sprintf("error %d", int(c))
	}
}
