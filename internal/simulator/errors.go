package simulator

import (
	"fmt"
	"net/http"
	"runtime"
)

// Error is a management API error. It is written as the
// {"error": {"code", "message"}} envelope clients expect.
type Error struct {
	Status   int    `json:"-"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	FileName string `json:"-"`
	Internal bool   `json:"-"`
}

type envelope struct {
	Error *Error `json:"error"`
}

// NewError constructs an error answered with status.
func NewError(status int, code, format string, args ...any) *Error {
	_, filename, line, _ := runtime.Caller(1)

	return &Error{
		Status:   status,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		FileName: fmt.Sprintf("%s:%d", filename, line),
	}
}

// newInternal wraps an error that must not reach the caller verbatim.
func newInternal(err error) *Error {
	_, filename, line, _ := runtime.Caller(1)

	return &Error{
		Status:   http.StatusInternalServerError,
		Code:     "InternalServerError",
		Message:  err.Error(),
		FileName: fmt.Sprintf("%s:%d", filename, line),
		Internal: true,
	}
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}
