package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/adamwoolhether/quotaguard/client/throttle"
)

// Defaults used by [Client.ResourceURL] unless overridden.
const (
	DefaultEndpoint   = "https://management.azure.com"
	DefaultAPIVersion = "2021-04-01"
)

// maxErrBodySize bounds how much of an unexpected response is kept on the
// returned error.
const maxErrBodySize = 4 << 10 // 4KB

// execFn represents a func to operate on a response.
type execFn func(response *http.Response) error

var (
	// ErrUnexpectedStatusCode is the sentinel error wrapped by [UnexpectedStatusError].
	ErrUnexpectedStatusCode = errors.New("unexpected status code")
	// ErrAuthFailure is joined with [ErrUnexpectedStatusCode] on 401 and 403,
	// typically an expired token or a principal lacking the subscription role.
	ErrAuthFailure = errors.New("auth failure")
	// ErrMissingSubscription is returned when a subscription scoped call is
	// made without both a tenant and a subscription id.
	ErrMissingSubscription = errors.New("missing tenant or subscription id")
)

// UnexpectedStatusError is returned when the HTTP response status code
// does not match the expected value. Code and Message are filled from the
// management API error envelope when the body carries one.
type UnexpectedStatusError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
	Err        error
}

func (e *UnexpectedStatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%v: %d, %s: %s", e.Err, e.StatusCode, e.Code, e.Message)
	}

	return fmt.Sprintf("%v: %d, body: %s", e.Err, e.StatusCode, e.Body)
}

func (e *UnexpectedStatusError) Unwrap() error {
	return e.Err
}

// apiError is the error envelope returned by the resource management API:
//
//	{"error": {"code": "AuthorizationFailed", "message": "..."}}
type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newStatusError(statusCode int, body []byte) *UnexpectedStatusError {
	statusErr := ErrUnexpectedStatusCode
	if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		statusErr = fmt.Errorf("%w: %w", ErrAuthFailure, ErrUnexpectedStatusCode)
	}

	e := &UnexpectedStatusError{
		StatusCode: statusCode,
		Body:       string(body),
		Err:        statusErr,
	}

	var envelope apiError
	if json.Unmarshal(body, &envelope) == nil {
		e.Code = envelope.Error.Code
		e.Message = envelope.Error.Message
	}

	return e
}

// RetryAfter reports how long the caller should back off when err stems
// from a rejected 429. ok is false for any other error.
func RetryAfter(err error) (time.Duration, bool) {
	var rlErr *throttle.RateLimitError
	if !errors.As(err, &rlErr) {
		return 0, false
	}

	return rlErr.RetryAfter(), true
}
