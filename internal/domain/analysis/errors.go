package analysis

import (
	"errors"
	"fmt"
)

// Kind discriminates analysis failures so the batch scheduler can decide
// between retrying a record, failing it terminally, or aborting the run.
type Kind int

const (
	// KindTransport covers network failures, timeouts and 5xx responses.
	KindTransport Kind = iota
	// KindRateLimited is an explicit throttle signal (HTTP 429).
	KindRateLimited
	// KindInvalidResponse means the model answered but the three fields
	// could not be extracted. Re-prompting may succeed.
	KindInvalidResponse
	// KindInvalidRequest is a malformed request (4xx other than auth or
	// rate limit). Retrying the same payload cannot succeed.
	KindInvalidRequest
	// KindAuth means the credential is rejected (401/403). Fatal for the
	// whole run: every subsequent call would fail the same way.
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindRateLimited:
		return "rate_limited"
	case KindInvalidResponse:
		return "invalid_response"
	case KindInvalidRequest:
		return "invalid_request"
	case KindAuth:
		return "auth"
	}
	return "unknown"
}

// Error is the typed failure returned by the analysis client.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether another attempt on the same record makes sense.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTransport, KindRateLimited, KindInvalidResponse:
		return true
	}
	return false
}

// NewError builds a typed failure.
func NewError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// IsRetryable classifies an arbitrary error; unknown errors are treated as
// transport failures and retried.
func IsRetryable(err error) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Retryable()
	}
	return true
}

// IsAuth reports whether err is the fatal credential failure.
func IsAuth(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == KindAuth
}
