package roblox

import "fmt"

// InvalidCookieError reports that the session cookie was rejected
// (HTTP 401). The secret will not become valid on retry; the caller
// must re-authenticate with a new cookie.
type InvalidCookieError struct {
	StatusCode int
	URL        string
}

func (e *InvalidCookieError) Error() string {
	return fmt.Sprintf(
		"invalid security cookie suspected from %d response calling %s",
		e.StatusCode, e.URL,
	)
}

// RetryExhaustedError reports sustained upstream unavailability or
// rate-limiting: the retry ceiling was reached without a usable
// response. StatusCode is 0 when the last failure was at the transport
// level and never produced a status.
type RetryExhaustedError struct {
	URL        string
	Attempts   int
	StatusCode int
	Proxy      string
}

func (e *RetryExhaustedError) Error() string {
	msg := fmt.Sprintf("no valid response from %s after %d retries", e.URL, e.Attempts)
	if e.StatusCode == 0 {
		msg += " (last failure at transport level)"
	} else {
		msg += fmt.Sprintf(" (last status %d)", e.StatusCode)
	}
	if e.Proxy != "" {
		msg += " via proxy " + e.Proxy
	}
	return msg
}

// UnhandledResponseError reports an API response the client does not
// understand: an unexpected status code or a body that does not match
// the documented shape.
type UnhandledResponseError struct {
	StatusCode int
	URL        string
	Proxy      string
	Err        error
}

func (e *UnhandledResponseError) Error() string {
	msg := fmt.Sprintf("unhandled response %d calling %s", e.StatusCode, e.URL)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnhandledResponseError) Unwrap() error {
	return e.Err
}

// transportError marks a network-level failure (timeout, connection
// refused, truncated body). It never reaches callers directly; the
// request engine folds it into the retryable path.
type transportError struct {
	err error
}

func (e *transportError) Error() string {
	return "transport failure: " + e.err.Error()
}

func (e *transportError) Unwrap() error {
	return e.err
}
