package integration

import (
	"errors"
	"fmt"
	"time"
)

// Error codes carried by *Error.
const (
	CodeNetwork       = "network"
	CodeTimeout       = "timeout"
	CodeRateLimited   = "rate_limited"
	CodeUnauthorized  = "auth_expired"
	CodeHTTP          = "http_error"
	CodeDecode        = "decode"
	CodeLoginBlocked  = "login_blocked"
	CodeCircuitOpen   = "circuit_open"
	CodeNotConfigured = "not_configured"
)

// Kind buckets an adapter failure by how callers should react to it.
type Kind string

const (
	KindTransient   Kind = "transient"
	KindAuthExpired Kind = "auth_expired"
	KindCredential  Kind = "unrecoverable_credential"
	KindValidation  Kind = "validation"
)

// Error is the single normalized failure returned by the adapter.
type Error struct {
	Status     int
	Code       string
	Response   string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("integration %s", e.Code)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	} else if e.Response != "" {
		msg = fmt.Sprintf("%s: %s", msg, truncate(e.Response, 300))
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Kind classifies the error.
func (e *Error) Kind() Kind {
	if e == nil {
		return KindTransient
	}
	switch e.Code {
	case CodeUnauthorized:
		return KindAuthExpired
	case CodeLoginBlocked:
		return KindCredential
	case CodeDecode, CodeNotConfigured:
		return KindValidation
	case CodeHTTP:
		if e.Status >= 400 && e.Status < 500 && e.Status != 429 {
			return KindValidation
		}
		return KindTransient
	default:
		return KindTransient
	}
}

// Retryable reports whether another attempt may succeed. Auth-expired
// errors count as transient once the single refresh has been spent.
func (e *Error) Retryable() bool {
	switch e.Kind() {
	case KindTransient, KindAuthExpired:
		return true
	default:
		return false
	}
}

// IsRateLimited reports whether err is an HTTP 429 from the remote side.
func IsRateLimited(err error) (*Error, bool) {
	var ie *Error
	if errors.As(err, &ie) && (ie.Code == CodeRateLimited || ie.Status == 429) {
		return ie, true
	}
	return nil, false
}

// KindOf returns the kind of err, treating foreign errors as transient.
func KindOf(err error) Kind {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind()
	}
	return KindTransient
}

// NotConfigured builds the validation error used when settings are missing.
func NotConfigured(what string) *Error {
	return &Error{Code: CodeNotConfigured, Err: errors.New(what)}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
