package aegis

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorKind is the normalized category of a failure. Every error returned by the
// dispatcher carries exactly one kind.
type ErrorKind string

const (
	// KindInvalidRequest means the input was malformed; fix it, do not retry.
	KindInvalidRequest ErrorKind = "invalid_request"
	// KindMissingCredentials means no key could be resolved for the provider.
	KindMissingCredentials ErrorKind = "missing_credentials"
	// KindNetwork covers transport failures such as timeouts, DNS and resets.
	KindNetwork ErrorKind = "network"
	// KindProtocol means the response did not match the provider schema.
	KindProtocol ErrorKind = "protocol_error"
	// KindRateLimited means the provider is throttling the caller.
	KindRateLimited ErrorKind = "rate_limited"
	// KindProviderUnavailable means the provider reported a server-side failure.
	KindProviderUnavailable ErrorKind = "provider_unavailable"
	// KindUnauthorized means the provider rejected the credentials.
	KindUnauthorized ErrorKind = "unauthorized"
)

// Retryable reports whether a call that failed with this kind may be retried.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindNetwork, KindRateLimited, KindProviderUnavailable:
		return true
	default:
		return false
	}
}

// Sentinels for errors.Is matching by kind.
var (
	ErrInvalidRequest      = &Error{Kind: KindInvalidRequest}
	ErrMissingCredentials  = &Error{Kind: KindMissingCredentials}
	ErrNetwork             = &Error{Kind: KindNetwork}
	ErrProtocol            = &Error{Kind: KindProtocol}
	ErrRateLimited         = &Error{Kind: KindRateLimited}
	ErrProviderUnavailable = &Error{Kind: KindProviderUnavailable}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized}
)

// Error represents a failure normalized across providers.
type Error struct {
	Kind       ErrorKind `json:"kind"`
	Provider   Provider  `json:"provider,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Message    string    `json:"message"`
	// RetryAfter is the provider's requested delay, when it sent one.
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	// Raw is the provider's error body, kept for debugging only.
	Raw   []byte `json:"-"`
	Cause error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Provider.Valid() {
		b.WriteString(" (")
		b.WriteString(e.Provider.String())
		if e.StatusCode != 0 {
			b.WriteString(" http ")
			b.WriteString(strconv.Itoa(e.StatusCode))
		}
		b.WriteString(")")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, " (caused by: %v)", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same kind, so the Err* sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Retryable reports whether the call may be retried by the caller.
func (e *Error) Retryable() bool {
	return e.Kind.Retryable()
}

func newError(kind ErrorKind, p Provider, message string) *Error {
	return &Error{Kind: kind, Provider: p, Message: message}
}

func newErrorf(kind ErrorKind, p Provider, format string, args ...any) *Error {
	return &Error{Kind: kind, Provider: p, Message: fmt.Sprintf(format, args...)}
}

// NewNetworkError wraps a transport failure.
func NewNetworkError(p Provider, err error) *Error {
	return &Error{Kind: KindNetwork, Provider: p, Message: "request failed", Cause: err}
}

// NewProtocolError reports a response that could not be understood.
func NewProtocolError(p Provider, message string, err error) *Error {
	return &Error{Kind: KindProtocol, Provider: p, Message: message, Cause: err}
}

// NewMissingCredentialsError reports that no key is configured for p.
func NewMissingCredentialsError(p Provider) *Error {
	return &Error{
		Kind:     KindMissingCredentials,
		Provider: p,
		Message:  fmt.Sprintf("no API key configured for %s", p),
	}
}

// AsError returns the *Error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or "" when err is nil. Errors that did not
// originate in this package are reported as KindProtocol.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return KindProtocol
}

// IsRetryableError checks if the error is retryable
func IsRetryableError(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable()
	}
	return false
}

// IsAuthenticationError checks if the error is authentication-related
func IsAuthenticationError(err error) bool {
	k := KindOf(err)
	return k == KindUnauthorized || k == KindMissingCredentials
}

// Describe renders a human-readable line for err, suitable for end users.
// It never contains credentials or the raw provider payload.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	e, ok := AsError(err)
	if !ok {
		return "unexpected error: " + err.Error()
	}

	var hint string
	switch e.Kind {
	case KindInvalidRequest:
		hint = "invalid request"
	case KindMissingCredentials:
		hint = "missing API key"
	case KindNetwork:
		hint = "network error, please try again"
	case KindProtocol:
		hint = "unexpected response from provider"
	case KindRateLimited:
		hint = "rate limit exceeded, retry later"
		if e.RetryAfter > 0 {
			hint = fmt.Sprintf("rate limit exceeded, retry after %v", e.RetryAfter)
		}
	case KindProviderUnavailable:
		hint = "provider unavailable, retry later"
	case KindUnauthorized:
		hint = "invalid API key"
	default:
		hint = string(e.Kind)
	}

	if e.Provider.Valid() {
		hint = e.Provider.String() + ": " + hint
	}
	if e.Message != "" && e.Kind != KindNetwork {
		hint += " (" + e.Message + ")"
	}
	return hint
}

// classifyStatus maps an HTTP status to a kind. It is shared by all adapters.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusBadRequest, status == http.StatusNotFound,
		status == http.StatusRequestEntityTooLarge, status == http.StatusUnprocessableEntity:
		return KindInvalidRequest
	case status == http.StatusRequestTimeout, status >= 500 && status <= 599:
		return KindProviderUnavailable
	default:
		return KindProtocol
	}
}

// statusError builds the normalized error for a non-2xx response. The body is kept
// in Raw only; message is the provider's human-readable text, if it had one.
func statusError(p Provider, resp *WireResponse, kind ErrorKind, message string) *Error {
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	e := &Error{
		Kind:       kind,
		Provider:   p,
		StatusCode: resp.StatusCode,
		Message:    message,
		Raw:        append([]byte(nil), resp.Body...),
	}
	if kind == KindRateLimited {
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	}
	return e
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
