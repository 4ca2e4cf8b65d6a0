// Package ragerr defines the categorized error kinds shared by every
// component of the retrieval-augmented question-answering engine. Retry,
// fallback, and HTTP-boundary status mapping all key off Kind rather than
// inspecting error strings.
package ragerr

import (
	"errors"
	"fmt"
)

// Kind categorizes a failure so callers can decide whether to retry, fall
// back, or surface it to the user without inspecting error text.
type Kind string

const (
	ConfigMissing Kind = "config_missing"
	Transport     Kind = "transport"
	RateLimited   Kind = "rate_limited"
	ProviderHTTP  Kind = "provider_http"
	Parse         Kind = "parse"
	NotFound      Kind = "not_found"
	Cancelled     Kind = "cancelled"
	Validation    Kind = "validation"
)

// Error is the categorized error type propagated across package boundaries.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int    // set when Kind == ProviderHTTP or RateLimited
	BodyPreview string // truncated response body, set when Kind == ProviderHTTP
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, ragerr.New(kind, "")) match on Kind alone.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func HTTPStatus(code int, body string) *Error {
	kind := ProviderHTTP
	if code == 429 || code == 503 || code == 529 {
		kind = RateLimited
	}
	preview := body
	if len(preview) > 500 {
		preview = preview[:500]
	}
	return &Error{Kind: kind, Message: fmt.Sprintf("http %d", code), StatusCode: code, BodyPreview: preview}
}

// Of returns the Kind of err, or "" when err is not (or does not wrap) a
// *ragerr.Error.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err's Kind is k.
func Is(err error, k Kind) bool {
	return Of(err) == k
}
