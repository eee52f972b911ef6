package market

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable, machine-readable classification of a failure.
// Every error crossing a package boundary in the core carries one of these;
// transport-specific errors never leak past an adapter.
type ErrorKind string

const (
	ErrUnknownSource          ErrorKind = "unknown_source"
	ErrSymbolNotSupported     ErrorKind = "symbol_not_supported"
	ErrUnparsableSymbol       ErrorKind = "unparsable_symbol"
	ErrUnsupportedGranularity ErrorKind = "unsupported_granularity"
	ErrRateLimited            ErrorKind = "rate_limited"
	ErrUpstreamUnavailable    ErrorKind = "upstream_unavailable"
	ErrUpstreamProtocol       ErrorKind = "upstream_protocol_error"
	ErrDuplicateSource        ErrorKind = "duplicate_source"
)

// Error is the taxonomy error returned by the core. Two Errors match under
// errors.Is when their kinds are equal, so callers can branch on kind
// without string comparison.
type Error struct {
	Kind    ErrorKind
	Source  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Source != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Source, e.Message, e.Err)
	case e.Source != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Source, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewError builds a taxonomy error for the given source.
func NewError(kind ErrorKind, source, message string) *Error {
	return &Error{Kind: kind, Source: source, Message: message}
}

// Errorf builds a taxonomy error with a formatted message.
func Errorf(kind ErrorKind, source, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Source: source, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches an underlying cause to a taxonomy error.
func WrapError(kind ErrorKind, source string, err error, message string) *Error {
	return &Error{Kind: kind, Source: source, Message: message, Err: err}
}

// KindOf extracts the taxonomy kind from err, or "" when err does not carry
// one.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given taxonomy kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// IsValidation reports whether the error was produced before any network
// call: these failures must never consume a rate-limit token or touch the
// cache.
func IsValidation(err error) bool {
	switch KindOf(err) {
	case ErrUnknownSource, ErrSymbolNotSupported, ErrUnparsableSymbol, ErrUnsupportedGranularity:
		return true
	}
	return false
}
