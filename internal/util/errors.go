package util

import (
	"errors"
	"fmt"
)

// Kind classifies a failure the way the console surfaces it to the operator
type Kind string

const (
	// KindAuth is a 401 from any call. The token has already been purged.
	KindAuth Kind = "auth"

	// KindValidation is a client-side precondition failure. It never reaches the network.
	KindValidation Kind = "validation"

	// KindConflict is a server rejection of a mutation (4xx other than 401)
	KindConflict Kind = "conflict"

	// KindUnavailable is a network failure or a 5xx. Retry is manual.
	KindUnavailable Kind = "unavailable"

	// KindBusy is a coordinator rejecting a duplicate action
	KindBusy Kind = "busy"

	// KindSoftWarning is a non-fatal anomaly after a successful mutation
	KindSoftWarning Kind = "soft_warning"
)

// Sentinel errors for common failure modes
var (
	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnsupported indicates a file format or operation is not supported
	ErrUnsupported = errors.New("unsupported")
)

// Error is the {kind, message} pair every coordinator boundary produces
type Error struct {
	Kind    Kind
	Message string
	Status  int   // HTTP status when the error came from the gateway, 0 otherwise
	Err     error // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so errors.Is(err, Busy("")) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// NewError builds an *Error of the given kind
func NewError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a kind and message to an underlying error
func WrapError(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Validation returns a validation error
func Validation(format string, args ...interface{}) *Error {
	return NewError(KindValidation, format, args...)
}

// Busy returns a busy error naming the rejected action
func Busy(action string) *Error {
	if action == "" {
		return &Error{Kind: KindBusy}
	}
	return NewError(KindBusy, "%s already in progress", action)
}

// SoftWarning returns a soft warning wrapping the post-success failure
func SoftWarning(err error, format string, args ...interface{}) *Error {
	return WrapError(KindSoftWarning, err, format, args...)
}

// KindOf reports the kind of err, or "" when err is not an *Error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
