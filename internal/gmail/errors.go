package gmail

import (
	"errors"
	"fmt"
)

// ErrKind partitions failures so callers branch deterministically instead
// of string-matching messages.
type ErrKind int

const (
	// KindAuth: credential missing, invalid, or revoked. Never retried;
	// the account needs a fresh interactive grant.
	KindAuth ErrKind = iota
	// KindNotFound: account, label, message, draft, or filter absent.
	KindNotFound
	// KindValidation: rejected before any network call.
	KindValidation
	// KindRateLimit: the service asked us to slow down. Retryable.
	KindRateLimit
	// KindTransient: temporary server-side failure. Retryable.
	KindTransient
	// KindPermanent: surfaced immediately, no retry.
	KindPermanent
)

func (k ErrKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindRateLimit:
		return "rate_limit"
	case KindTransient:
		return "transient"
	default:
		return "permanent"
	}
}

// Error carries a failure kind alongside the wrapped cause.
type Error struct {
	Kind ErrKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a kind and message.
func NewError(kind ErrKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// AuthError marks a credential failure requiring re-authorization.
func AuthError(msg string, err error) *Error { return NewError(KindAuth, msg, err) }

// NotFoundError marks an absent resource, naming it.
func NotFoundError(msg string, err error) *Error { return NewError(KindNotFound, msg, err) }

// ValidationError marks input rejected before any network call.
func ValidationError(format string, args ...any) *Error {
	return NewError(KindValidation, fmt.Sprintf(format, args...), nil)
}

// KindOf classifies err, defaulting to KindPermanent for anything that is
// not a *Error.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindPermanent
}

// IsRetryable reports whether err may succeed on retry.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimit, KindTransient:
		return true
	}
	return false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
