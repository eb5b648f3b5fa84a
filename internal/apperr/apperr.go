// Package apperr defines the error taxonomy shared by the playlist
// coordinator, the authorization gate and the transports.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for callers. Transports map kinds to status codes.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindUnauthorized
	KindInvalidArgument
	KindConflict
	KindBroadcastFailed
)

// Code is the machine-readable form of a Kind sent to clients.
func (k Kind) Code() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindUnauthorized:
		return "UNAUTHORIZED"
	case KindInvalidArgument:
		return "INVALID_ARGUMENT"
	case KindConflict:
		return "CONFLICT"
	case KindBroadcastFailed:
		return "BROADCAST_FAILED"
	default:
		return "INTERNAL"
	}
}

// HTTPStatus returns the status used by the HTTP API for this kind.
// BroadcastFailed is not an HTTP failure: the mutation committed.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindBroadcastFailed:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified error. Sentinel values are compared by identity, so
// errors.Is(err, ErrX) works through any amount of %w wrapping.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns a classified error without a cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap classifies cause under kind.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// KindOf returns the kind of the outermost classified error in err's chain,
// or KindInternal when nothing in the chain is classified.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Message returns a client-safe message for err. Unclassified errors are
// reported generically so internal details do not leak.
func Message(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Msg
	}
	return "internal error"
}
