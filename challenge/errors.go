package challenge

import (
	"errors"
	"fmt"
)

// Kind classifies challenge errors so callers can branch on them without
// parsing messages.
type Kind uint8

const (
	// KindUnknown is reported by KindOf for errors that are not *Error.
	KindUnknown Kind = iota
	// KindInvalidDocument covers missing or malformed challenge files and
	// missing local assets. Raised before any network call.
	KindInvalidDocument
	// KindInvalidDefinition covers required fields missing for create.
	KindInvalidDefinition
	// KindRemoteNotFound means the challenge has no counterpart on the remote.
	KindRemoteNotFound
	// KindRemoteOperation wraps a failed request against the remote.
	KindRemoteOperation
)

func (k Kind) String() string {
	switch k {
	case KindInvalidDocument:
		return "invalid document"
	case KindInvalidDefinition:
		return "invalid definition"
	case KindRemoteNotFound:
		return "remote challenge not found"
	case KindRemoteOperation:
		return "remote operation failed"
	default:
		return "unknown"
	}
}

// Error is the error type returned by the challenge and reconcile packages.
type Error struct {
	Kind      Kind
	Challenge string
	Err       error
}

func (e *Error) Error() string {
	if e.Challenge == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Challenge, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error of the given kind with a formatted cause.
func Errorf(kind Kind, challenge, format string, args ...any) error {
	return &Error{Kind: kind, Challenge: challenge, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a kind to err. A nil err stays nil, and an err that already
// carries a kind keeps it.
func Wrap(kind Kind, challenge string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	return &Error{Kind: kind, Challenge: challenge, Err: err}
}

// KindOf returns the kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}
