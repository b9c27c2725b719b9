package models

import "errors"

// Kind classifies an Error.
type Kind int

const (
	KindUnknown Kind = iota
	// KindAuth means the credential is missing or was rejected.
	KindAuth
	// KindSession means the payment session reference is missing.
	KindSession
	// KindRemote means a remote service answered with a non-success status.
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindSession:
		return "session"
	case KindRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Error is the error type surfaced by the clients and services.
// Message is what a user should see; for remote errors it is the server's text.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String() + " error"
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrAuth) works
// regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Status == 0
}

// Sentinels for errors.Is.
var (
	ErrAuth    = &Error{Kind: KindAuth}
	ErrSession = &Error{Kind: KindSession}
	ErrRemote  = &Error{Kind: KindRemote}
	ErrUnknown = &Error{Kind: KindUnknown}
)

func AuthError(msg string) *Error {
	return &Error{Kind: KindAuth, Message: msg}
}

func SessionError(msg string) *Error {
	return &Error{Kind: KindSession, Message: msg}
}

// RemoteError builds a remote error from a response body, falling back to
// fallback when the server sent no text.
func RemoteError(status int, body, fallback string) *Error {
	msg := body
	if msg == "" {
		msg = fallback
	}
	return &Error{Kind: KindRemote, Status: status, Message: msg}
}

// UnknownError wraps a failure that is not one of the known kinds.
func UnknownError(err error) *Error {
	return &Error{Kind: KindUnknown, Message: "an unknown error occurred", Err: err}
}

// KindOf returns the Kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

