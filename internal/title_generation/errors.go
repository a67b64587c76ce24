package title_generation

import "errors"

// Kind classifies why a document could not be titled.
type Kind string

const (
	KindNoActiveDocument  Kind = "no_active_document"
	KindReadFailure       Kind = "read_failure"
	KindTransportError    Kind = "transport_error"
	KindMalformedResponse Kind = "malformed_response"
	KindEmptyTitle        Kind = "empty_title"
	KindRenameFailure     Kind = "rename_failure"
)

// Error is a failure of one document's generation. Error() returns the
// underlying message unchanged so it can be shown to the user as is.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors of the same kind, so errors.Is(err, ErrEmptyTitle)
// works for any wrapped EmptyTitle failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrNoActiveDocument  = &Error{Kind: KindNoActiveDocument}
	ErrReadFailure       = &Error{Kind: KindReadFailure}
	ErrTransport         = &Error{Kind: KindTransportError}
	ErrMalformedResponse = &Error{Kind: KindMalformedResponse}
	ErrEmptyTitle        = &Error{Kind: KindEmptyTitle}
	ErrRenameFailure     = &Error{Kind: KindRenameFailure}
)

// KindOf returns the Kind of err, or "" when err is not a generation failure.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
