package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrStoreMissing = errors.New("pokedex store not found; run `pokedex refresh` first")
)

// Kind classifies a failure raised while answering a question.
// Every kind except TransportFailed and Aborted is handed back to the model
// as a tool result so it can correct itself.
type Kind string

const (
	KindForbidden        Kind = "forbidden"
	KindQueryFailed      Kind = "query_failed"
	KindTimeout          Kind = "timeout"
	KindEvalFailed       Kind = "eval_failed"
	KindUnknownTool      Kind = "unknown_tool"
	KindInvalidArguments Kind = "invalid_arguments"
	KindTransportFailed  Kind = "transport_failed"
	KindAborted          Kind = "aborted"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrForbidden        = &Error{Kind: KindForbidden}
	ErrQueryFailed      = &Error{Kind: KindQueryFailed}
	ErrTimeout          = &Error{Kind: KindTimeout}
	ErrEvalFailed       = &Error{Kind: KindEvalFailed}
	ErrUnknownTool      = &Error{Kind: KindUnknownTool}
	ErrInvalidArguments = &Error{Kind: KindInvalidArguments}
	ErrTransportFailed  = &Error{Kind: KindTransportFailed}
	ErrAborted          = &Error{Kind: KindAborted}
)

// Error is a classified failure with a message safe to show to the model.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the bare sentinel for e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Cause == nil && t.Kind == e.Kind
}

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a classified error around cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// MessageOf returns the model-facing message for err.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}

// Recoverable reports whether a failure of this kind goes back to the model
// instead of ending the turn.
func (k Kind) Recoverable() bool {
	return k != KindTransportFailed && k != KindAborted
}
