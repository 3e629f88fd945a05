package resolver

import "fmt"

// Kind classifies why a resolution failed.
type Kind string

// Failure kinds surfaced by Resolve.
const (
	KindValidation Kind = "validation"
	KindFetch      Kind = "fetch"
	KindNotFound   Kind = "not_found"
)

// Fixed failure messages returned to tool callers.
const (
	MsgUnsupportedURL = "Error: unsupported URL. Must be " + AllowedPrefix + "..."
	MsgFetchPrefix    = "Error: failed to fetch page: "
	MsgNotFound       = "Error: image URL not found."
)

// Error is the failure variant of a resolution. Message is the exact text handed back
// to callers; Err holds the underlying cause for fetch failures.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes the underlying fetch failure, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

func validationError() *Error {
	return &Error{Kind: KindValidation, Message: MsgUnsupportedURL}
}

func fetchError(err error) *Error {
	return &Error{Kind: KindFetch, Message: fmt.Sprintf("%s%v", MsgFetchPrefix, err), Err: err}
}

func notFoundError() *Error {
	return &Error{Kind: KindNotFound, Message: MsgNotFound}
}
