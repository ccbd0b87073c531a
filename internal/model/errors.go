package model

import "fmt"

// Kind classifies an Error for HTTP/CLI status mapping.
type Kind int

const (
	ErrInvalid Kind = iota
	ErrNotFound
	ErrConflict
	ErrUnreadable
	ErrAborted
	ErrInternal
)

func (k Kind) String() string {
	switch k {
	case ErrInvalid:
		return "invalid"
	case ErrNotFound:
		return "not_found"
	case ErrConflict:
		return "conflict"
	case ErrUnreadable:
		return "unreadable"
	case ErrAborted:
		return "aborted"
	default:
		return "internal"
	}
}

// Error is Apollo's uniform domain error, carrying enough structure for
// both the CLI and the HTTP surface to render a consistent message
// without string-matching.
type Error struct {
	Kind   Kind
	Entity string
	Key    string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Entity != "" && e.Key != "":
		return fmt.Sprintf("%s %s %q: %s", e.Entity, e.Kind, e.Key, e.Detail)
	case e.Entity != "":
		return fmt.Sprintf("%s %s: %s", e.Entity, e.Kind, e.Detail)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound builds a not-found error for entity/key.
func NotFound(entity, key string) *Error {
	return &Error{Kind: ErrNotFound, Entity: entity, Key: key, Detail: "not found"}
}

// AlreadyExists builds a uniqueness-violation error.
func AlreadyExists(entity, key string) *Error {
	return &Error{Kind: ErrConflict, Entity: entity, Key: key, Detail: "already exists"}
}

// Unreadable builds an unreadable-file error (non-fatal within an import).
func Unreadable(path, detail string) *Error {
	return &Error{Kind: ErrUnreadable, Entity: "file", Key: path, Detail: detail}
}

// Aborted builds the fatal error an import pipeline returns when an
// on_import hook's Abort verdict terminates the run early.
func Aborted(reason string) *Error {
	return &Error{Kind: ErrAborted, Entity: "import", Detail: reason}
}

// Invalid builds a validation error for entity.
func Invalid(entity, detail string) *Error {
	return &Error{Kind: ErrInvalid, Entity: entity, Detail: detail}
}

// BadQuery builds a query-parse error.
func BadQuery(detail string) *Error {
	return &Error{Kind: ErrInvalid, Entity: "query", Detail: detail}
}

// Wrap annotates err with an internal-kind model.Error unless it already is one.
func Wrap(entity string, err error) error {
	if err == nil {
		return nil
	}
	if me, ok := err.(*Error); ok {
		return me
	}
	return &Error{Kind: ErrInternal, Entity: entity, Detail: err.Error(), Err: err}
}
