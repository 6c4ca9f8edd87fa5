// ABOUTME: Error kinds surfaced by the messenger core: validation, not found, already exists, store
// ABOUTME: Callers branch with errors.Is against the Err* sentinels or switch on KindOf

package apperr

import (
	"errors"
	"strings"
)

// Kind classifies an error for callers deciding how to react.
type Kind int

const (
	// Unknown is reported by KindOf for errors not created by this package.
	Unknown Kind = iota
	// Validation means a required input was missing or malformed; nothing was written.
	Validation
	// NotFound means a referenced user has no registered record.
	NotFound
	// AlreadyExists means a user key is already registered.
	AlreadyExists
	// Store means the backend failed; the operation may have partially applied.
	Store
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not found"
	case AlreadyExists:
		return "already exists"
	case Store:
		return "store"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. Any *Error of the same Kind matches.
var (
	ErrValidation    = &Error{Kind: Validation}
	ErrNotFound      = &Error{Kind: NotFound}
	ErrAlreadyExists = &Error{Kind: AlreadyExists}
	ErrStore         = &Error{Kind: Store}
)

// Error is a classified error. Op names the operation that failed
// (e.g. "directory.Register"), Msg describes the problem and Err is the cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.Msg != "" {
		parts = append(parts, e.Msg)
	} else if e.Err == nil {
		parts = append(parts, e.Kind.String())
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Invalid reports a validation failure.
func Invalid(op, msg string) error {
	return &Error{Kind: Validation, Op: op, Msg: msg}
}

// Missing reports that a referenced user does not exist.
func Missing(op, msg string) error {
	return &Error{Kind: NotFound, Op: op, Msg: msg}
}

// Exists reports that a user key is already registered.
func Exists(op, msg string) error {
	return &Error{Kind: AlreadyExists, Op: op, Msg: msg}
}

// StoreFailure wraps a backend error. It returns nil for a nil err and leaves
// errors that are already classified untouched.
func StoreFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != Unknown {
		return err
	}
	return &Error{Kind: Store, Op: op, Err: err}
}
