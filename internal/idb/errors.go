package idb

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Error names reported by the engine. They mirror the DOMException names
// of the object-store API this engine models.
const (
	AbortError               = "AbortError"
	ConstraintError          = "ConstraintError"
	DataCloneError           = "DataCloneError"
	DataError                = "DataError"
	InvalidAccessError       = "InvalidAccessError"
	InvalidStateError        = "InvalidStateError"
	NotFoundError            = "NotFoundError"
	ReadOnlyError            = "ReadOnlyError"
	SyntaxError              = "SyntaxError"
	TransactionInactiveError = "TransactionInactiveError"
	UnknownError             = "UnknownError"
	VersionError             = "VersionError"
)

// Error is a named engine error.
type Error struct {
	Name    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	return e.Name + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error with the same name.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Name == e.Name && t.Message == ""
}

func newError(name, format string, args ...any) *Error {
	return &Error{Name: name, Message: fmt.Sprintf(format, args...)}
}

// wrapError names an error bubbling up from the KV layer. Engine errors
// pass through unchanged.
func wrapError(name string, err error, format string, args ...any) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Name: name, Message: fmt.Sprintf(format, args...) + ": " + err.Error(), cause: err}
}

// ErrorName returns the name of the outermost engine error in err's chain,
// or "" if there is none.
func ErrorName(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Name
	}
	return ""
}

// Named returns a target for errors.Is that matches every engine error
// with the given name.
func Named(name string) error {
	return &Error{Name: name}
}
