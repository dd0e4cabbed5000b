package bridge

import (
	"github.com/cockroachdb/errors"

	"github.com/eigerco/objstore/internal/idb"
)

var (
	// ErrNoBackend means no storage engine is available at all.
	ErrNoBackend = errors.New("no storage backend is available")
	// ErrNoConnection means the connection is missing or closed.
	ErrNoConnection = errors.New("connection is not open")
	// ErrAbort means the transaction was rolled back and none of the
	// batch's writes were applied.
	ErrAbort = errors.New("transaction aborted")

	// ErrInvalidAction and ErrUnknownOperation are raised as panics. They
	// mean the caller built a variant this package does not know:
	// ErrInvalidAction for upgrade actions, key paths and key ranges,
	// ErrUnknownOperation for commands.
	ErrInvalidAction    = errors.New("invalid action or key variant")
	ErrUnknownOperation = errors.New("unknown operation")
)

// NativeError is a named error reported by the storage engine, passed
// through without reinterpretation.
type NativeError struct {
	Name    string
	Message string
}

func (e *NativeError) Error() string {
	return e.Name + ": " + e.Message
}

// Is matches any *NativeError with the same name.
func (e *NativeError) Is(target error) bool {
	t, ok := target.(*NativeError)
	return ok && t.Name == e.Name
}

// translate maps the outermost engine error in err's chain onto a
// NativeError. Errors from outside the engine become UnknownError.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, idb.ErrNoBackend) {
		return ErrNoBackend
	}
	var e *idb.Error
	if errors.As(err, &e) {
		return &NativeError{Name: e.Name, Message: e.Message}
	}
	return &NativeError{Name: idb.UnknownError, Message: err.Error()}
}
