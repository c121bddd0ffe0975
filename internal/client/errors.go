// ABOUTME: Error classification for backend calls
// ABOUTME: Maps transport failures and HTTP statuses onto network, not-found, and server kinds

package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Use errors.Is to test a returned error against them.
var (
	// ErrNetwork means the backend could not be reached.
	ErrNetwork = errors.New("network error")
	// ErrNotFound means the backend answered 404, usually a stale or deleted conversation.
	ErrNotFound = errors.New("not found")
	// ErrServer means the backend answered with another non-2xx status or an unusable body.
	ErrServer = errors.New("server error")
)

// Error describes a failed backend call.
type Error struct {
	Kind       error  // ErrNetwork, ErrNotFound, or ErrServer
	Op         string // e.g. "list conversations"
	StatusCode int    // zero for network failures
	Message    string // backend-provided message, if any
	Err        error  // underlying cause, if any
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: %v (status %d): %s", e.Op, e.Kind, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: %v (status %d)", e.Op, e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// kindForStatus classifies a non-2xx HTTP status.
func kindForStatus(status int) error {
	if status == http.StatusNotFound {
		return ErrNotFound
	}
	return ErrServer
}

// IsRecoverable reports whether err is one of the classified transport
// failures. All of them are recoverable by the caller.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrServer)
}
