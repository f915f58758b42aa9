package domain

import "fmt"

// NetworkError wraps a transport-level failure (no connectivity, timeout).
// Callers may fall back to cached data when they see one.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError carries a non-2xx upstream response verbatim.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server responded %d: %s", e.Status, e.Message)
}

// ValidationError is a synchronous rejection raised before any cart mutation
// or network call. It renders inline in the UI, so it is a value with a
// reason rather than control flow.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
