package summary

import "fmt"

// ValidationError reports a request that was rejected before any remote call,
// such as a prompt that references a placeholder the service cannot supply.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid summary request: " + e.Reason
}

// PersistenceError reports a summary that was generated but could not be saved.
// Record holds the generated result so callers can still show it.
type PersistenceError struct {
	Path   string
	Record *Record
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("summary generated but not saved to %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
