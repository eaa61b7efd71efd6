package state

import "fmt"

// WriteError reports a snapshot that could not be made durable.
type WriteError struct {
	Backend string
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s state: %v", e.Backend, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
