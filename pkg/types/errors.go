package types

import (
	"fmt"
)

// TransportError reports that an external collaborator could not be reached or
// did not answer in time. It covers network failures, timeouts, an open circuit
// breaker, media that cannot be opened and local tools that fail to run.
type TransportError struct {
	Collaborator string
	Err          error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure calling %s: %v", e.Collaborator, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// BackendError reports that a collaborator answered with something other than a
// usable 200 response.
type BackendError struct {
	Collaborator string
	Status       int
	Body         string
	// Reason is set when the status was 200 but the body could not be used.
	Reason string
}

func (e *BackendError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s returned status %d: %s", e.Collaborator, e.Status, e.Reason)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Collaborator, e.Status, e.Body)
}

// PersistenceError reports a failure writing durable bridge state.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
