package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/illmade-knight/go-analytics-bridge/pkg/types"
)

var (
	// ErrDecode marks an inbound frame that is not valid JSON.
	ErrDecode = errors.New("malformed bus frame")
	// ErrUnknownTopic marks an event whose topic is not subscribed.
	ErrUnknownTopic = errors.New("topic not subscribed")
	// ErrMissingField is matched by every *MissingFieldError.
	ErrMissingField = errors.New("required field missing")
)

// The collaborator errors live in pkg/types so the leaf clients can raise them.
type (
	TransportError   = types.TransportError
	BackendError     = types.BackendError
	PersistenceError = types.PersistenceError
)

// MissingFieldError lists the payload fields a handler needed but could not use.
type MissingFieldError struct {
	Topic  string
	Fields []string
	Err    error
}

func (e *MissingFieldError) Error() string {
	msg := fmt.Sprintf("%s: missing or invalid fields [%s]", e.Topic, strings.Join(e.Fields, ", "))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MissingFieldError) Is(target error) bool { return target == ErrMissingField }

func (e *MissingFieldError) Unwrap() error { return e.Err }
