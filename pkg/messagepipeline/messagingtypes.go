package messagepipeline

import (
	"time"
)

// Message is the canonical, internal representation of a bus frame flowing
// through the pipeline. It contains the raw data, metadata, and acknowledgment handles.
type Message struct {
	MessageData

	// Attributes holds transport metadata (Pub/Sub attributes, MQTT topic, ...).
	Attributes map[string]string

	// Ack signals that the frame was handled and need not be redelivered.
	// Transports without redelivery use a no-op.
	Ack func()

	// Nack signals that handling failed.
	Nack func()
}

// MessageData holds the essential payload of a message.
type MessageData struct {
	// ID is the unique identifier of the frame. Transports that have no native
	// id assign a random one.
	ID string `json:"id"`

	// Payload is the raw frame as received.
	Payload []byte `json:"payload"`

	// PublishTime is when the frame was published, or received when the
	// transport does not report it.
	PublishTime time.Time `json:"publishTime"`
}

// noop is used for Ack and Nack on transports without acknowledgement.
func noop() {}

// NewMessage builds a Message whose Ack and Nack do nothing.
func NewMessage(id string, payload []byte, attributes map[string]string) Message {
	return Message{
		MessageData: MessageData{ID: id, Payload: payload, PublishTime: time.Now()},
		Attributes:  attributes,
		Ack:         noop,
		Nack:        noop,
	}
}
