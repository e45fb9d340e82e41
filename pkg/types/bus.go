package types

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// Wire keys used by the bus to discriminate frame variants.
const (
	// PersistentKey wraps inbound events that carry actionable data.
	PersistentKey = "Persistent"
	// RequestPostKey wraps outbound events submitted for publication.
	RequestPostKey = "RequestPostTopicUUID"
)

// TopicEvent is the envelope used for both inbound and outbound bus messages.
type TopicEvent struct {
	TopicName string         `json:"topic_name"`
	TopicUUID string         `json:"topic_uuid"`
	Value     map[string]any `json:"value"`
}

// Frame is a single JSON object exchanged with the bus. Exactly one of the
// variants is expected to be set; frames with no Persistent variant are not
// actionable.
type Frame struct {
	Persistent  *TopicEvent `json:"Persistent,omitempty"`
	RequestPost *TopicEvent `json:"RequestPostTopicUUID,omitempty"`
}

// NewPublishFrame wraps an outbound event in the publication variant and
// encodes it ready for the bus.
func NewPublishFrame(event TopicEvent) ([]byte, error) {
	data, err := json.Marshal(Frame{RequestPost: &event})
	if err != nil {
		return nil, fmt.Errorf("failed to encode publish frame for %s: %w", event.TopicName, err)
	}
	return data, nil
}

// DecodeFrame parses a raw bus frame. Numbers inside event values are kept as
// json.Number so their textual form survives re-encoding.
func DecodeFrame(data []byte) (*Frame, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var frame Frame
	if err := dec.Decode(&frame); err != nil {
		return nil, err
	}
	return &frame, nil
}
