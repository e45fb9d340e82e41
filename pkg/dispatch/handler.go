package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/illmade-knight/go-analytics-bridge/pkg/types"
)

// Outbound is an envelope ready to be handed to the bus. Frame holds the exact
// bytes to publish.
type Outbound struct {
	Envelope types.TopicEvent
	Frame    []byte
}

// NewOutbound wraps event in the publication frame.
func NewOutbound(event types.TopicEvent) (*Outbound, error) {
	frame, err := types.NewPublishFrame(event)
	if err != nil {
		return nil, err
	}
	return &Outbound{Envelope: event, Frame: frame}, nil
}

// Handler serves one request topic. It makes at most one external call and
// returns the envelope to publish, or nil when there is nothing to publish.
type Handler interface {
	Topic() string
	Handle(ctx context.Context, event types.TopicEvent) (*Outbound, error)
}

// Registry maps topic names to their handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds h. Registering a topic twice, or a topic outside the
// subscription set, is an error.
func (r *Registry) Register(h Handler) error {
	topic := h.Topic()
	if !IsSubscribed(topic) {
		return fmt.Errorf("%w: cannot register handler for %s", ErrUnknownTopic, topic)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[topic]; exists {
		return fmt.Errorf("handler for %s already registered", topic)
	}
	r.handlers[topic] = h
	return nil
}

// Lookup returns the handler for topic.
func (r *Registry) Lookup(topic string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[topic]
	return h, ok
}

// Topics lists the topics that have a handler.
func (r *Registry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}
