package dispatch

import (
	"context"

	"github.com/illmade-knight/go-analytics-bridge/pkg/types"
)

type audRequest struct {
	Request Scalar `json:"Request" validate:"required"`
}

// AUDHandler forwards a request to the AUD manager through a local tool and
// publishes whatever the tool printed.
type AUDHandler struct {
	tools   ToolInvoker
	command []string
}

// NewAUDHandler creates an AUDHandler. command may reference {request}.
func NewAUDHandler(tools ToolInvoker, command []string) *AUDHandler {
	return &AUDHandler{tools: tools, command: command}
}

func (h *AUDHandler) Topic() string { return TopicAUDManager }

func (h *AUDHandler) Handle(ctx context.Context, event types.TopicEvent) (*Outbound, error) {
	var req audRequest
	if err := decodePayload(event.TopicName, event.Value, &req); err != nil {
		return nil, err
	}

	out, err := h.tools.Invoke(ctx, "aud", h.command, map[string]string{"request": req.Request.String()})
	if err != nil {
		return nil, err
	}

	return NewOutbound(types.TopicEvent{
		TopicName: TopicAUDManagerResults,
		TopicUUID: "AUD_Manager_Results",
		Value: map[string]any{
			"description": "AUD Manager Results",
			"Request":     req.Request.String(),
			"Results":     out,
		},
	})
}
