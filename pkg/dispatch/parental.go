package dispatch

import (
	"context"

	"github.com/illmade-knight/go-analytics-bridge/pkg/backends"
	"github.com/illmade-knight/go-analytics-bridge/pkg/media"
	"github.com/illmade-knight/go-analytics-bridge/pkg/types"
)

type parentalControlRequest struct {
	FileName         Scalar `json:"file_name" validate:"required"`
	PrivacyParameter Scalar `json:"Privacy_Parameter" validate:"required"`
	Requestor
}

// ParentalControlHandler has a file scanned for content unsuitable for children.
type ParentalControlHandler struct {
	backends backends.Caller
	media    media.Source
	base     string
}

func (h *ParentalControlHandler) Topic() string { return TopicParentalControl }

func (h *ParentalControlHandler) Handle(ctx context.Context, event types.TopicEvent) (*Outbound, error) {
	var req parentalControlRequest
	if err := decodePayload(event.TopicName, event.Value, &req); err != nil {
		return nil, err
	}

	segments := append([]string{"file_estimation", req.FileName.String(), req.PrivacyParameter.String()}, req.segments()...)
	resp, err := postMedia(ctx, h.backends, h.media, BackendParentalControl, endpoint(h.base, segments...), nil,
		upload{field: "file", name: req.FileName.String()})
	if err != nil {
		return nil, err
	}
	return passthrough(BackendParentalControl, resp.Body)
}
