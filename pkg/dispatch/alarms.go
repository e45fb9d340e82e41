package dispatch

import (
	"context"
	"strconv"

	"github.com/illmade-knight/go-analytics-bridge/pkg/types"
)

type alarmRequest struct {
	Address    Scalar  `json:"Address" validate:"required"`
	Port       Scalar  `json:"Port" validate:"required"`
	WithinTime *Scalar `json:"Within Time"`
	DeviceName any     `json:"Device name"`
}

// AlarmHandler polls the alarm service and publishes the most probable alarm.
type AlarmHandler struct {
	poller AlarmPoller
}

// NewAlarmHandler creates an AlarmHandler.
func NewAlarmHandler(poller AlarmPoller) *AlarmHandler {
	return &AlarmHandler{poller: poller}
}

func (h *AlarmHandler) Topic() string { return TopicPublishAlarms }

func (h *AlarmHandler) Handle(ctx context.Context, event types.TopicEvent) (*Outbound, error) {
	var req alarmRequest
	if err := decodePayload(event.TopicName, event.Value, &req); err != nil {
		return nil, err
	}
	// Device name may be null but must be present.
	if _, ok := event.Value["Device name"]; !ok {
		return nil, &MissingFieldError{Topic: event.TopicName, Fields: []string{"Device name"}}
	}

	var within *float64
	if req.WithinTime != nil && *req.WithinTime != "" {
		minutes, err := strconv.ParseFloat(req.WithinTime.String(), 64)
		if err != nil {
			return nil, &MissingFieldError{Topic: event.TopicName, Fields: []string{"Within Time"}, Err: err}
		}
		within = &minutes
	}

	record, err := h.poller.Poll(ctx, req.Address.String(), req.Port.String(), within)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}

	return NewOutbound(types.TopicEvent{
		TopicName: TopicNetspotControlResults,
		TopicUUID: "AlarmResult",
		Value: map[string]any{
			"description": "Netspot alarms check results",
			"Device":      req.DeviceName,
			"Statistic":   record.Stat,
			"Status":      record.Status,
			"Probability": record.Probability,
			"Time":        record.Time,
		},
	})
}
