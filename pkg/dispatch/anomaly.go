package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/illmade-knight/go-analytics-bridge/pkg/backends"
	"github.com/illmade-knight/go-analytics-bridge/pkg/media"
	"github.com/illmade-knight/go-analytics-bridge/pkg/types"
)

type audioAnomalyRequest struct {
	AudioFile Scalar `json:"audio_file" validate:"required"`
	Requestor
	Method Scalar `json:"method" validate:"required"`
}

// audioAnomalyEchoFields are copied from the backend reply into the result.
var audioAnomalyEchoFields = []string{
	"requestor_id", "requestor_type", "request_id", "analyzer_id", "analysis_id", "audio_file", "method",
}

// AudioAnomalyHandler sends an audio clip to the anomaly model and reshapes the
// prediction into a result envelope.
type AudioAnomalyHandler struct {
	backends backends.Caller
	media    media.Source
	base     string
}

func (h *AudioAnomalyHandler) Topic() string { return TopicAudioAnomalyDetection }

func (h *AudioAnomalyHandler) Handle(ctx context.Context, event types.TopicEvent) (*Outbound, error) {
	var req audioAnomalyRequest
	if err := decodePayload(event.TopicName, event.Value, &req); err != nil {
		return nil, err
	}

	segments := append([]string{"model", "predict", req.AudioFile.String(), req.Method.String()}, req.segments()...)
	resp, err := postMedia(ctx, h.backends, h.media, BackendAudioAnomaly, endpoint(h.base, segments...), nil,
		upload{field: "audio", name: req.AudioFile.String(), fileName: "sample1.wav", contentType: "audio/wav"})
	if err != nil {
		return nil, err
	}

	var reply map[string]any
	dec := json.NewDecoder(bytes.NewReader(resp.Body))
	dec.UseNumber()
	if err := dec.Decode(&reply); err != nil {
		return nil, &BackendError{Collaborator: BackendAudioAnomaly, Status: resp.Status, Body: string(resp.Body), Reason: "malformed prediction"}
	}

	var missing []string
	value := map[string]any{"description": "Speech Recognition Results"}
	for _, key := range audioAnomalyEchoFields {
		v, ok := reply[key]
		if !ok {
			missing = append(missing, key)
			continue
		}
		value[key] = stringify(v)
	}
	predictions, ok := reply["predictions"]
	if !ok {
		missing = append(missing, "predictions")
	}
	if len(missing) > 0 {
		return nil, &BackendError{
			Collaborator: BackendAudioAnomaly,
			Status:       resp.Status,
			Body:         string(resp.Body),
			Reason:       fmt.Sprintf("prediction lacks %s", strings.Join(missing, ", ")),
		}
	}
	value["predictions"] = predictions

	return NewOutbound(types.TopicEvent{
		TopicName: TopicAudioAnomalyDetectionResult,
		TopicUUID: "Audio_Anomaly_Detection_Results",
		Value:     value,
	})
}

type deviceAnomalyRequest struct {
	Temperatures []Scalar `json:"Temperatures" validate:"required,min=1"`
	Requestor
}

// DeviceAnomalyHandler asks the device model whether a series of temperature
// readings is anomalous.
type DeviceAnomalyHandler struct {
	backends backends.Caller
	base     string
}

func (h *DeviceAnomalyHandler) Topic() string { return TopicDeviceAnomalyDetection }

func (h *DeviceAnomalyHandler) Handle(ctx context.Context, event types.TopicEvent) (*Outbound, error) {
	var req deviceAnomalyRequest
	if err := decodePayload(event.TopicName, event.Value, &req); err != nil {
		return nil, err
	}

	readings := make([]string, len(req.Temperatures))
	for i, t := range req.Temperatures {
		readings[i] = t.String()
	}
	segments := append([]string{"temperature", strings.Join(readings, " ")}, req.segments()...)

	resp, err := h.backends.Get(ctx, BackendDeviceAnomaly, endpoint(h.base, segments...))
	if err != nil {
		return nil, err
	}
	return passthrough(BackendDeviceAnomaly, resp.Body)
}
