package dispatch

import (
	"context"
	"strings"

	"github.com/illmade-knight/go-analytics-bridge/pkg/backends"
	"github.com/illmade-knight/go-analytics-bridge/pkg/media"
	"github.com/illmade-knight/go-analytics-bridge/pkg/types"
)

type objectRecognitionRequest struct {
	// FilePath is part of the request contract but media is always resolved by name.
	FilePath    Scalar `json:"file_path" validate:"required"`
	FileName    Scalar `json:"file_name" validate:"required"`
	Epsilon     Scalar `json:"epsilon" validate:"required"`
	Sensitivity Scalar `json:"sensitivity" validate:"required"`
	Requestor
}

// ObjectRecognitionHandler runs differentially private object recognition on a file.
type ObjectRecognitionHandler struct {
	backends backends.Caller
	media    media.Source
	base     string
}

func (h *ObjectRecognitionHandler) Topic() string { return TopicObjectRecognition }

func (h *ObjectRecognitionHandler) Handle(ctx context.Context, event types.TopicEvent) (*Outbound, error) {
	var req objectRecognitionRequest
	if err := decodePayload(event.TopicName, event.Value, &req); err != nil {
		return nil, err
	}

	segments := append([]string{"file_object", req.FileName.String(), req.Epsilon.String(), req.Sensitivity.String()}, req.segments()...)
	resp, err := postMedia(ctx, h.backends, h.media, BackendObjectRecognition, endpoint(h.base, segments...), nil,
		upload{field: "file", name: req.FileName.String()})
	if err != nil {
		return nil, err
	}
	return passthrough(BackendObjectRecognition, resp.Body)
}

type faceRecognitionRequest struct {
	FileName         Scalar `json:"file_name" validate:"required"`
	DatabasePath     Scalar `json:"database_path" validate:"required"`
	PrivacyParameter Scalar `json:"privacy_parameter" validate:"required"`
	Requestor
}

// FaceRecognitionHandler matches faces in a file against a face database held
// by the recognition service.
type FaceRecognitionHandler struct {
	backends backends.Caller
	media    media.Source
	base     string
}

func (h *FaceRecognitionHandler) Topic() string { return TopicFaceRecognition }

func (h *FaceRecognitionHandler) Handle(ctx context.Context, event types.TopicEvent) (*Outbound, error) {
	var req faceRecognitionRequest
	if err := decodePayload(event.TopicName, event.Value, &req); err != nil {
		return nil, err
	}

	segments := append([]string{"check_directory", req.FileName.String(), req.PrivacyParameter.String()}, req.segments()...)
	// The database path travels as a file part named "path", not a form field.
	resp, err := postMedia(ctx, h.backends, h.media, BackendFaceRecognition, endpoint(h.base, segments...), nil,
		upload{field: "file", name: req.FileName.String()},
		upload{field: "path", fileName: "path", content: strings.NewReader(req.DatabasePath.String())})
	if err != nil {
		return nil, err
	}
	return passthrough(BackendFaceRecognition, resp.Body)
}
