package dispatch

import (
	"context"

	"github.com/illmade-knight/go-analytics-bridge/pkg/backends"
	"github.com/illmade-knight/go-analytics-bridge/pkg/media"
	"github.com/illmade-knight/go-analytics-bridge/pkg/types"
)

type speakerVerificationRequest struct {
	FirstAudioFile  Scalar `json:"first_audio_file" validate:"required"`
	SecondAudioFile Scalar `json:"second_audio_file" validate:"required"`
	Requestor
}

// SpeakerVerificationHandler checks whether two recordings share a speaker.
type SpeakerVerificationHandler struct {
	backends backends.Caller
	media    media.Source
	base     string
}

func (h *SpeakerVerificationHandler) Topic() string { return TopicSpeakerVerification }

func (h *SpeakerVerificationHandler) Handle(ctx context.Context, event types.TopicEvent) (*Outbound, error) {
	var req speakerVerificationRequest
	if err := decodePayload(event.TopicName, event.Value, &req); err != nil {
		return nil, err
	}

	first, second := req.FirstAudioFile.String(), req.SecondAudioFile.String()
	segments := append([]string{"speaker_verification", first, second}, req.segments()...)
	resp, err := postMedia(ctx, h.backends, h.media, BackendSpeakerVerification, endpoint(h.base, segments...), nil,
		upload{field: "file1", name: first, fileName: "filename1.wav", contentType: "audio/wav"},
		upload{field: "file2", name: second, fileName: "filename2.wav", contentType: "audio/wav"})
	if err != nil {
		return nil, err
	}
	return passthrough(BackendSpeakerVerification, resp.Body)
}
