package dispatch

import (
	"context"

	"github.com/illmade-knight/go-analytics-bridge/pkg/backends"
	"github.com/illmade-knight/go-analytics-bridge/pkg/media"
	"github.com/illmade-knight/go-analytics-bridge/pkg/types"
	"github.com/rs/zerolog"
)

// Speech recognition methods.
const (
	MethodDeepSpeech = "DeepSpeeach"
	MethodWhisper    = "Whisper"
)

type speechRequest struct {
	AudioFile Scalar `json:"Audio File" validate:"required"`
	Requestor
	EntityTypes any    `json:"Entity Types" validate:"required"`
	Method      string `json:"method" validate:"required,oneof=DeepSpeeach Whisper"`
}

// SpeechRecognitionHandler transcribes audio either with the Whisper service,
// whose reply is published as is, or with the DeepSpeech container, whose
// output is only logged.
type SpeechRecognitionHandler struct {
	backends backends.Caller
	media    media.Source
	tools    ToolInvoker
	base     string
	command  []string
	cleanup  []string
	logger   zerolog.Logger
}

func (h *SpeechRecognitionHandler) Topic() string { return TopicSpeechRecognition }

func (h *SpeechRecognitionHandler) Handle(ctx context.Context, event types.TopicEvent) (*Outbound, error) {
	var req speechRequest
	if err := decodePayload(event.TopicName, event.Value, &req); err != nil {
		return nil, err
	}

	if req.Method == MethodDeepSpeech {
		return nil, h.deepSpeech(ctx, req)
	}

	segments := append([]string{"whisper", req.AudioFile.String()}, req.segments()...)
	resp, err := postMedia(ctx, h.backends, h.media, BackendWhisper, endpoint(h.base, segments...), nil,
		upload{field: "file", name: req.AudioFile.String()})
	if err != nil {
		return nil, err
	}
	return passthrough(BackendWhisper, resp.Body)
}

func (h *SpeechRecognitionHandler) deepSpeech(ctx context.Context, req speechRequest) error {
	vars := map[string]string{"audio": req.AudioFile.String()}
	out, err := h.tools.Invoke(ctx, "deepspeech", h.command, vars)
	if len(h.cleanup) > 0 {
		if _, cerr := h.tools.Invoke(ctx, "deepspeech-cleanup", h.cleanup, vars); cerr != nil {
			h.logger.Warn().Err(cerr).Msg("DeepSpeech cleanup failed.")
		}
	}
	if err != nil {
		return err
	}
	h.logger.Info().
		Str("request_id", req.RequestID.String()).
		Str("transcript", out).
		Msg("DeepSpeech transcription finished, nothing to publish.")
	return nil
}
