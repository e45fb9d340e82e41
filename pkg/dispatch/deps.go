package dispatch

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/illmade-knight/go-analytics-bridge/pkg/alarms"
	"github.com/illmade-knight/go-analytics-bridge/pkg/backends"
	"github.com/illmade-knight/go-analytics-bridge/pkg/media"
	"github.com/rs/zerolog"
)

// Backend names, used as collaborator labels in errors, logs and metrics.
const (
	BackendWhisper             = "whisper"
	BackendAudioAnomaly        = "audio_anomaly"
	BackendDeviceAnomaly       = "device_anomaly"
	BackendParentalControl     = "parental_control"
	BackendObjectRecognition   = "object_recognition"
	BackendFaceRecognition     = "face_recognition"
	BackendSpeakerVerification = "speaker_verification"

	mediaCollaborator = "media"
)

// AlarmPoller is satisfied by *alarms.Client.
type AlarmPoller interface {
	Poll(ctx context.Context, address, port string, within *float64) (*alarms.Record, error)
}

// ToolInvoker is satisfied by *tool.Executor.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, command []string, vars map[string]string) (string, error)
}

// Endpoints holds the base URL of every analytics backend.
type Endpoints struct {
	Whisper             string
	AudioAnomaly        string
	DeviceAnomaly       string
	ParentalControl     string
	ObjectRecognition   string
	FaceRecognition     string
	SpeakerVerification string
}

// Commands holds the command templates for local tools.
type Commands struct {
	// AUD takes {request}.
	AUD []string
	// DeepSpeech takes {audio}.
	DeepSpeech []string
	// DeepSpeechCleanup runs after DeepSpeech whatever its outcome. Optional.
	DeepSpeechCleanup []string
}

// Dependencies are the collaborators shared by the default handlers.
type Dependencies struct {
	Alarms    AlarmPoller
	Backends  backends.Caller
	Media     media.Source
	Tools     ToolInvoker
	Endpoints Endpoints
	Commands  Commands
	Logger    zerolog.Logger
}

func (d Dependencies) validate() error {
	switch {
	case d.Alarms == nil:
		return fmt.Errorf("alarm poller cannot be nil")
	case d.Backends == nil:
		return fmt.Errorf("backend caller cannot be nil")
	case d.Media == nil:
		return fmt.Errorf("media source cannot be nil")
	case d.Tools == nil:
		return fmt.Errorf("tool invoker cannot be nil")
	}
	return nil
}

// RegisterDefaults registers a handler for every request topic.
func RegisterDefaults(reg *Registry, deps Dependencies) error {
	if err := deps.validate(); err != nil {
		return err
	}
	handlers := []Handler{
		&AlarmHandler{poller: deps.Alarms},
		&AUDHandler{tools: deps.Tools, command: deps.Commands.AUD},
		&SpeechRecognitionHandler{
			backends: deps.Backends,
			media:    deps.Media,
			tools:    deps.Tools,
			base:     deps.Endpoints.Whisper,
			command:  deps.Commands.DeepSpeech,
			cleanup:  deps.Commands.DeepSpeechCleanup,
			logger:   deps.Logger.With().Str("component", "SpeechRecognitionHandler").Logger(),
		},
		&AudioAnomalyHandler{backends: deps.Backends, media: deps.Media, base: deps.Endpoints.AudioAnomaly},
		&DeviceAnomalyHandler{backends: deps.Backends, base: deps.Endpoints.DeviceAnomaly},
		&ParentalControlHandler{backends: deps.Backends, media: deps.Media, base: deps.Endpoints.ParentalControl},
		&ObjectRecognitionHandler{backends: deps.Backends, media: deps.Media, base: deps.Endpoints.ObjectRecognition},
		&FaceRecognitionHandler{backends: deps.Backends, media: deps.Media, base: deps.Endpoints.FaceRecognition},
		&SpeakerVerificationHandler{backends: deps.Backends, media: deps.Media, base: deps.Endpoints.SpeakerVerification},
	}
	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			return err
		}
	}
	return nil
}

// upload describes one media file to attach to a multipart request.
type upload struct {
	field       string
	name        string
	fileName    string
	contentType string
	// content, when set, is sent as is instead of opening name.
	content io.Reader
}

// postMedia opens every upload through src and posts them in one request.
func postMedia(ctx context.Context, caller backends.Caller, src media.Source, backend, target string, fields map[string]string, uploads ...upload) (*backends.Response, error) {
	form := backends.Form{Fields: fields}
	for _, u := range uploads {
		content := u.content
		if content == nil {
			r, err := src.Open(ctx, u.name)
			if err != nil {
				return nil, &TransportError{Collaborator: mediaCollaborator, Err: err}
			}
			defer func(c io.Closer) { _ = c.Close() }(r)
			content = r
		}

		fileName := u.fileName
		if fileName == "" {
			fileName = path.Base(u.name)
		}
		form.Files = append(form.Files, backends.FilePart{
			Field:       u.field,
			FileName:    fileName,
			ContentType: u.contentType,
			Content:     content,
		})
	}
	return caller.PostMultipart(ctx, backend, target, form)
}
