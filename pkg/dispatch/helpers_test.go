package dispatch_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/illmade-knight/go-analytics-bridge/pkg/alarms"
	"github.com/illmade-knight/go-analytics-bridge/pkg/backends"
	"github.com/illmade-knight/go-analytics-bridge/pkg/dispatch"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// mockPublisher records every published frame.
type mockPublisher struct {
	mu     sync.Mutex
	frames [][]byte
	attrs  []map[string]string
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, payload []byte, attributes map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.frames = append(m.frames, payload)
	m.attrs = append(m.attrs, attributes)
	return nil
}

func (m *mockPublisher) Stop(context.Context) error { return nil }

func (m *mockPublisher) published() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.frames...)
}

// mockPoller is a test double for the alarm client.
type mockPoller struct {
	mu      sync.Mutex
	calls   int
	address string
	port    string
	within  *float64
	record  *alarms.Record
	err     error
}

func (m *mockPoller) Poll(_ context.Context, address, port string, within *float64) (*alarms.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.address, m.port, m.within = address, port, within
	return m.record, m.err
}

// toolCall captures one tool invocation.
type toolCall struct {
	name    string
	command []string
	vars    map[string]string
}

type mockTools struct {
	mu     sync.Mutex
	calls  []toolCall
	output map[string]string
	errs   map[string]error
}

func (m *mockTools) Invoke(_ context.Context, name string, command []string, vars map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, toolCall{name: name, command: command, vars: vars})
	if err := m.errs[name]; err != nil {
		return "", err
	}
	return m.output[name], nil
}

func (m *mockTools) invocations() []toolCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]toolCall(nil), m.calls...)
}

// fakeMedia serves files from memory.
type fakeMedia struct {
	files map[string]string
}

func (f *fakeMedia) Open(_ context.Context, name string) (io.ReadCloser, error) {
	content, ok := f.files[name]
	if !ok {
		return nil, errors.New("no such media")
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

// capturedRequest is what a backend saw.
type capturedRequest struct {
	Method string
	Path   string
	Files  map[string]capturedFile
	Fields map[string]string
}

type capturedFile struct {
	FileName    string
	ContentType string
	Content     string
}

// backendServer answers every request with status/body and records it.
type backendServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []capturedRequest
}

func newBackendServer(t *testing.T, status int, body string) *backendServer {
	t.Helper()
	s := &backendServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured := capturedRequest{Method: r.Method, Path: r.URL.Path, Files: map[string]capturedFile{}, Fields: map[string]string{}}
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			if err := r.ParseMultipartForm(1 << 20); err == nil {
				for field, headers := range r.MultipartForm.File {
					f, _ := headers[0].Open()
					data, _ := io.ReadAll(f)
					_ = f.Close()
					captured.Files[field] = capturedFile{
						FileName:    headers[0].Filename,
						ContentType: headers[0].Header.Get("Content-Type"),
						Content:     string(data),
					}
				}
				for field, values := range r.MultipartForm.Value {
					captured.Fields[field] = values[0]
				}
			}
		}
		s.mu.Lock()
		s.requests = append(s.requests, captured)
		s.mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *backendServer) received() []capturedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]capturedRequest(nil), s.requests...)
}

// bridgeFixture wires a registry with default handlers against one backend server.
type bridgeFixture struct {
	backend    *backendServer
	poller     *mockPoller
	tools      *mockTools
	media      *fakeMedia
	publisher  *mockPublisher
	dispatcher *dispatch.Dispatcher
}

func newBridgeFixture(t *testing.T, status int, body string) *bridgeFixture {
	t.Helper()
	f := &bridgeFixture{
		backend: newBackendServer(t, status, body),
		poller:  &mockPoller{},
		tools:   &mockTools{output: map[string]string{}, errs: map[string]error{}},
		media: &fakeMedia{files: map[string]string{
			"clip.wav":   "RIFF-clip",
			"other.wav":  "RIFF-other",
			"photo.jpg":  "JPEG-photo",
			"movie.mp4":  "MP4-movie",
			"speech.wav": "RIFF-speech",
		}},
		publisher: &mockPublisher{},
	}
	url := f.backend.URL
	reg := dispatch.NewRegistry()
	require.NoError(t, dispatch.RegisterDefaults(reg, dispatch.Dependencies{
		Alarms:   f.poller,
		Backends: backends.NewClient(backends.Config{Timeout: 2 * time.Second}, zerolog.Nop()),
		Media:    f.media,
		Tools:    f.tools,
		Endpoints: dispatch.Endpoints{
			Whisper:             url,
			AudioAnomaly:        url,
			DeviceAnomaly:       url,
			ParentalControl:     url,
			ObjectRecognition:   url,
			FaceRecognition:     url,
			SpeakerVerification: url,
		},
		Commands: dispatch.Commands{
			AUD:               []string{"curl", "-s", "http://localhost:5050/{request}"},
			DeepSpeech:        []string{"docker", "run", "--rm", "speech", "--audio", "{audio}"},
			DeepSpeechCleanup: []string{"docker", "rm", "-f", "speech"},
		},
		Logger: zerolog.Nop(),
	}))
	d, err := dispatch.NewDispatcher(reg, f.publisher, zerolog.Nop())
	require.NoError(t, err)
	f.dispatcher = d
	return f
}

// persistentFrame builds an inbound bus frame.
func persistentFrame(t *testing.T, topic string, value map[string]any) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"Persistent": map[string]any{
			"topic_name": topic,
			"topic_uuid": "uuid-1",
			"value":      value,
		},
	})
	require.NoError(t, err)
	return data
}

// decodePublished parses a published frame.
func decodePublished(t *testing.T, frame []byte) map[string]any {
	t.Helper()
	var outer map[string]map[string]any
	require.NoError(t, json.Unmarshal(frame, &outer))
	env, ok := outer["RequestPostTopicUUID"]
	require.True(t, ok, "frame must be a publication frame")
	return env
}

// decodePublishedNumbers parses a published frame keeping numbers as json.Number.
func decodePublishedNumbers(t *testing.T, frame []byte) map[string]any {
	t.Helper()
	var outer map[string]map[string]any
	dec := json.NewDecoder(bytes.NewReader(frame))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&outer))
	env, ok := outer["RequestPostTopicUUID"]
	require.True(t, ok, "frame must be a publication frame")
	return env
}

func requestorFields() map[string]any {
	return map[string]any{
		"requestor_id":   "alice",
		"requestor_type": "user",
		"request_id":     "req-1",
	}
}

func withRequestor(value map[string]any) map[string]any {
	for k, v := range requestorFields() {
		value[k] = v
	}
	return value
}

const passthroughBody = `{"RequestPostTopicUUID":{"topic_name":"SIFIS:Privacy_Aware_Object_Recognition_Results","topic_uuid":"Object_Recognition_Results","value":{"description":"done","objects":["cat"]}}}`

// countingCaller fails every call and counts them.
type countingCaller struct {
	mu    sync.Mutex
	calls int
}

func (c *countingCaller) Get(context.Context, string, string) (*backends.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil, errors.New("unexpected call")
}

func (c *countingCaller) PostMultipart(context.Context, string, string, backends.Form) (*backends.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil, errors.New("unexpected call")
}
