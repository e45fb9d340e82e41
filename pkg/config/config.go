// Package config loads bridge configuration in three layers: built-in
// defaults, an optional YAML file, then BRIDGE_* environment variables.
package config

import (
	"time"

	"github.com/illmade-knight/go-analytics-bridge/pkg/logging"
)

// Config is the complete bridge configuration.
type Config struct {
	Log       logging.Config  `koanf:"log"`
	Server    ServerConfig    `koanf:"server"`
	Bus       BusConfig       `koanf:"bus"`
	MQTT      MQTTConfig      `koanf:"mqtt"`
	PubSub    PubSubConfig    `koanf:"pubsub"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Alarms    AlarmsConfig    `koanf:"alarms"`
	Watermark WatermarkConfig `koanf:"watermark"`
	Media     MediaConfig     `koanf:"media"`
	Backends  BackendsConfig  `koanf:"backends"`
	Tools     ToolsConfig     `koanf:"tools"`
	GCP       GCPConfig       `koanf:"gcp"`
}

// GCPConfig is shared by the Pub/Sub, Firestore and Cloud Storage clients.
type GCPConfig struct {
	// CredentialsFile is optional; application default credentials are used when empty.
	CredentialsFile string `koanf:"credentials_file"`
}

// ServerConfig configures the operator HTTP server.
type ServerConfig struct {
	HTTPPort        string        `koanf:"http_port" validate:"required"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// BusConfig selects the bus transport.
type BusConfig struct {
	Transport      string        `koanf:"transport" validate:"oneof=websocket mqtt pubsub"`
	URL            string        `koanf:"url" validate:"required_if=Transport websocket"`
	InitialBackoff time.Duration `koanf:"initial_backoff" validate:"gt=0"`
	MaxBackoff     time.Duration `koanf:"max_backoff" validate:"gtefield=InitialBackoff"`
}

// MQTTConfig is used when bus.transport is mqtt.
type MQTTConfig struct {
	BrokerURL    string `koanf:"broker_url"`
	Topic        string `koanf:"topic"`
	ResultsTopic string `koanf:"results_topic"`
	Username     string `koanf:"username"`
	Password     string `koanf:"password"`
}

// PubSubConfig is used when bus.transport is pubsub.
type PubSubConfig struct {
	ProjectID      string `koanf:"project_id"`
	SubscriptionID string `koanf:"subscription_id"`
	ResultsTopicID string `koanf:"results_topic_id"`
}

// PipelineConfig sizes the worker pool and bounds accepted frames.
type PipelineConfig struct {
	Workers       int `koanf:"workers" validate:"min=1"`
	MinFrameBytes int `koanf:"min_frame_bytes" validate:"min=0"`
	MaxFrameBytes int `koanf:"max_frame_bytes" validate:"gtfield=MinFrameBytes"`
}

// AlarmsConfig configures the alarm poll client.
type AlarmsConfig struct {
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
	Last    int           `koanf:"last" validate:"min=1"`
}

// WatermarkConfig selects where the last poll time is kept.
type WatermarkConfig struct {
	Backend   string                   `koanf:"backend" validate:"oneof=file memory redis firestore"`
	File      string                   `koanf:"file" validate:"required_if=Backend file"`
	Redis     RedisWatermarkConfig     `koanf:"redis"`
	Firestore FirestoreWatermarkConfig `koanf:"firestore"`
}

// RedisWatermarkConfig is used when watermark.backend is redis.
type RedisWatermarkConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Key      string `koanf:"key"`
}

// FirestoreWatermarkConfig is used when watermark.backend is firestore.
type FirestoreWatermarkConfig struct {
	ProjectID  string `koanf:"project_id"`
	Collection string `koanf:"collection"`
	Document   string `koanf:"document"`
}

// MediaConfig selects where input media files are read from.
type MediaConfig struct {
	Backend string `koanf:"backend" validate:"oneof=local gcs"`
	Dir     string `koanf:"dir" validate:"required_if=Backend local"`
	Bucket  string `koanf:"bucket" validate:"required_if=Backend gcs"`
	Prefix  string `koanf:"prefix"`
}

// BackendsConfig holds the analytics backend endpoints and call policy.
type BackendsConfig struct {
	Timeout             time.Duration  `koanf:"timeout" validate:"gt=0"`
	Breaker             BreakerConfig  `koanf:"breaker"`
	Whisper             EndpointConfig `koanf:"whisper"`
	AudioAnomaly        EndpointConfig `koanf:"audio_anomaly"`
	DeviceAnomaly       EndpointConfig `koanf:"device_anomaly"`
	ParentalControl     EndpointConfig `koanf:"parental_control"`
	ObjectRecognition   EndpointConfig `koanf:"object_recognition"`
	FaceRecognition     EndpointConfig `koanf:"face_recognition"`
	SpeakerVerification EndpointConfig `koanf:"speaker_verification"`
}

// EndpointConfig is the base URL of one backend.
type EndpointConfig struct {
	URL string `koanf:"url" validate:"required,url"`
}

// BreakerConfig tunes the per-backend circuit breaker.
type BreakerConfig struct {
	ConsecutiveFailures uint32        `koanf:"consecutive_failures" validate:"min=1"`
	MaxRequests         uint32        `koanf:"max_requests"`
	Interval            time.Duration `koanf:"interval"`
	OpenTimeout         time.Duration `koanf:"open_timeout" validate:"gt=0"`
}

// ToolsConfig holds local tool command templates.
type ToolsConfig struct {
	Timeout           time.Duration `koanf:"timeout" validate:"gt=0"`
	AUD               []string      `koanf:"aud" validate:"min=1"`
	DeepSpeech        []string      `koanf:"deepspeech" validate:"min=1"`
	DeepSpeechCleanup []string      `koanf:"deepspeech_cleanup"`
}

func defaultConfig() *Config {
	return &Config{
		Log: logging.Config{Level: "info", Format: "json"},
		Server: ServerConfig{
			HTTPPort:        ":8081",
			ShutdownTimeout: 15 * time.Second,
		},
		Bus: BusConfig{
			Transport:      "websocket",
			URL:            "ws://localhost:3000/ws",
			InitialBackoff: time.Second,
			MaxBackoff:     32 * time.Second,
		},
		MQTT: MQTTConfig{
			Topic:        "sifis/bus",
			ResultsTopic: "sifis/bus/results",
		},
		Pipeline: PipelineConfig{
			Workers:       1,
			MinFrameBytes: 2,
			MaxFrameBytes: 1 << 20,
		},
		Alarms: AlarmsConfig{
			Timeout: 10 * time.Second,
			Last:    50,
		},
		Watermark: WatermarkConfig{
			Backend: "file",
			File:    "last_time.txt",
			Redis:   RedisWatermarkConfig{Addr: "localhost:6379", Key: "analytics-bridge:last_time"},
			Firestore: FirestoreWatermarkConfig{
				Collection: "analytics-bridge",
				Document:   "last_time",
			},
		},
		Media: MediaConfig{Backend: "local", Dir: "."},
		Backends: BackendsConfig{
			Timeout: 30 * time.Second,
			Breaker: BreakerConfig{
				ConsecutiveFailures: 5,
				MaxRequests:         1,
				Interval:            time.Minute,
				OpenTimeout:         30 * time.Second,
			},
			Whisper:             EndpointConfig{URL: "http://localhost:5040"},
			AudioAnomaly:        EndpointConfig{URL: "http://localhost:5000"},
			DeviceAnomaly:       EndpointConfig{URL: "http://localhost:9090"},
			ParentalControl:     EndpointConfig{URL: "http://localhost:6060"},
			ObjectRecognition:   EndpointConfig{URL: "http://localhost:8080"},
			FaceRecognition:     EndpointConfig{URL: "http://localhost:8090"},
			SpeakerVerification: EndpointConfig{URL: "http://localhost:7070"},
		},
		Tools: ToolsConfig{
			Timeout: 2 * time.Minute,
			AUD:     []string{"curl", "http://localhost:5050/{request}"},
			DeepSpeech: []string{
				"docker", "run", "-v", "/var/run/docker.sock:/var/run/docker.sock", "-u", "root", "--net=host",
				"--name", "privacy_preserving_speech_recognition", "privacy_preserving_speech_recognition",
				"python", "-m", "recognize_wavFile_Func", "--audio", "{audio}",
			},
			DeepSpeechCleanup: []string{"docker", "rm", "-f", "privacy_preserving_speech_recognition"},
		},
	}
}
