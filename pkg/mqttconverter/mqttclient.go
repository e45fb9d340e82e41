package mqttconverter

import (
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// MQTTClientConfig holds the Paho client settings for the MQTT bus transport.
type MQTTClientConfig struct {
	// BrokerURL is the full URL of the broker, e.g. "tls://mqtt.example.com:8883".
	BrokerURL string
	// Topic is the subscription carrying inbound bus frames.
	Topic string
	// ResultsTopic receives the frames the bridge publishes.
	ResultsTopic string
	// QoS applies to both the subscription and publications.
	QoS byte
	// ClientIDPrefix gets a unique suffix appended per connection.
	ClientIDPrefix string
	Username       string
	Password       string

	KeepAlive        time.Duration
	ConnectTimeout   time.Duration
	ReconnectWaitMax time.Duration
	PublishTimeout   time.Duration

	// Optional TLS material, used only for tls:// brokers.
	CACertFile         string
	ClientCertFile     string
	ClientKeyFile      string
	InsecureSkipVerify bool
}

// Env constants for tuning the MQTT client.
const (
	MqttSkipVerify            = "MQTT_INSECURE_SKIP_VERIFY"
	MqttKeepAliveSeconds      = "MQTT_KEEP_ALIVE_SECONDS"
	MqttConnectTimeoutSeconds = "MQTT_CONNECT_TIMEOUT_SECONDS"
)

// LoadMQTTClientConfigFromEnv returns defaults overridden by the MQTT_*
// tuning variables. Broker and topics are set by the caller.
func LoadMQTTClientConfigFromEnv() *MQTTClientConfig {
	cfg := &MQTTClientConfig{
		QoS:              1,
		KeepAlive:        60 * time.Second,
		ConnectTimeout:   10 * time.Second,
		ReconnectWaitMax: 32 * time.Second,
		PublishTimeout:   10 * time.Second,
		ClientIDPrefix:   "analytics-bridge-",
	}
	if skipVerify := os.Getenv(MqttSkipVerify); skipVerify == "true" {
		cfg.InsecureSkipVerify = true
	}

	if ka := os.Getenv(MqttKeepAliveSeconds); ka != "" {
		s, err := time.ParseDuration(ka + "s")
		if err == nil {
			cfg.KeepAlive = s
		} else {
			log.Warn().Err(err).Str("var", MqttKeepAliveSeconds).Msg("Invalid keep-alive seconds, using default.")
		}
	}
	if ct := os.Getenv(MqttConnectTimeoutSeconds); ct != "" {
		s, err := time.ParseDuration(ct + "s")
		if err == nil {
			cfg.ConnectTimeout = s
		} else {
			log.Warn().Err(err).Str("var", MqttConnectTimeoutSeconds).Msg("Invalid connect timeout seconds, using default.")
		}
	}

	return cfg
}
