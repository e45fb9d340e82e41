package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix marks variables that override configuration.
	EnvPrefix = "BRIDGE_"
	// ConfigPathEnvVar names an explicit YAML file.
	ConfigPathEnvVar = "BRIDGE_CONFIG"
	// DefaultConfigPath is used when BRIDGE_CONFIG is unset.
	DefaultConfigPath = "config.yaml"
)

// commandPaths hold tool argument lists. From the environment they are given
// as one whitespace-separated string.
var commandPaths = []string{"tools.aud", "tools.deepspeech", "tools.deepspeech_cleanup"}

// Load builds the configuration: defaults, then the YAML file if present,
// then environment variables. The result is validated.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := splitCommands(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns BRIDGE_CONFIG if it exists, else config.yaml if it
// exists, else "".
func findConfigFile() string {
	for _, path := range []string{os.Getenv(ConfigPathEnvVar), DefaultConfigPath} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps BRIDGE_BUS__URL to bus.url. The config path variable
// itself is not a setting and is dropped.
func envTransformFunc(key string) string {
	if key == ConfigPathEnvVar {
		return ""
	}
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

func splitCommands(k *koanf.Koanf) error {
	for _, path := range commandPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		if err := k.Set(path, strings.Fields(s)); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// Validate checks struct tags and the per-transport requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	switch c.Bus.Transport {
	case "mqtt":
		if c.MQTT.BrokerURL == "" || c.MQTT.Topic == "" || c.MQTT.ResultsTopic == "" {
			return fmt.Errorf("mqtt transport requires mqtt.broker_url, mqtt.topic and mqtt.results_topic")
		}
	case "pubsub":
		if c.PubSub.ProjectID == "" || c.PubSub.SubscriptionID == "" || c.PubSub.ResultsTopicID == "" {
			return fmt.Errorf("pubsub transport requires pubsub.project_id, pubsub.subscription_id and pubsub.results_topic_id")
		}
	}
	switch c.Watermark.Backend {
	case "redis":
		if c.Watermark.Redis.Addr == "" || c.Watermark.Redis.Key == "" {
			return fmt.Errorf("redis watermark requires watermark.redis.addr and watermark.redis.key")
		}
	case "firestore":
		if c.Watermark.Firestore.ProjectID == "" {
			return fmt.Errorf("firestore watermark requires watermark.firestore.project_id")
		}
	}
	return nil
}
