// Package mqttconverter carries bus frames over an MQTT broker: inbound frames
// arrive on one topic and published frames go to a results topic.
package mqttconverter

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-analytics-bridge/pkg/messagepipeline"
	"github.com/illmade-knight/go-analytics-bridge/pkg/metrics"
	"github.com/rs/zerolog"
)

const transportName = "mqtt"

// MqttConnection is both the MessageConsumer and the SimplePublisher for an
// MQTT bus.
type MqttConnection struct {
	client mqtt.Client
	// ownsClient is false for injected clients, which never run our OnConnect hook.
	ownsClient bool
	cfg        *MQTTClientConfig
	logger     zerolog.Logger

	outputChan chan messagepipeline.Message
	doneChan   chan struct{}
	stopChan   chan struct{}
	mu         sync.RWMutex
	closed     bool
	stopOnce   sync.Once
	lost       atomic.Bool
}

// NewMqttConnection builds a Paho client from cfg. It does not connect until Start.
func NewMqttConnection(cfg *MQTTClientConfig, logger zerolog.Logger) (*MqttConnection, error) {
	c, err := newConnection(cfg, logger)
	if err != nil {
		return nil, err
	}
	opts, err := c.createMqttOptions()
	if err != nil {
		return nil, err
	}
	c.client = mqtt.NewClient(opts)
	c.ownsClient = true
	return c, nil
}

// NewMqttConnectionWithClient uses a caller-supplied client.
func NewMqttConnectionWithClient(client mqtt.Client, cfg *MQTTClientConfig, logger zerolog.Logger) (*MqttConnection, error) {
	if client == nil {
		return nil, fmt.Errorf("mqtt client cannot be nil")
	}
	c, err := newConnection(cfg, logger)
	if err != nil {
		return nil, err
	}
	c.client = client
	return c, nil
}

func newConnection(cfg *MQTTClientConfig, logger zerolog.Logger) (*MqttConnection, error) {
	if cfg == nil || cfg.BrokerURL == "" {
		return nil, fmt.Errorf("MQTT broker URL is required")
	}
	if cfg.Topic == "" || cfg.ResultsTopic == "" {
		return nil, fmt.Errorf("MQTT topic and results topic are required")
	}
	return &MqttConnection{
		cfg:        cfg,
		logger:     logger.With().Str("component", "MqttConnection").Str("broker", cfg.BrokerURL).Logger(),
		outputChan: make(chan messagepipeline.Message, 1000),
		doneChan:   make(chan struct{}),
		stopChan:   make(chan struct{}),
	}, nil
}

// Messages returns the channel of inbound frames.
func (c *MqttConnection) Messages() <-chan messagepipeline.Message { return c.outputChan }

// Done is closed once the connection has stopped.
func (c *MqttConnection) Done() <-chan struct{} { return c.doneChan }

// Connected reports the state of the underlying Paho client.
func (c *MqttConnection) Connected() bool { return c.client.IsConnected() }

// Start connects to the broker. A failed initial connect is logged and left
// to the client's own retry.
func (c *MqttConnection) Start(ctx context.Context) error {
	c.logger.Info().Msg("Connecting to MQTT broker...")
	token := c.client.Connect()
	if !token.WaitTimeout(c.cfg.ConnectTimeout + time.Second) {
		c.logger.Warn().Msg("MQTT connect still pending, client will keep retrying.")
	} else if err := token.Error(); err != nil {
		c.logger.Error().Err(err).Msg("Failed to connect to MQTT broker on startup, client will keep retrying.")
	} else if !c.ownsClient {
		c.onConnect(c.client)
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = c.Stop(context.Background())
		case <-c.stopChan:
		}
	}()
	return nil
}

// Stop unsubscribes and disconnects.
func (c *MqttConnection) Stop(_ context.Context) error {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		if c.client.IsConnected() {
			if token := c.client.Unsubscribe(c.cfg.Topic); token.WaitTimeout(2*time.Second) && token.Error() != nil {
				c.logger.Warn().Err(token.Error()).Str("topic", c.cfg.Topic).Msg("Failed to unsubscribe from MQTT topic.")
			}
			c.client.Disconnect(500)
		}
		metrics.BusConnected.WithLabelValues(transportName).Set(0)

		c.mu.Lock()
		c.closed = true
		close(c.outputChan)
		c.mu.Unlock()
		close(c.doneChan)
		c.logger.Info().Msg("MQTT connection stopped.")
	})
	return nil
}

// Publish sends one frame to the results topic and waits for the broker.
func (c *MqttConnection) Publish(ctx context.Context, payload []byte, _ map[string]string) error {
	token := c.client.Publish(c.cfg.ResultsTopic, c.cfg.QoS, false, payload)

	timeout := c.cfg.PublishTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("mqtt publish to %s: %w", c.cfg.ResultsTopic, ctx.Err())
	case <-time.After(timeout):
		return fmt.Errorf("mqtt publish to %s timed out after %s", c.cfg.ResultsTopic, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish to %s: %w", c.cfg.ResultsTopic, err)
	}
	return nil
}

func (c *MqttConnection) onConnect(client mqtt.Client) {
	if c.lost.Swap(false) {
		metrics.BusReconnects.WithLabelValues(transportName).Inc()
	}
	metrics.BusConnected.WithLabelValues(transportName).Set(1)
	c.logger.Info().Msg("Connected to MQTT broker.")

	token := client.Subscribe(c.cfg.Topic, c.cfg.QoS, c.handleIncomingMessage)
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			c.logger.Error().Err(token.Error()).Str("topic", c.cfg.Topic).Msg("Failed to subscribe to MQTT topic.")
			return
		}
		c.logger.Info().Str("topic", c.cfg.Topic).Msg("Subscribed to MQTT topic.")
	}()
}

func (c *MqttConnection) onConnectionLost(_ mqtt.Client, err error) {
	c.lost.Store(true)
	metrics.BusConnected.WithLabelValues(transportName).Set(0)
	c.logger.Error().Err(err).Msg("Lost MQTT connection.")
}

// handleIncomingMessage forwards a frame to the pipeline. Frames arriving
// after Stop are dropped.
func (c *MqttConnection) handleIncomingMessage(_ mqtt.Client, msg mqtt.Message) {
	payload := make([]byte, len(msg.Payload()))
	copy(payload, msg.Payload())
	metrics.BusFramesReceived.WithLabelValues(transportName).Inc()

	consumed := messagepipeline.NewMessage(uuid.NewString(), payload, map[string]string{"mqtt_topic": msg.Topic()})

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.outputChan <- consumed:
	case <-c.stopChan:
		c.logger.Warn().Str("topic", msg.Topic()).Msg("Connection stopping, dropping MQTT frame.")
	}
}

// createMqttOptions assembles the Paho client options from the config.
func (c *MqttConnection) createMqttOptions() (*mqtt.ClientOptions, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.cfg.BrokerURL)
	opts.SetClientID(c.cfg.ClientIDPrefix + uuid.NewString()[:8])
	opts.SetUsername(c.cfg.Username)
	opts.SetPassword(c.cfg.Password)
	opts.SetKeepAlive(c.cfg.KeepAlive)
	opts.SetConnectTimeout(c.cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetMaxReconnectInterval(c.cfg.ReconnectWaitMax)
	opts.SetOrderMatters(true)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	if strings.HasPrefix(strings.ToLower(c.cfg.BrokerURL), "tls://") {
		tlsConfig, err := newTLSConfig(c.cfg)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}
	return opts, nil
}

func newTLSConfig(cfg *MQTTClientConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}
	if cfg.CACertFile != "" {
		caCert, err := os.ReadFile(cfg.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert file %s: %w", cfg.CACertFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to append CA cert from %s", cfg.CACertFile)
		}
		tlsConfig.RootCAs = pool
	}
	if cfg.ClientCertFile != "" && cfg.ClientKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCertFile, cfg.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate/key pair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}
