// Package bus connects the bridge to the pub/sub bus over a websocket. The
// connection is both the pipeline's MessageConsumer and its SimplePublisher.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/illmade-knight/go-analytics-bridge/pkg/messagepipeline"
	"github.com/illmade-knight/go-analytics-bridge/pkg/metrics"
	"github.com/rs/zerolog"
)

const transportName = "websocket"

// ErrNotConnected is returned by Publish while the bus connection is down.
var ErrNotConnected = errors.New("bus websocket not connected")

// WebsocketConfig configures the bus connection.
type WebsocketConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	BufferSize       int
}

// NewWebsocketDefaults returns the standard reconnect policy (1s doubling to 32s).
func NewWebsocketDefaults(url string) *WebsocketConfig {
	return &WebsocketConfig{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		InitialBackoff:   time.Second,
		MaxBackoff:       32 * time.Second,
		BufferSize:       64,
	}
}

// WebsocketConnection is a self-healing client connection to the bus.
type WebsocketConnection struct {
	cfg    WebsocketConfig
	dialer websocket.Dialer
	logger zerolog.Logger

	conn    *websocket.Conn
	connMu  sync.RWMutex
	writeMu sync.Mutex

	connected  atomic.Bool
	outputChan chan messagepipeline.Message
	doneChan   chan struct{}
	cancel     context.CancelFunc
	stopOnce   sync.Once
}

// NewWebsocketConnection validates cfg. No connection is made until Start.
func NewWebsocketConnection(cfg *WebsocketConfig, logger zerolog.Logger) (*WebsocketConnection, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("bus websocket url is required")
	}
	c := *cfg
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 64
	}

	return &WebsocketConnection{
		cfg:        c,
		dialer:     websocket.Dialer{HandshakeTimeout: c.HandshakeTimeout},
		logger:     logger.With().Str("component", "WebsocketConnection").Str("url", c.URL).Logger(),
		outputChan: make(chan messagepipeline.Message, c.BufferSize),
		doneChan:   make(chan struct{}),
	}, nil
}

// Messages returns the channel of inbound frames.
func (w *WebsocketConnection) Messages() <-chan messagepipeline.Message { return w.outputChan }

// Done is closed once the connection loop has exited.
func (w *WebsocketConnection) Done() <-chan struct{} { return w.doneChan }

// Connected reports whether a bus connection is currently open.
func (w *WebsocketConnection) Connected() bool { return w.connected.Load() }

// Start launches the connect/read loop in the background.
func (w *WebsocketConnection) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	go w.run(runCtx)
	return nil
}

// Stop closes the connection and waits for the loop to exit.
func (w *WebsocketConnection) Stop(ctx context.Context) error {
	var err error
	w.stopOnce.Do(func() {
		if w.cancel == nil {
			close(w.outputChan)
			close(w.doneChan)
			return
		}
		w.cancel()
		w.closeConnection()
		select {
		case <-w.doneChan:
		case <-ctx.Done():
			err = fmt.Errorf("timed out waiting for bus websocket to stop: %w", ctx.Err())
		}
	})
	return err
}

// Publish writes one frame to the bus as a text message.
func (w *WebsocketConnection) Publish(_ context.Context, payload []byte, _ map[string]string) error {
	w.connMu.RLock()
	conn := w.conn
	w.connMu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if w.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(w.cfg.WriteTimeout))
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("failed to write frame to bus: %w", err)
	}
	return nil
}

func (w *WebsocketConnection) run(ctx context.Context) {
	defer close(w.doneChan)
	defer close(w.outputChan)

	delay := w.cfg.InitialBackoff
	first := true
	for ctx.Err() == nil {
		if !first {
			metrics.BusReconnects.WithLabelValues(transportName).Inc()
		}
		first = false

		conn, err := w.dial(ctx)
		if err != nil {
			w.logger.Error().Err(err).Dur("retry_in", delay).Msg("Bus connection failed.")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			delay *= 2
			if delay > w.cfg.MaxBackoff {
				delay = w.cfg.MaxBackoff
			}
			continue
		}

		if ctx.Err() != nil {
			w.closeConnection()
			return
		}
		delay = w.cfg.InitialBackoff
		w.logger.Info().Msg("Bus connection opened.")
		w.read(ctx, conn)
		w.closeConnection()
	}
}

func (w *WebsocketConnection) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := w.dialer.DialContext(ctx, w.cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	w.connMu.Lock()
	w.conn = conn
	w.connMu.Unlock()
	w.connected.Store(true)
	metrics.BusConnected.WithLabelValues(transportName).Set(1)
	return conn, nil
}

// read forwards frames until the connection fails or ctx is cancelled.
func (w *WebsocketConnection) read(ctx context.Context, conn *websocket.Conn) {
	// ReadMessage does not watch ctx; closing the conn unblocks it.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			switch {
			case ctx.Err() != nil:
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				w.logger.Info().Msg("Bus connection closed.")
			default:
				w.logger.Error().Err(err).Msg("Bus connection error.")
			}
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		metrics.BusFramesReceived.WithLabelValues(transportName).Inc()

		msg := messagepipeline.NewMessage(uuid.NewString(), data, nil)
		select {
		case w.outputChan <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (w *WebsocketConnection) closeConnection() {
	w.connMu.Lock()
	defer w.connMu.Unlock()
	if w.conn == nil {
		return
	}
	w.writeMu.Lock()
	_ = w.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	w.writeMu.Unlock()
	_ = w.conn.Close()
	w.conn = nil
	w.connected.Store(false)
	metrics.BusConnected.WithLabelValues(transportName).Set(0)
}
