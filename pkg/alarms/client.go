// Package alarms polls the netspot alarm service for alarms raised since the
// last successful poll and selects the most probable one.
package alarms

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/illmade-knight/go-analytics-bridge/pkg/metrics"
	"github.com/illmade-knight/go-analytics-bridge/pkg/types"
	"github.com/illmade-knight/go-analytics-bridge/pkg/watermark"
	"github.com/rs/zerolog"
)

const (
	// Collaborator is the name used for errors raised by this client.
	Collaborator = "alarm_service"

	alarmsPath = "/v1/netspots/alarms"
	// DefaultLast is the number of most recent alarms requested per poll.
	DefaultLast = 50
)

// Record is a single alarm returned by the alarm service.
type Record struct {
	Stat        string  `json:"stat"`
	Status      string  `json:"status"`
	Probability float64 `json:"probability"`
	// Time is forwarded as received.
	Time any `json:"time"`
}

// Config holds the tunables for the alarm client.
type Config struct {
	Timeout time.Duration
	Last    int
}

// Client queries the alarm service. It is safe for concurrent use; the
// watermark read and write of one poll never interleave with another poll.
type Client struct {
	httpClient *http.Client
	store      watermark.Store
	last       int
	now        func() time.Time
	mu         sync.Mutex
	logger     zerolog.Logger
}

// NewClient creates a Client backed by the given watermark store.
func NewClient(cfg Config, store watermark.Store, logger zerolog.Logger) (*Client, error) {
	if store == nil {
		return nil, fmt.Errorf("watermark store cannot be nil")
	}
	last := cfg.Last
	if last <= 0 {
		last = DefaultLast
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		store:      store,
		last:       last,
		now:        time.Now,
		logger:     logger.With().Str("component", "AlarmClient").Logger(),
	}, nil
}

// WithClock replaces the time source. Used by tests.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Poll asks the alarm service at address:port for recent alarms.
//
// When within is set the window starts that many minutes before now, otherwise
// at the stored watermark. Any 200 response advances the watermark to the
// current time. A nil record with a nil error means no alarm was raised.
func (c *Client) Poll(ctx context.Context, address, port string, within *float64) (*Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	since, err := c.queryTime(ctx, within)
	if err != nil {
		return nil, err
	}

	endpoint, err := alarmsURL(address, port, since, c.last)
	if err != nil {
		metrics.AlarmPolls.WithLabelValues("unreachable").Inc()
		return nil, &types.TransportError{Collaborator: Collaborator, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		metrics.AlarmPolls.WithLabelValues("unreachable").Inc()
		return nil, &types.TransportError{Collaborator: Collaborator, Err: err}
	}

	c.logger.Debug().Str("url", endpoint).Int64("since", since).Msg("Polling alarm service.")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.AlarmPolls.WithLabelValues("unreachable").Inc()
		return nil, &types.TransportError{Collaborator: Collaborator, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.AlarmPolls.WithLabelValues("unreachable").Inc()
		return nil, &types.TransportError{Collaborator: Collaborator, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		metrics.AlarmPolls.WithLabelValues("server_error").Inc()
		return nil, &types.BackendError{Collaborator: Collaborator, Status: resp.StatusCode, Body: string(body)}
	}

	var records []Record
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&records); err != nil {
		metrics.AlarmPolls.WithLabelValues("server_error").Inc()
		return nil, &types.BackendError{
			Collaborator: Collaborator,
			Status:       resp.StatusCode,
			Body:         string(body),
			Reason:       fmt.Sprintf("malformed alarm list: %v", err),
		}
	}

	stamp := c.now().UnixNano()
	if err := c.store.Save(ctx, stamp); err != nil {
		metrics.AlarmPolls.WithLabelValues("persistence_error").Inc()
		return nil, &types.PersistenceError{Op: "save watermark", Err: err}
	}
	metrics.WatermarkNanos.Set(float64(stamp))

	best := SelectMostProbable(records)
	if best == nil {
		metrics.AlarmPolls.WithLabelValues("empty").Inc()
		c.logger.Debug().Msg("Alarm service returned no alarms.")
		return nil, nil
	}
	metrics.AlarmPolls.WithLabelValues("alarm").Inc()
	return best, nil
}

func (c *Client) queryTime(ctx context.Context, within *float64) (int64, error) {
	if within != nil {
		window := time.Duration(*within * float64(time.Minute))
		return c.now().UnixNano() - int64(window), nil
	}
	stored, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Could not read watermark, polling from zero.")
		return 0, nil
	}
	return stored, nil
}

// SelectMostProbable returns the record with the highest probability. On ties
// the earliest record wins. It returns nil for an empty list.
func SelectMostProbable(records []Record) *Record {
	if len(records) == 0 {
		return nil
	}
	best := 0
	for i := 1; i < len(records); i++ {
		if records[i].Probability > records[best].Probability {
			best = i
		}
	}
	r := records[best]
	return &r
}

func alarmsURL(address, port string, since int64, last int) (string, error) {
	base := strings.TrimRight(address, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	u, err := url.Parse(base + ":" + port + alarmsPath)
	if err != nil {
		return "", fmt.Errorf("invalid alarm service address %q: %w", address, err)
	}
	q := u.Query()
	q.Set("time", strconv.FormatInt(since, 10))
	q.Set("last", strconv.Itoa(last))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
