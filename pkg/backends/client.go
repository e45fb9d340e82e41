// Package backends issues the HTTP calls made to the analytics services. Every
// backend gets its own circuit breaker so one failing service does not slow
// down dispatch for the others.
package backends

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/illmade-knight/go-analytics-bridge/pkg/metrics"
	"github.com/illmade-knight/go-analytics-bridge/pkg/types"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

// Response is a successful (HTTP 200) backend answer.
type Response struct {
	Status int
	Body   []byte
}

// FilePart is one file attached to a multipart request.
type FilePart struct {
	Field    string
	FileName string
	// ContentType defaults to application/octet-stream.
	ContentType string
	Content     io.Reader
}

// Form is the body of a multipart POST.
type Form struct {
	Files  []FilePart
	Fields map[string]string
}

// Config holds the settings shared by every backend.
type Config struct {
	Timeout time.Duration
	Breaker BreakerConfig
}

// Caller is the behaviour handlers rely on.
type Caller interface {
	Get(ctx context.Context, backend, url string) (*Response, error)
	PostMultipart(ctx context.Context, backend, url string, form Form) (*Response, error)
}

// Client is the default Caller.
type Client struct {
	httpClient *http.Client
	cfg        Config
	mu         sync.Mutex
	breakers   map[string]*gobreaker.CircuitBreaker[*Response]
	logger     zerolog.Logger
}

// NewClient creates a Client.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		breakers:   make(map[string]*gobreaker.CircuitBreaker[*Response]),
		logger:     logger.With().Str("component", "BackendClient").Logger(),
	}
}

// Get issues a GET request to the named backend.
func (c *Client) Get(ctx context.Context, backend, url string) (*Response, error) {
	return c.do(ctx, backend, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	})
}

// PostMultipart issues a multipart/form-data POST to the named backend. The
// file contents are read fully before the request is sent.
func (c *Client) PostMultipart(ctx context.Context, backend, url string, form Form) (*Response, error) {
	body, contentType, err := encodeForm(form)
	if err != nil {
		return nil, &types.TransportError{Collaborator: backend, Err: err}
	}
	return c.do(ctx, backend, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
}

func (c *Client) do(ctx context.Context, backend string, build func() (*http.Request, error)) (*Response, error) {
	cb := c.breaker(backend)
	start := time.Now()

	resp, err := cb.Execute(func() (*Response, error) {
		req, err := build()
		if err != nil {
			return nil, err
		}
		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = httpResp.Body.Close() }()

		body, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		if httpResp.StatusCode != http.StatusOK {
			return nil, &types.BackendError{Collaborator: backend, Status: httpResp.StatusCode, Body: string(body)}
		}
		return &Response{Status: httpResp.StatusCode, Body: body}, nil
	})
	metrics.BackendDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.BackendRequests.WithLabelValues(backend, "success").Inc()
		return resp, nil
	}

	if isRejected(err) {
		metrics.BackendRequests.WithLabelValues(backend, "rejected").Inc()
		c.logger.Warn().Str("backend", backend).Err(err).Msg("Request rejected by circuit breaker.")
		return nil, &types.TransportError{Collaborator: backend, Err: err}
	}

	metrics.BackendRequests.WithLabelValues(backend, "failure").Inc()
	var backendErr *types.BackendError
	if errors.As(err, &backendErr) {
		return nil, backendErr
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	return nil, &types.TransportError{Collaborator: backend, Err: err}
}

func (c *Client) breaker(backend string) *gobreaker.CircuitBreaker[*Response] {
	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.breakers[backend]
	if !ok {
		cb = newBreaker(backend, c.cfg.Breaker, c.logger)
		c.breakers[backend] = cb
	}
	return cb
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func encodeForm(form Form) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range form.Files {
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(f.Field), quoteEscaper.Replace(f.FileName)))
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create part %s: %w", f.Field, err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, "", fmt.Errorf("failed to copy %s into request: %w", f.FileName, err)
		}
	}
	for k, v := range form.Fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
