package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oshokin/panic-button/internal/version"
)

// Sender is what the pipeline and the heartbeat need from a transport.
type Sender interface {
	// Send performs one attempt and blocks until it completes.
	Send(ctx context.Context, req Request) Outcome
	// SendAsync performs one attempt on its own goroutine and reports through done.
	SendAsync(ctx context.Context, req Request, done func(Outcome))
}

// Client delivers requests over HTTP.
type Client struct {
	// http is the underlying HTTP client.
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each attempt; zero keeps the transport default.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.http.Timeout = timeout
		}
	}
}

// WithHTTPClient replaces the HTTP client, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient creates a Client with its own http.Client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http: new(http.Client),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Send opens a connection, writes the body and reads the response status.
// Faults are converted to failure outcomes, never returned or panicked.
func (c *Client) Send(ctx context.Context, req Request) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = failed(fmt.Errorf("send panicked: %v", r)) //nolint:err113 // Recovered value is dynamic.
		}
	}()

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, bytes.NewReader(req.body))
	if err != nil {
		return failed(fmt.Errorf("build request: %w", err))
	}

	httpReq.Header.Set("User-Agent", version.UserAgent())

	for name, value := range req.headers {
		httpReq.Header.Set(name, value)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return failed(err)
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return rejected(resp.StatusCode)
	}

	return succeeded(resp.StatusCode)
}

// SendAsync runs Send on a new goroutine; done may be nil.
func (c *Client) SendAsync(ctx context.Context, req Request, done func(Outcome)) {
	go func() {
		outcome := c.Send(ctx, req)
		if done != nil {
			done(outcome)
		}
	}()
}
