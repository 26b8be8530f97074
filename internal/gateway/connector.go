package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oshokin/panic-button/internal/domain/alarm"
)

// ErrNotConnected is returned by Connector.Locate when no live session exists.
var ErrNotConnected = errors.New("gateway not connected")

// Connector dials sessions with the bridge and remembers the latest one.
type Connector struct {
	// url is the bridge websocket address.
	url string
	// timeout bounds dialing.
	timeout time.Duration

	mu      sync.Mutex
	current *Client
}

// NewConnector creates a connector; a non-positive timeout disables the dial bound.
func NewConnector(url string, timeout time.Duration) *Connector {
	return &Connector{
		url:     url,
		timeout: timeout,
	}
}

// Dial opens a fresh session and closes the previous one.
func (c *Connector) Dial(ctx context.Context) (*Client, error) {
	dialCtx := ctx

	if c.timeout > 0 {
		var cancel context.CancelFunc

		dialCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	client, err := Dial(dialCtx, c.url)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	previous := c.current
	c.current = client
	c.mu.Unlock()

	if previous != nil {
		_ = previous.Close()
	}

	return client, nil
}

// Locate asks the current session for a position fix.
func (c *Connector) Locate(ctx context.Context) (alarm.Position, error) {
	c.mu.Lock()
	client := c.current
	c.mu.Unlock()

	if client == nil {
		return alarm.Position{}, ErrNotConnected
	}

	select {
	case <-client.Done():
		return alarm.Position{}, ErrNotConnected
	default:
	}

	return client.Locate(ctx)
}

// Close ends the current session.
func (c *Connector) Close() error {
	c.mu.Lock()
	client := c.current
	c.current = nil
	c.mu.Unlock()

	if client == nil {
		return nil
	}

	return client.Close()
}
