package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oshokin/panic-button/internal/domain/alarm"
	"github.com/oshokin/panic-button/internal/domain/button"
	"github.com/oshokin/panic-button/internal/logger"
)

const (
	// writeTimeout bounds a single frame write.
	writeTimeout = 10 * time.Second
	// maxFrameSize limits incoming frames.
	maxFrameSize = 64 * 1024
)

var (
	// ErrClosed is returned when the connection to the bridge is gone.
	ErrClosed = errors.New("gateway connection closed")
	// ErrRemote wraps a failure reported by the bridge.
	ErrRemote = errors.New("gateway error")

	errUnexpectedFrame = errors.New("unexpected frame")
)

// PressListener receives press transitions for one button.
// It runs on the read loop and must not block.
type PressListener func(button.PressEvent)

// Client is a single websocket session with the bridge.
type Client struct {
	// conn is the websocket connection.
	conn *websocket.Conn
	// writeMu serializes frame writes.
	writeMu sync.Mutex
	// nextID generates request ids.
	nextID atomic.Uint64

	mu        sync.Mutex
	pending   map[uint64]chan Frame
	listeners map[string]PressListener

	// done is closed when the read loop exits.
	done      chan struct{}
	closeOnce sync.Once
}

// Dial opens a session with the bridge at url.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		return nil, fmt.Errorf("dial gateway %s: %w", url, err)
	}

	conn.SetReadLimit(maxFrameSize)

	c := &Client{
		conn:      conn,
		pending:   make(map[uint64]chan Frame),
		listeners: make(map[string]PressListener),
		done:      make(chan struct{}),
	}

	go c.readLoop(logger.WithName(context.WithoutCancel(ctx), "gateway"))

	return c, nil
}

// Buttons returns the addresses of the buttons known to the bridge.
func (c *Client) Buttons(ctx context.Context) ([]string, error) {
	resp, err := c.call(ctx, Frame{Type: FrameList}, FrameButtons)
	if err != nil {
		return nil, err
	}

	return resp.Addresses, nil
}

// Connect asks the bridge to connect to the button.
func (c *Client) Connect(ctx context.Context, address string) error {
	_, err := c.call(ctx, Frame{Type: FrameConnect, Address: address}, FrameConnected)

	return err
}

// AddPressListener registers fn for presses of the button, replacing any previous listener.
func (c *Client) AddPressListener(address string, fn func(button.PressEvent)) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.mu.Lock()
	c.listeners[address] = fn
	c.mu.Unlock()

	return nil
}

// Locate requests a single position fix.
func (c *Client) Locate(ctx context.Context) (alarm.Position, error) {
	resp, err := c.call(ctx, Frame{Type: FrameLocate}, FrameLocation)
	if err != nil {
		return alarm.Position{}, err
	}

	if resp.Location == nil {
		return alarm.Position{}, fmt.Errorf("location frame without fix: %w", errUnexpectedFrame)
	}

	return resp.Location.Position(), nil
}

// Done is closed when the session ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close ends the session.
func (c *Client) Close() error {
	var err error

	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()

		err = c.conn.Close()
	})

	return err
}

// call sends a request and waits for the response with the same id.
func (c *Client) call(ctx context.Context, req Frame, want FrameType) (Frame, error) {
	req.ID = c.nextID.Add(1)
	ch := make(chan Frame, 1)

	c.mu.Lock()
	c.pending[req.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	if err := c.write(req); err != nil {
		return Frame{}, err
	}

	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-c.done:
		return Frame{}, ErrClosed
	case resp := <-ch:
		switch resp.Type {
		case want:
			return resp, nil
		case FrameError:
			return Frame{}, fmt.Errorf("%w: %s", ErrRemote, resp.Error)
		default:
			return Frame{}, fmt.Errorf("type %d for request %d: %w", resp.Type, req.ID, errUnexpectedFrame)
		}
	}
}

func (c *Client) write(f Frame) error {
	data, err := Encode(f)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}

	if err = c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}

	return nil
}

// readLoop dispatches responses and presses until the connection fails.
func (c *Client) readLoop(ctx context.Context) {
	defer close(c.done)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.DebugKV(ctx, "Gateway read loop stopped", "error", err)
			}

			_ = c.conn.Close()

			return
		}

		frame, err := Decode(data)
		if err != nil {
			logger.WarnKV(ctx, "Dropping malformed gateway frame", "error", err)

			continue
		}

		c.dispatch(ctx, frame)
	}
}

func (c *Client) dispatch(ctx context.Context, f Frame) {
	if f.Type == FramePress {
		c.mu.Lock()
		fn := c.listeners[f.Address]
		c.mu.Unlock()

		if fn == nil {
			logger.DebugKV(ctx, "Press for button without listener", "address", f.Address)

			return
		}

		var ts time.Time
		if f.Timestamp != 0 {
			ts = time.UnixMilli(f.Timestamp)
		}

		fn(button.PressEvent{
			Address:   f.Address,
			Down:      f.Down,
			Queued:    f.Queued,
			Timestamp: ts,
		})

		return
	}

	c.mu.Lock()
	ch, ok := c.pending[f.ID]
	c.mu.Unlock()

	if !ok {
		logger.DebugKV(ctx, "Response without a pending request", "id", f.ID, "type", f.Type)

		return
	}

	select {
	case ch <- f:
	default:
		logger.DebugKV(ctx, "Duplicate response dropped", "id", f.ID)
	}
}
