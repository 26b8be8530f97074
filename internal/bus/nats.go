package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// defaultFlushTimeout bounds a flush when the caller sets no deadline.
const defaultFlushTimeout = 5 * time.Second

// NATSBus implements MessageBus on a NATS connection.
type NATSBus struct {
	conn *nats.Conn
	// flushTimeout bounds the flush on Close.
	flushTimeout time.Duration
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	// URL is the server address, e.g. nats://127.0.0.1:4222.
	URL string
	// Name identifies the client in server monitoring.
	Name string
	// ConnectTimeout bounds the initial dial.
	ConnectTimeout time.Duration
	// ReconnectWait is the pause between reconnect attempts.
	ReconnectWait time.Duration
	// FlushTimeout bounds the delivery of buffered publishes on Close.
	FlushTimeout time.Duration
}

// NewNATSBus connects to the server; reconnects are unlimited because the
// dispatcher outlives any single broker restart.
func NewNATSBus(cfg NATSConfig) (*NATSBus, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}

	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}

	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = defaultFlushTimeout
	}

	opts := []nats.Option{
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
	}

	if cfg.ConnectTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnectTimeout))
	}

	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &NATSBus{conn: conn, flushTimeout: cfg.FlushTimeout}, nil
}

// Publish sends data to subject.
func (b *NATSBus) Publish(subject string, data []byte) error {
	if err := validateSubject(subject); err != nil {
		return err
	}

	if b.conn.IsClosed() {
		return ErrClosed
	}

	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}

	return nil
}

// Subscribe creates a subscription that drops messages when its buffer is full.
//
//nolint:ireturn // Subscription is the shared contract of both buses.
func (b *NATSBus) Subscribe(subject string) (Subscription, error) {
	if err := validateSubject(subject); err != nil {
		return nil, err
	}

	if b.conn.IsClosed() {
		return nil, ErrClosed
	}

	sub := &natsSub{ch: make(chan *Message, defaultBufferSize)}

	natsSubscription, err := b.conn.Subscribe(subject, func(m *nats.Msg) {
		sub.deliver(&Message{Subject: m.Subject, Data: m.Data})
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}

	sub.sub = natsSubscription

	return sub, nil
}

// Connected reports whether the connection to the server is up.
func (b *NATSBus) Connected() bool {
	return b.conn.IsConnected()
}

// Flush blocks until the server acknowledged every buffered publish. While
// the connection is down it fails once ctx, or the default timeout, expires.
func (b *NATSBus) Flush(ctx context.Context) error {
	if b.conn.IsClosed() {
		return ErrClosed
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, b.flushTimeout)
		defer cancel()
	}

	if err := b.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("%w: nats flush: %w", ErrNotConnected, err)
	}

	return nil
}

// Close flushes pending publishes and closes the connection synchronously.
// Publishes still buffered while disconnected are reported as lost.
func (b *NATSBus) Close() error {
	if b.conn.IsClosed() {
		return nil
	}

	var err error

	if b.conn.IsConnected() {
		if flushErr := b.conn.FlushTimeout(b.flushTimeout); flushErr != nil {
			err = fmt.Errorf("%w: nats flush: %w", ErrNotConnected, flushErr)
		}
	} else if buffered, bufErr := b.conn.Buffered(); bufErr == nil && buffered > 0 {
		err = fmt.Errorf("%w: %d bytes unsent", ErrNotConnected, buffered)
	}

	b.conn.Close()

	return err
}

// natsSub adapts a NATS subscription to the channel-based contract.
type natsSub struct {
	sub *nats.Subscription

	// mu orders deliver against Unsubscribe.
	mu     sync.Mutex
	ch     chan *Message
	closed bool
}

// deliver forwards a message without blocking the NATS dispatcher.
func (s *natsSub) deliver(msg *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	select {
	case s.ch <- msg:
	default:
	}
}

// Messages returns the delivery channel.
func (s *natsSub) Messages() <-chan *Message {
	return s.ch
}

// Unsubscribe stops delivery and closes the channel.
func (s *natsSub) Unsubscribe() error {
	err := s.sub.Unsubscribe()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}

	return err
}
