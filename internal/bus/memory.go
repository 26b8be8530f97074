package bus

import (
	"slices"
	"sync"
)

// MemoryBus delivers messages between goroutines of one process.
// Slow subscribers lose messages once their buffer is full.
type MemoryBus struct {
	// bufferSize is the capacity of each subscription channel.
	bufferSize int

	// mu guards subs and closed; sends happen under the read lock so
	// Unsubscribe never closes a channel that is being written.
	mu     sync.RWMutex
	subs   map[string][]*memorySub
	closed bool
}

// memorySub is a MemoryBus subscription.
type memorySub struct {
	subject string
	ch      chan *Message
	bus     *MemoryBus
	once    sync.Once
}

// NewMemoryBus creates an in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		bufferSize: defaultBufferSize,
		subs:       make(map[string][]*memorySub),
	}
}

// Publish sends data to all current subscribers of subject.
func (b *MemoryBus) Publish(subject string, data []byte) error {
	if err := validateSubject(subject); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	for _, sub := range b.subs[subject] {
		select {
		case sub.ch <- &Message{Subject: subject, Data: slices.Clone(data)}:
		default:
		}
	}

	return nil
}

// Subscribe registers a new subscriber for subject.
//
//nolint:ireturn // Subscription is the shared contract of both buses.
func (b *MemoryBus) Subscribe(subject string) (Subscription, error) {
	if err := validateSubject(subject); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	sub := &memorySub{
		subject: subject,
		ch:      make(chan *Message, b.bufferSize),
		bus:     b,
	}

	b.subs[subject] = append(b.subs[subject], sub)

	return sub, nil
}

// Close ends every subscription.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true

	for _, subs := range b.subs {
		for _, sub := range subs {
			sub.once.Do(func() { close(sub.ch) })
		}
	}

	b.subs = nil

	return nil
}

// Messages returns the delivery channel.
func (s *memorySub) Messages() <-chan *Message {
	return s.ch
}

// Unsubscribe removes the subscription and closes its channel.
func (s *memorySub) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if !s.bus.closed {
		s.bus.subs[s.subject] = slices.DeleteFunc(s.bus.subs[s.subject], func(other *memorySub) bool {
			return other == s
		})
	}

	s.once.Do(func() { close(s.ch) })

	return nil
}
