// Package gatewaytest provides an in-process button bridge for tests.
package gatewaytest

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oshokin/panic-button/internal/gateway"
)

// ErrNoSession is returned by Press when no client is connected.
var ErrNoSession = errors.New("no gateway session")

// peer is one accepted websocket session.
type peer struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (p *peer) send(f gateway.Frame) error {
	data, err := gateway.Encode(f)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Bridge is a scripted bridge served over httptest.
type Bridge struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu          sync.Mutex
	buttons     []string
	failConnect map[string]bool
	connects    map[string]int
	location    *gateway.Location
	locateErr   string
	locates     int
	sessions    int
	peers       map[*peer]struct{}
}

// NewBridge starts a bridge that knows the given buttons.
func NewBridge(buttons ...string) *Bridge {
	b := &Bridge{
		buttons:     buttons,
		failConnect: make(map[string]bool),
		connects:    make(map[string]int),
		peers:       make(map[*peer]struct{}),
	}

	b.server = httptest.NewServer(http.HandlerFunc(b.serve))

	return b
}

// URL returns the websocket address.
func (b *Bridge) URL() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http")
}

// Close stops the server and drops every session.
func (b *Bridge) Close() {
	b.DropSessions()
	b.server.Close()
}

// FailConnect makes connect requests for address fail (or succeed again).
func (b *Bridge) FailConnect(address string, fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failConnect[address] = fail
}

// SetLocation makes locate requests succeed with the given fix.
func (b *Bridge) SetLocation(loc gateway.Location) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.location = &loc
	b.locateErr = ""
}

// SetLocateError makes locate requests fail.
func (b *Bridge) SetLocateError(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.location = nil
	b.locateErr = msg
}

// ConnectCalls returns how many connect requests the address received.
func (b *Bridge) ConnectCalls(address string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.connects[address]
}

// LocateCalls returns how many locate requests were served.
func (b *Bridge) LocateCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.locates
}

// Sessions returns how many sessions were accepted.
func (b *Bridge) Sessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.sessions
}

// Press sends a press transition to every connected session.
func (b *Bridge) Press(address string, down bool) error {
	b.mu.Lock()
	peers := make([]*peer, 0, len(b.peers))
	for p := range b.peers {
		peers = append(peers, p)
	}
	b.mu.Unlock()

	if len(peers) == 0 {
		return ErrNoSession
	}

	frame := gateway.Frame{
		Type:      gateway.FramePress,
		Address:   address,
		Down:      down,
		Timestamp: time.Now().UnixMilli(),
	}

	var errs []error
	for _, p := range peers {
		errs = append(errs, p.send(frame))
	}

	return errors.Join(errs...)
}

// DropSessions closes every session from the bridge side.
func (b *Bridge) DropSessions() {
	b.mu.Lock()
	peers := b.peers
	b.peers = make(map[*peer]struct{})
	b.mu.Unlock()

	for p := range peers {
		_ = p.conn.Close()
	}
}

func (b *Bridge) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	p := &peer{conn: conn}

	b.mu.Lock()
	b.peers[p] = struct{}{}
	b.sessions++
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.peers, p)
		b.mu.Unlock()

		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		req, err := gateway.Decode(data)
		if err != nil {
			return
		}

		if err = p.send(b.respond(req)); err != nil {
			return
		}
	}
}

func (b *Bridge) respond(req gateway.Frame) gateway.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch req.Type {
	case gateway.FrameList:
		return gateway.Frame{Type: gateway.FrameButtons, ID: req.ID, Addresses: b.buttons}
	case gateway.FrameConnect:
		b.connects[req.Address]++

		if b.failConnect[req.Address] {
			return gateway.Frame{Type: gateway.FrameError, ID: req.ID, Error: "connect failed"}
		}

		return gateway.Frame{Type: gateway.FrameConnected, ID: req.ID, Address: req.Address}
	case gateway.FrameLocate:
		b.locates++

		if b.location == nil {
			msg := b.locateErr
			if msg == "" {
				msg = "no fix"
			}

			return gateway.Frame{Type: gateway.FrameError, ID: req.ID, Error: msg}
		}

		return gateway.Frame{Type: gateway.FrameLocation, ID: req.ID, Location: b.location}
	default:
		return gateway.Frame{Type: gateway.FrameError, ID: req.ID, Error: "unsupported request"}
	}
}
