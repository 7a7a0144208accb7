package signaling

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/peercall/peercall/internal/protocol"
	"github.com/peercall/peercall/internal/util"
)

// inboundBufferSize is the capacity of the inbound event stream.
const inboundBufferSize = 16

// WSChannel is a Channel over a WebSocket connection to the relay.
type WSChannel struct {
	conn   *websocket.Conn
	events chan Event

	mu     sync.Mutex // serializes writes
	closed atomic.Bool
}

// Dial connects to the relay, registers identity as the contract-mandated
// first envelope, and starts the read loop.
func Dial(ctx context.Context, url, identity string) (*WSChannel, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}

	ch := &WSChannel{
		conn:   conn,
		events: make(chan Event, inboundBufferSize),
	}

	if err := ch.Send(protocol.Register(identity)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to register identity: %w", err)
	}

	go ch.readLoop()
	return ch, nil
}

// Send writes one envelope, guarded by a mutex.
func (ch *WSChannel) Send(e protocol.Envelope) error {
	data, err := protocol.Encode(e)
	if err != nil {
		return err
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed.Load() {
		return fmt.Errorf("channel closed")
	}
	return ch.conn.WriteMessage(websocket.TextMessage, data)
}

// Events returns the inbound stream.
func (ch *WSChannel) Events() <-chan Event { return ch.events }

// Close shuts the connection down. The read loop then drains and closes
// the event stream without reporting a fault.
func (ch *WSChannel) Close() error {
	if ch.closed.Swap(true) {
		return nil
	}
	return ch.conn.Close()
}

// readLoop decodes inbound frames until the connection dies. Malformed
// frames are logged and dropped; the session is unaffected.
func (ch *WSChannel) readLoop() {
	defer close(ch.events)
	for {
		_, data, err := ch.conn.ReadMessage()
		if err != nil {
			if !ch.closed.Swap(true) {
				ch.events <- Event{Err: fmt.Errorf("relay connection lost: %w", err)}
			}
			return
		}

		env, err := protocol.Decode(data)
		if err != nil {
			util.LogWarning("dropping inbound frame: %v", err)
			continue
		}
		ch.events <- Event{Envelope: env}
	}
}
