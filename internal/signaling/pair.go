package signaling

import (
	"fmt"
	"sync"

	"github.com/peercall/peercall/internal/protocol"
)

// Loopback is an in-memory Channel linked to a peer Loopback. Envelopes
// sent on one side arrive on the other side's event stream in send order.
// It stands in for the relay connection in tests: the test typically holds
// one side and plays relay.
type Loopback struct {
	peer *Loopback

	mu     sync.Mutex
	events chan Event
	closed bool
	drop   func(protocol.Envelope) bool
}

// Pair creates two linked loopback channels.
func Pair() (*Loopback, *Loopback) {
	a := &Loopback{events: make(chan Event, 64)}
	b := &Loopback{events: make(chan Event, 64)}
	a.peer, b.peer = b, a
	return a, b
}

// SetDrop installs a predicate consulted for every envelope sent from this
// side; envelopes it matches are silently lost, emulating an unreliable
// relay.
func (l *Loopback) SetDrop(fn func(protocol.Envelope) bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.drop = fn
}

// Send round-trips the envelope through the codec (so malformed payloads
// surface here, as on the wire) and delivers it to the linked peer.
func (l *Loopback) Send(e protocol.Envelope) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return fmt.Errorf("channel closed")
	}
	drop := l.drop
	l.mu.Unlock()

	data, err := protocol.Encode(e)
	if err != nil {
		return err
	}
	decoded, err := protocol.Decode(data)
	if err != nil {
		return err
	}
	if drop != nil && drop(decoded) {
		return nil
	}
	l.peer.deliver(Event{Envelope: decoded})
	return nil
}

// Events returns the inbound stream.
func (l *Loopback) Events() <-chan Event { return l.events }

// Close closes this side and faults the peer, mirroring a dropped
// connection.
func (l *Loopback) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.events)
	l.mu.Unlock()

	l.peer.fault(fmt.Errorf("relay connection lost: peer closed"))
	return nil
}

func (l *Loopback) deliver(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.events <- ev
}

func (l *Loopback) fault(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.events <- Event{Err: err}
	close(l.events)
}
