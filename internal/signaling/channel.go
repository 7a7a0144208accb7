// Package signaling provides the duplex channel to the relay over which
// envelopes travel, plus an in-memory implementation for tests.
package signaling

import "github.com/peercall/peercall/internal/protocol"

// Event is delivered on a channel's inbound stream. Either Envelope is a
// received message (Err nil), or Err reports a transport fault. After a
// fault event the stream is closed and the channel is unusable.
type Event struct {
	Envelope protocol.Envelope
	Err      error
}

// Channel is the signaling transport the coordinator consumes. The
// transport preserves per-direction ordering but guarantees neither
// delivery nor cross-peer ordering.
type Channel interface {
	// Send delivers one envelope to the relay. It is safe for concurrent
	// use.
	Send(e protocol.Envelope) error

	// Events returns the inbound stream. Malformed frames are dropped
	// before they reach the stream.
	Events() <-chan Event

	// Close tears the connection down; the event stream is closed.
	Close() error
}
