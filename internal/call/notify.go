package call

import "github.com/peercall/peercall/internal/media"

// EndReason explains a CallEnded notification.
type EndReason string

const (
	EndReasonLocalHangUp  EndReason = "local hang-up"
	EndReasonRemoteHangUp EndReason = "remote hang-up"
	EndReasonRingTimeout  EndReason = "ring timeout"
	EndReasonChannelFault EndReason = "connection lost"
)

// Notifier receives state notifications for the UI consumer. Callbacks are
// invoked from the coordinator loop: they must return promptly and must not
// call back into the coordinator synchronously, or the loop deadlocks.
type Notifier interface {
	// IncomingCall fires when a remote peer rings, before any engine work.
	IncomingCall(from string, mode media.Mode)

	// PeerUnreachable fires when the relay reports the callee offline.
	PeerUnreachable(target string)

	// NegotiationFailed fires on a terminal engine failure; the session
	// has already been discarded.
	NegotiationFailed(stage media.Stage, err error)

	// RemoteMediaAvailable fires once per session when remote media
	// starts flowing.
	RemoteMediaAvailable(mode media.Mode)

	// CallConnected fires when negotiation completes on this side.
	CallConnected(peer string)

	// CallEnded fires when an established or ringing call is torn down.
	CallEnded(reason EndReason)
}
