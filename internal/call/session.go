package call

import (
	"github.com/google/uuid"

	"github.com/peercall/peercall/internal/media"
)

// State is the coordinator's externally visible call state.
type State string

const (
	StateIdle            State = "idle"
	StateOutgoingRinging State = "outgoing_ringing"
	StateIncomingRinging State = "incoming_ringing"
	StateNegotiating     State = "negotiating"
	StateConnected       State = "connected"
)

// Direction records which side initiated the session.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

// session is the single mutable call entity. It is owned exclusively by the
// coordinator loop; nothing outside the loop ever touches it. The id tags
// engine events so completions for a discarded session are recognized and
// ignored instead of resurrecting stale state.
type session struct {
	id        uuid.UUID
	state     State
	direction Direction
	local     string
	remote    string
	mode      media.Mode

	engine media.Engine

	// remoteOffer holds the received offer on the incoming side between
	// ring and accept; the engine must not be touched before the user
	// decides.
	remoteOffer media.Description

	// pending buffers candidates that arrived before the remote
	// description was applied. It preserves arrival order and is flushed
	// to the engine exactly once.
	pending       []media.Candidate
	remoteApplied bool
	flushed       bool

	mediaNotified bool
	micMuted      bool
	cameraOff     bool
}

func newSession(direction Direction, local, remote string, mode media.Mode) *session {
	return &session{
		id:        uuid.New(),
		direction: direction,
		local:     local,
		remote:    remote,
		mode:      mode,
	}
}
