// Package media defines the engine interface the call coordinator drives
// and its pion-backed and in-memory implementations.
package media

// Mode selects the media carried by a call. It is chosen by the caller and
// fixed for the lifetime of a session.
type Mode string

const (
	ModeAudioOnly  Mode = "audio"
	ModeAudioVideo Mode = "video"
)

// AudioOnly reports the wire encoding of the mode (callType=true means
// audio-only).
func (m Mode) AudioOnly() bool { return m == ModeAudioOnly }

// ModeFromCallType maps the wire callType flag back to a Mode.
func ModeFromCallType(audioOnly bool) Mode {
	if audioOnly {
		return ModeAudioOnly
	}
	return ModeAudioVideo
}

// Description is an opaque session description. Kind is "offer" or
// "answer"; the SDP body is never inspected, only relayed.
type Description struct {
	Kind string
	SDP  string
}

// Candidate is an opaque connectivity candidate. Candidates must reach the
// engine in the order they were produced by the remote peer.
type Candidate struct {
	Mid       string
	LineIndex int
	Text      string
}

// Stage names the engine operation that failed, for observability.
type Stage string

const (
	StageSetup        Stage = "setup"
	StageCapture      Stage = "capture"
	StageCreateOffer  Stage = "create-offer"
	StageCreateAnswer Stage = "create-answer"
	StageSetLocal     Stage = "set-local"
	StageSetRemote    Stage = "set-remote"
)

// EventKind discriminates engine events.
type EventKind int

const (
	// EventOfferCreated / EventAnswerCreated report completion of
	// CreateOffer / CreateAnswer; Description holds the result.
	EventOfferCreated EventKind = iota + 1
	EventAnswerCreated

	// EventLocalApplied / EventRemoteApplied report successful completion
	// of SetLocalDescription / SetRemoteDescription; Description holds the
	// description that was applied.
	EventLocalApplied
	EventRemoteApplied

	// EventLocalCandidate reports a newly gathered local candidate.
	EventLocalCandidate

	// EventRemoteMedia reports that remote media has started flowing.
	EventRemoteMedia

	// EventFailed reports a failed asynchronous operation; Stage and Err
	// identify it. A failure is terminal for the session.
	EventFailed
)

// Event is delivered on the engine's event stream. Only the fields relevant
// to Kind are populated.
type Event struct {
	Kind        EventKind
	Description Description
	Candidate   Candidate
	Mode        Mode
	Stage       Stage
	Err         error
}

// Engine is the capability surface the coordinator drives. CreateOffer,
// CreateAnswer, SetLocalDescription and SetRemoteDescription are
// asynchronous: they return immediately and report completion or failure on
// the event stream. The coordinator never blocks on them.
//
// The stream is closed by StopAndRelease, after which no method may be
// called.
type Engine interface {
	CreateOffer(mode Mode)
	CreateAnswer(mode Mode)
	SetLocalDescription(d Description)
	SetRemoteDescription(d Description)

	// AddRemoteCandidate injects a candidate received through signaling.
	// It must only be called after the remote description was applied.
	AddRemoteCandidate(c Candidate) error

	// StartCapture prepares local audio (and video, for ModeAudioVideo)
	// sources before negotiation begins.
	StartCapture(mode Mode) error

	// SetAudioEnabled and SetVideoEnabled pause or resume the local
	// capture without renegotiation.
	SetAudioEnabled(on bool) error
	SetVideoEnabled(on bool) error

	// StopAndRelease tears down the engine and closes the event stream.
	// Safe to call more than once.
	StopAndRelease()

	Events() <-chan Event
}
