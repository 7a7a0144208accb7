// Package protocol defines the signaling envelope exchanged with the relay
// and its JSON wire codec.
package protocol

import "encoding/json"

// Type identifies the kind of signaling envelope.
type Type string

const (
	// TypeRegister announces the local identity to the relay. It must be
	// the first envelope on a fresh connection.
	TypeRegister Type = "store_user"

	// TypeStartCall asks the relay to probe the callee's availability.
	TypeStartCall Type = "start_call"

	// TypeCallResponse is the relay's reply to TypeStartCall.
	TypeCallResponse Type = "call_response"

	// TypeCreateOffer / TypeCreateAnswer carry a session description from
	// the sender to the relay. The relay delivers them to the target as
	// TypeOfferReceived / TypeAnswerReceived.
	TypeCreateOffer    Type = "create_offer"
	TypeCreateAnswer   Type = "create_answer"
	TypeOfferReceived  Type = "offer_received"
	TypeAnswerReceived Type = "answer_received"

	// TypeCandidate carries a single ICE candidate.
	TypeCandidate Type = "ice_candidate"

	// TypeEndCall is an optional extension for symmetric teardown. Peers
	// that do not enable it simply never send one; receivers treat an
	// unexpected end_call for an unknown session as noise.
	TypeEndCall Type = "end_call"
)

// UserNotOnline is the call_response payload the relay sends when the
// callee has no registered connection.
const UserNotOnline = "user is not online"

// Envelope is the wire message. Name is the sender identity, Target the
// recipient identity (empty for relay-directed envelopes such as
// store_user). CallType is true for audio-only calls and false for
// audio+video, following the observed protocol. Data is type-dependent
// and kept raw so the envelope round-trips byte-exact.
type Envelope struct {
	Type     Type            `json:"type"`
	Name     string          `json:"name,omitempty"`
	Target   string          `json:"target,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	CallType bool            `json:"callType"`
}

// Description is the payload of offer/answer envelopes.
type Description struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

// Candidate is the payload of ice_candidate envelopes.
type Candidate struct {
	SdpMid        string `json:"sdpMid"`
	SdpMLineIndex int    `json:"sdpMLineIndex"`
	SdpCandidate  string `json:"sdpCandidate"`
}

// Description decodes the envelope data as a session description payload.
func (e Envelope) Description() (Description, error) {
	var d Description
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return Description{}, &MalformedError{Type: e.Type, Err: err}
	}
	return d, nil
}

// Candidate decodes the envelope data as an ICE candidate payload.
func (e Envelope) Candidate() (Candidate, error) {
	var c Candidate
	if err := json.Unmarshal(e.Data, &c); err != nil {
		return Candidate{}, &MalformedError{Type: e.Type, Err: err}
	}
	return c, nil
}

// Rejected reports whether a call_response envelope indicates the callee
// is unreachable. Any data other than the literal rejection string counts
// as success, matching the relay contract.
func (e Envelope) Rejected() bool {
	var s string
	if err := json.Unmarshal(e.Data, &s); err != nil {
		return false
	}
	return s == UserNotOnline
}
