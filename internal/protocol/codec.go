package protocol

import (
	"encoding/json"
	"fmt"
)

// MalformedError wraps a decode failure for a single envelope. The caller
// drops the offending frame and carries on; a bad envelope never affects
// session state.
type MalformedError struct {
	Type Type
	Err  error
}

func (e *MalformedError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("malformed envelope: %v", e.Err)
	}
	return fmt.Sprintf("malformed %s envelope: %v", e.Type, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// knownTypes guards Decode against garbage frames that happen to be valid
// JSON objects.
var knownTypes = map[Type]bool{
	TypeRegister:       true,
	TypeStartCall:      true,
	TypeCallResponse:   true,
	TypeCreateOffer:    true,
	TypeCreateAnswer:   true,
	TypeOfferReceived:  true,
	TypeAnswerReceived: true,
	TypeCandidate:      true,
	TypeEndCall:        true,
}

// Encode serializes an envelope into a JSON text frame.
func Encode(e Envelope) ([]byte, error) {
	if !knownTypes[e.Type] {
		return nil, fmt.Errorf("cannot encode envelope with unknown type %q", e.Type)
	}
	return json.Marshal(e)
}

// Decode parses a JSON text frame into an envelope. Unknown or missing
// types are rejected as malformed.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, &MalformedError{Err: err}
	}
	if !knownTypes[e.Type] {
		return Envelope{}, &MalformedError{Type: e.Type, Err: fmt.Errorf("unknown type %q", e.Type)}
	}
	return e, nil
}

// ---------------------------------------------------------------------------
// Outbound constructors
// ---------------------------------------------------------------------------

// Register builds the identity announcement sent on connect.
func Register(name string) Envelope {
	return Envelope{Type: TypeRegister, Name: name}
}

// StartCall builds the availability probe for target. audioOnly selects an
// audio-only call; otherwise the call carries audio and video.
func StartCall(name, target string, audioOnly bool) Envelope {
	return Envelope{Type: TypeStartCall, Name: name, Target: target, CallType: audioOnly}
}

// CallResponse builds the relay's reply to a start_call. ok=false produces
// the rejection payload.
func CallResponse(target string, ok bool) Envelope {
	data := json.RawMessage(`"ready for call"`)
	if !ok {
		data, _ = json.Marshal(UserNotOnline)
	}
	return Envelope{Type: TypeCallResponse, Target: target, Data: data}
}

// Offer builds a create_offer envelope carrying the local description.
func Offer(name, target string, d Description, audioOnly bool) Envelope {
	return descriptionEnvelope(TypeCreateOffer, name, target, d, audioOnly)
}

// Answer builds a create_answer envelope carrying the local description.
func Answer(name, target string, d Description, audioOnly bool) Envelope {
	return descriptionEnvelope(TypeCreateAnswer, name, target, d, audioOnly)
}

func descriptionEnvelope(t Type, name, target string, d Description, audioOnly bool) Envelope {
	data, _ := json.Marshal(d)
	return Envelope{Type: t, Name: name, Target: target, Data: data, CallType: audioOnly}
}

// NewCandidate builds an ice_candidate envelope for a locally gathered
// candidate.
func NewCandidate(name, target string, c Candidate, audioOnly bool) Envelope {
	data, _ := json.Marshal(c)
	return Envelope{Type: TypeCandidate, Name: name, Target: target, Data: data, CallType: audioOnly}
}

// EndCall builds the optional teardown notification.
func EndCall(name, target string) Envelope {
	return Envelope{Type: TypeEndCall, Name: name, Target: target}
}
