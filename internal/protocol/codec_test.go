package protocol

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

// TestEncodeDecodeRoundTrip verifies that encoding and decoding are inverse
// operations for every envelope type.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	desc := Description{SDP: "v=0\r\no=- 46117 2 IN IP4 127.0.0.1", Type: "offer"}
	cand := Candidate{SdpMid: "0", SdpMLineIndex: 0, SdpCandidate: "candidate:1 1 udp 2122260223 192.168.1.3 54321 typ host"}

	testCases := []struct {
		name string
		env  Envelope
	}{
		{"register", Register("alice")},
		{"start_call video", StartCall("alice", "bob", false)},
		{"start_call audio-only", StartCall("alice", "bob", true)},
		{"call_response success", CallResponse("alice", true)},
		{"call_response rejection", CallResponse("alice", false)},
		{"create_offer", Offer("alice", "bob", desc, false)},
		{"create_answer", Answer("bob", "alice", Description{SDP: "v=0", Type: "answer"}, true)},
		{"ice_candidate", NewCandidate("alice", "bob", cand, false)},
		{"end_call", EndCall("alice", "bob")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := Encode(tc.env)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			decoded, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if !reflect.DeepEqual(decoded, tc.env) {
				t.Errorf("round trip mismatch:\n got %+v\nwant %+v", decoded, tc.env)
			}
		})
	}
}

// TestDecodeRejectsMalformedFrames verifies that garbage input surfaces a
// MalformedError instead of a zero-value envelope.
func TestDecodeRejectsMalformedFrames(t *testing.T) {
	testCases := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"not json", "hello there"},
		{"missing type", `{"name":"alice"}`},
		{"unknown type", `{"type":"subscribe","name":"alice"}`},
		{"wrong json shape", `[1,2,3]`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.data))
			if err == nil {
				t.Fatal("expected error for malformed frame, got nil")
			}
			var malformed *MalformedError
			if !errors.As(err, &malformed) {
				t.Errorf("expected MalformedError, got %T: %v", err, err)
			}
		})
	}
}

// TestEncodeRejectsUnknownType verifies Encode refuses envelopes that would
// be dropped by every receiver anyway.
func TestEncodeRejectsUnknownType(t *testing.T) {
	if _, err := Encode(Envelope{Type: "bogus"}); err == nil {
		t.Fatal("expected error encoding unknown type")
	}
}

// TestWireFieldNames pins the exact JSON field names of the envelope.
func TestWireFieldNames(t *testing.T) {
	data, err := Encode(StartCall("alice", "bob", true))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	for _, field := range []string{`"type":"start_call"`, `"name":"alice"`, `"target":"bob"`, `"callType":true`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("wire frame %s missing %s", data, field)
		}
	}
}

// TestDescriptionPayload verifies the offer/answer payload accessor.
func TestDescriptionPayload(t *testing.T) {
	env := Offer("alice", "bob", Description{SDP: "v=0 test", Type: "offer"}, false)

	d, err := env.Description()
	if err != nil {
		t.Fatalf("Description failed: %v", err)
	}
	if d.SDP != "v=0 test" || d.Type != "offer" {
		t.Errorf("unexpected payload: %+v", d)
	}

	bad := env
	bad.Data = json.RawMessage(`"not an object"`)
	if _, err := bad.Description(); err == nil {
		t.Error("expected error for non-object description payload")
	}
}

// TestCandidatePayload verifies the ice_candidate payload accessor.
func TestCandidatePayload(t *testing.T) {
	want := Candidate{SdpMid: "audio", SdpMLineIndex: 1, SdpCandidate: "candidate:42"}
	env := NewCandidate("alice", "bob", want, true)

	got, err := env.Candidate()
	if err != nil {
		t.Fatalf("Candidate failed: %v", err)
	}
	if got != want {
		t.Errorf("candidate mismatch: got %+v, want %+v", got, want)
	}
}

// TestRejectedDetection verifies that only the literal offline payload
// counts as a rejection.
func TestRejectedDetection(t *testing.T) {
	testCases := []struct {
		name string
		data string
		want bool
	}{
		{"offline literal", `"user is not online"`, true},
		{"success string", `"ready for call"`, false},
		{"absent data", ``, false},
		{"object data", `{"ok":true}`, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := Envelope{Type: TypeCallResponse}
			if tc.data != "" {
				env.Data = json.RawMessage(tc.data)
			}
			if got := env.Rejected(); got != tc.want {
				t.Errorf("Rejected() = %t, want %t", got, tc.want)
			}
		})
	}
}
