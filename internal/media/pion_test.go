package media_test

import (
	"strings"
	"testing"
	"time"

	"github.com/peercall/peercall/internal/media"
)

// waitKind drains the stream until an event of the wanted kind appears,
// skipping candidate and connection chatter. A failure event fails the test.
func waitKind(t *testing.T, eng media.Engine, kind media.EventKind) media.Event {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-eng.Events():
			if !ok {
				t.Fatal("event stream closed")
			}
			if ev.Kind == media.EventFailed {
				t.Fatalf("engine failed at %s: %v", ev.Stage, ev.Err)
			}
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event kind %d", kind)
		}
	}
}

// TestPionEnginesNegotiateOfferAnswer runs a real local offer/answer exchange
// between two engines, the way the coordinator drives them.
func TestPionEnginesNegotiateOfferAnswer(t *testing.T) {
	caller, err := media.NewPionEngine(nil)
	if err != nil {
		t.Fatalf("NewPionEngine failed: %v", err)
	}
	defer caller.StopAndRelease()

	callee, err := media.NewPionEngine(nil)
	if err != nil {
		t.Fatalf("NewPionEngine failed: %v", err)
	}
	defer callee.StopAndRelease()

	if err := caller.StartCapture(media.ModeAudioVideo); err != nil {
		t.Fatalf("caller StartCapture failed: %v", err)
	}
	if caller.AudioTrack() == nil || caller.VideoTrack() == nil {
		t.Fatal("capture tracks missing after StartCapture")
	}

	caller.CreateOffer(media.ModeAudioVideo)
	offer := waitKind(t, caller, media.EventOfferCreated).Description
	if offer.Kind != "offer" || !strings.Contains(offer.SDP, "m=audio") || !strings.Contains(offer.SDP, "m=video") {
		t.Fatalf("offer lacks expected media sections:\n%s", offer.SDP)
	}

	caller.SetLocalDescription(offer)
	waitKind(t, caller, media.EventLocalApplied)

	if err := callee.StartCapture(media.ModeAudioVideo); err != nil {
		t.Fatalf("callee StartCapture failed: %v", err)
	}
	callee.SetRemoteDescription(offer)
	waitKind(t, callee, media.EventRemoteApplied)

	callee.CreateAnswer(media.ModeAudioVideo)
	answer := waitKind(t, callee, media.EventAnswerCreated).Description
	if answer.Kind != "answer" || answer.SDP == "" {
		t.Fatalf("unexpected answer: %+v", answer)
	}

	callee.SetLocalDescription(answer)
	waitKind(t, callee, media.EventLocalApplied)

	caller.SetRemoteDescription(answer)
	waitKind(t, caller, media.EventRemoteApplied)
}

// TestPionEngineGathersLocalCandidates verifies that applying a local
// description starts trickle gathering.
func TestPionEngineGathersLocalCandidates(t *testing.T) {
	eng, err := media.NewPionEngine(nil)
	if err != nil {
		t.Fatalf("NewPionEngine failed: %v", err)
	}
	defer eng.StopAndRelease()

	eng.CreateOffer(media.ModeAudioOnly)
	offer := waitKind(t, eng, media.EventOfferCreated).Description
	eng.SetLocalDescription(offer)

	ev := waitKind(t, eng, media.EventLocalCandidate)
	if ev.Candidate.Text == "" {
		t.Error("gathered candidate has empty text")
	}
}

func TestPionEngineRejectsCandidateBeforeRemoteDescription(t *testing.T) {
	eng, err := media.NewPionEngine(nil)
	if err != nil {
		t.Fatalf("NewPionEngine failed: %v", err)
	}
	defer eng.StopAndRelease()

	cand := media.Candidate{Mid: "0", LineIndex: 0, Text: "candidate:1 1 udp 2122260223 10.0.0.1 50000 typ host"}
	if err := eng.AddRemoteCandidate(cand); err == nil {
		t.Fatal("candidate accepted before a remote description was set")
	}
}

func TestPionEngineInvalidDescriptionKindFails(t *testing.T) {
	eng, err := media.NewPionEngine(nil)
	if err != nil {
		t.Fatalf("NewPionEngine failed: %v", err)
	}
	defer eng.StopAndRelease()

	eng.SetRemoteDescription(media.Description{Kind: "monologue", SDP: "v=0"})

	select {
	case ev := <-eng.Events():
		if ev.Kind != media.EventFailed || ev.Stage != media.StageSetRemote {
			t.Fatalf("expected set-remote failure, got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for failure event")
	}
}

func TestPionEngineTogglesRequireCapture(t *testing.T) {
	eng, err := media.NewPionEngine(nil)
	if err != nil {
		t.Fatalf("NewPionEngine failed: %v", err)
	}
	defer eng.StopAndRelease()

	if err := eng.SetAudioEnabled(false); err == nil {
		t.Error("audio toggle succeeded without capture")
	}

	if err := eng.StartCapture(media.ModeAudioOnly); err != nil {
		t.Fatalf("StartCapture failed: %v", err)
	}
	if err := eng.SetAudioEnabled(false); err != nil {
		t.Errorf("mute failed: %v", err)
	}
	if err := eng.SetAudioEnabled(true); err != nil {
		t.Errorf("unmute failed: %v", err)
	}

	// Audio-only capture has no video track to toggle.
	if err := eng.SetVideoEnabled(false); err == nil {
		t.Error("video toggle succeeded in audio-only capture")
	}
}
