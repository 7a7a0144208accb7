package media_test

import (
	"testing"
	"time"

	"github.com/peercall/peercall/internal/media"
)

func nextEvent(t *testing.T, eng media.Engine) media.Event {
	t.Helper()
	select {
	case ev, ok := <-eng.Events():
		if !ok {
			t.Fatal("event stream closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for engine event")
		panic("unreachable")
	}
}

func TestFakeEngineReportsCompletionsInOrder(t *testing.T) {
	eng := media.NewFakeEngine()

	if err := eng.StartCapture(media.ModeAudioVideo); err != nil {
		t.Fatalf("StartCapture failed: %v", err)
	}

	eng.CreateOffer(media.ModeAudioVideo)
	ev := nextEvent(t, eng)
	if ev.Kind != media.EventOfferCreated || ev.Description.Kind != "offer" {
		t.Fatalf("unexpected event %+v", ev)
	}

	eng.SetLocalDescription(ev.Description)
	if ev := nextEvent(t, eng); ev.Kind != media.EventLocalApplied {
		t.Fatalf("unexpected event %+v", ev)
	}

	eng.SetRemoteDescription(media.Description{Kind: "answer", SDP: "v=0"})
	if ev := nextEvent(t, eng); ev.Kind != media.EventRemoteApplied {
		t.Fatalf("unexpected event %+v", ev)
	}

	want := []string{"start-capture:video", "create-offer:video", "set-local:offer", "set-remote:answer"}
	got := eng.Calls()
	if len(got) != len(want) {
		t.Fatalf("journal = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("journal[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestFakeEngineFailureInjection(t *testing.T) {
	testCases := []struct {
		stage   media.Stage
		trigger func(*media.FakeEngine)
	}{
		{media.StageCreateOffer, func(e *media.FakeEngine) { e.CreateOffer(media.ModeAudioOnly) }},
		{media.StageCreateAnswer, func(e *media.FakeEngine) { e.CreateAnswer(media.ModeAudioOnly) }},
		{media.StageSetLocal, func(e *media.FakeEngine) {
			e.SetLocalDescription(media.Description{Kind: "offer"})
		}},
		{media.StageSetRemote, func(e *media.FakeEngine) {
			e.SetRemoteDescription(media.Description{Kind: "offer"})
		}},
	}

	for _, tc := range testCases {
		t.Run(string(tc.stage), func(t *testing.T) {
			eng := media.NewFakeEngine()
			eng.FailAt(tc.stage)
			tc.trigger(eng)

			ev := nextEvent(t, eng)
			if ev.Kind != media.EventFailed {
				t.Fatalf("expected failure event, got %+v", ev)
			}
			if ev.Stage != tc.stage || ev.Err == nil {
				t.Errorf("failure event = %+v, want stage %s with error", ev, tc.stage)
			}
		})
	}
}

func TestFakeEngineRecordsRemoteCandidates(t *testing.T) {
	eng := media.NewFakeEngine()

	cands := []media.Candidate{
		{Mid: "0", LineIndex: 0, Text: "candidate:a"},
		{Mid: "0", LineIndex: 0, Text: "candidate:b"},
	}
	for _, c := range cands {
		if err := eng.AddRemoteCandidate(c); err != nil {
			t.Fatalf("AddRemoteCandidate failed: %v", err)
		}
	}

	got := eng.RemoteCandidates()
	if len(got) != len(cands) {
		t.Fatalf("recorded %d candidates, want %d", len(got), len(cands))
	}
	for i := range cands {
		if got[i] != cands[i] {
			t.Errorf("candidate[%d] = %+v, want %+v", i, got[i], cands[i])
		}
	}
}

func TestFakeEngineReleaseIsIdempotent(t *testing.T) {
	eng := media.NewFakeEngine()

	eng.StopAndRelease()
	eng.StopAndRelease()
	if !eng.Released() {
		t.Error("Released() = false after StopAndRelease")
	}

	// Emission after release is a silent no-op, not a panic on a closed
	// channel.
	eng.EmitLocalCandidate(media.Candidate{Text: "candidate:late"})
	eng.EmitRemoteMedia(media.ModeAudioOnly)

	if _, ok := <-eng.Events(); ok {
		t.Error("event stream still open after release")
	}
}

func TestModeWireMapping(t *testing.T) {
	if !media.ModeAudioOnly.AudioOnly() || media.ModeAudioVideo.AudioOnly() {
		t.Error("AudioOnly mapping wrong")
	}
	if media.ModeFromCallType(true) != media.ModeAudioOnly {
		t.Error("callType=true should map to audio-only")
	}
	if media.ModeFromCallType(false) != media.ModeAudioVideo {
		t.Error("callType=false should map to audio+video")
	}
}
