package media

import (
	"fmt"
	"sync"
)

// FakeEngine is an in-memory Engine for tests and offline use. Operations
// complete immediately by pushing the corresponding event; a single stage
// can be scripted to fail instead. Every call is journaled so tests can
// assert on exactly what the coordinator asked for, and in what order.
type FakeEngine struct {
	mu        sync.Mutex
	events    chan Event
	closed    bool
	failStage Stage
	calls     []string
	remote    []Candidate
}

// NewFakeEngine creates a fake engine with canned descriptions.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{events: make(chan Event, eventBufferSize)}
}

// FailAt scripts the given stage to fail. The zero value never fails.
func (f *FakeEngine) FailAt(stage Stage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failStage = stage
}

// Calls returns the journal of operations in invocation order.
func (f *FakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// RemoteCandidates returns every candidate injected so far, in order.
func (f *FakeEngine) RemoteCandidates() []Candidate {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Candidate, len(f.remote))
	copy(out, f.remote)
	return out
}

// Released reports whether StopAndRelease was called.
func (f *FakeEngine) Released() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// EmitLocalCandidate injects a locally discovered candidate, as the real
// engine would during gathering.
func (f *FakeEngine) EmitLocalCandidate(c Candidate) {
	f.emit(Event{Kind: EventLocalCandidate, Candidate: c})
}

// EmitRemoteMedia injects a remote-media-available notification.
func (f *FakeEngine) EmitRemoteMedia(mode Mode) {
	f.emit(Event{Kind: EventRemoteMedia, Mode: mode})
}

func (f *FakeEngine) Events() <-chan Event { return f.events }

func (f *FakeEngine) CreateOffer(mode Mode) {
	f.record(fmt.Sprintf("create-offer:%s", mode))
	if f.shouldFail(StageCreateOffer) {
		f.emit(Event{Kind: EventFailed, Stage: StageCreateOffer, Err: fmt.Errorf("scripted create-offer failure")})
		return
	}
	f.emit(Event{Kind: EventOfferCreated, Description: Description{Kind: "offer", SDP: "v=0 fake-offer"}})
}

func (f *FakeEngine) CreateAnswer(mode Mode) {
	f.record(fmt.Sprintf("create-answer:%s", mode))
	if f.shouldFail(StageCreateAnswer) {
		f.emit(Event{Kind: EventFailed, Stage: StageCreateAnswer, Err: fmt.Errorf("scripted create-answer failure")})
		return
	}
	f.emit(Event{Kind: EventAnswerCreated, Description: Description{Kind: "answer", SDP: "v=0 fake-answer"}})
}

func (f *FakeEngine) SetLocalDescription(d Description) {
	f.record("set-local:" + d.Kind)
	if f.shouldFail(StageSetLocal) {
		f.emit(Event{Kind: EventFailed, Stage: StageSetLocal, Err: fmt.Errorf("scripted set-local failure")})
		return
	}
	f.emit(Event{Kind: EventLocalApplied, Description: d})
}

func (f *FakeEngine) SetRemoteDescription(d Description) {
	f.record("set-remote:" + d.Kind)
	if f.shouldFail(StageSetRemote) {
		f.emit(Event{Kind: EventFailed, Stage: StageSetRemote, Err: fmt.Errorf("scripted set-remote failure")})
		return
	}
	f.emit(Event{Kind: EventRemoteApplied, Description: d})
}

func (f *FakeEngine) AddRemoteCandidate(c Candidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "add-candidate:"+c.Text)
	f.remote = append(f.remote, c)
	return nil
}

func (f *FakeEngine) StartCapture(mode Mode) error {
	f.record(fmt.Sprintf("start-capture:%s", mode))
	return nil
}

func (f *FakeEngine) SetAudioEnabled(on bool) error {
	f.record(fmt.Sprintf("audio-enabled:%t", on))
	return nil
}

func (f *FakeEngine) SetVideoEnabled(on bool) error {
	f.record(fmt.Sprintf("video-enabled:%t", on))
	return nil
}

func (f *FakeEngine) StopAndRelease() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.calls = append(f.calls, "stop-and-release")
	f.mu.Unlock()
	close(f.events)
}

func (f *FakeEngine) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *FakeEngine) shouldFail(stage Stage) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failStage == stage
}

func (f *FakeEngine) emit(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.events <- ev:
	default:
	}
}
