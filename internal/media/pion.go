package media

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/peercall/peercall/internal/util"
)

// eventBufferSize bounds the engine event stream. The coordinator drains it
// continuously; overflow indicates a stalled consumer and the event is
// dropped with a warning.
const eventBufferSize = 32

// PionEngine implements Engine on top of a pion PeerConnection. Local media
// is represented by sample tracks; the embedding application feeds captured
// frames into them via AudioTrack / VideoTrack.
type PionEngine struct {
	pc     *webrtc.PeerConnection
	events chan Event

	mu         sync.Mutex
	closed     bool
	audioTrack *webrtc.TrackLocalStaticSample
	videoTrack *webrtc.TrackLocalStaticSample
	audioSend  *webrtc.RTPSender
	videoSend  *webrtc.RTPSender
	remoteSeen bool
}

// NewPionEngine creates an engine backed by a fresh PeerConnection
// configured with the given STUN servers.
func NewPionEngine(stunServers []string) (*PionEngine, error) {
	var cfg webrtc.Configuration
	if len(stunServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: stunServers}}
	}
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create PeerConnection: %w", err)
	}

	e := &PionEngine{
		pc:     pc,
		events: make(chan Event, eventBufferSize),
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			// End of gathering.
			return
		}
		init := c.ToJSON()
		cand := Candidate{Text: init.Candidate}
		if init.SDPMid != nil {
			cand.Mid = *init.SDPMid
		}
		if init.SDPMLineIndex != nil {
			cand.LineIndex = int(*init.SDPMLineIndex)
		}
		e.emit(Event{Kind: EventLocalCandidate, Candidate: cand})
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		mode := ModeAudioOnly
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			mode = ModeAudioVideo
		}
		e.emit(Event{Kind: EventRemoteMedia, Mode: mode})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
	})

	return e, nil
}

// Events returns the engine event stream.
func (e *PionEngine) Events() <-chan Event { return e.events }

// AudioTrack returns the local audio capture hook, nil before StartCapture.
func (e *PionEngine) AudioTrack() *webrtc.TrackLocalStaticSample {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.audioTrack
}

// VideoTrack returns the local video capture hook, nil unless a video
// capture was started.
func (e *PionEngine) VideoTrack() *webrtc.TrackLocalStaticSample {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.videoTrack
}

// StartCapture creates the local sample tracks and attaches them to the
// PeerConnection. Audio is always captured; video only for ModeAudioVideo.
func (e *PionEngine) StartCapture(mode Mode) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.audioTrack == nil {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "peercall")
		if err != nil {
			return fmt.Errorf("failed to create audio track: %w", err)
		}
		sender, err := e.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("failed to add audio track: %w", err)
		}
		e.audioTrack, e.audioSend = track, sender
	}

	if mode == ModeAudioVideo && e.videoTrack == nil {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "peercall")
		if err != nil {
			return fmt.Errorf("failed to create video track: %w", err)
		}
		sender, err := e.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("failed to add video track: %w", err)
		}
		e.videoTrack, e.videoSend = track, sender
	}

	return nil
}

// CreateOffer generates an SDP offer in the background and reports the
// result on the event stream.
func (e *PionEngine) CreateOffer(mode Mode) {
	go func() {
		if err := e.ensureReceive(mode); err != nil {
			e.emit(Event{Kind: EventFailed, Stage: StageCreateOffer, Err: err})
			return
		}
		offer, err := e.pc.CreateOffer(nil)
		if err != nil {
			e.emit(Event{Kind: EventFailed, Stage: StageCreateOffer, Err: err})
			return
		}
		e.emit(Event{Kind: EventOfferCreated, Description: fromSessionDescription(offer)})
	}()
}

// CreateAnswer generates an SDP answer in the background and reports the
// result on the event stream.
func (e *PionEngine) CreateAnswer(mode Mode) {
	go func() {
		if err := e.ensureReceive(mode); err != nil {
			e.emit(Event{Kind: EventFailed, Stage: StageCreateAnswer, Err: err})
			return
		}
		answer, err := e.pc.CreateAnswer(nil)
		if err != nil {
			e.emit(Event{Kind: EventFailed, Stage: StageCreateAnswer, Err: err})
			return
		}
		e.emit(Event{Kind: EventAnswerCreated, Description: fromSessionDescription(answer)})
	}()
}

// SetLocalDescription applies the local SDP in the background.
func (e *PionEngine) SetLocalDescription(d Description) {
	go func() {
		sd, err := toSessionDescription(d)
		if err == nil {
			err = e.pc.SetLocalDescription(sd)
		}
		if err != nil {
			e.emit(Event{Kind: EventFailed, Stage: StageSetLocal, Err: err})
			return
		}
		e.emit(Event{Kind: EventLocalApplied, Description: d})
	}()
}

// SetRemoteDescription applies the remote SDP in the background.
func (e *PionEngine) SetRemoteDescription(d Description) {
	go func() {
		sd, err := toSessionDescription(d)
		if err == nil {
			err = e.pc.SetRemoteDescription(sd)
		}
		if err != nil {
			e.emit(Event{Kind: EventFailed, Stage: StageSetRemote, Err: err})
			return
		}
		e.emit(Event{Kind: EventRemoteApplied, Description: d})
	}()
}

// AddRemoteCandidate injects a remote candidate. The PeerConnection rejects
// candidates that arrive before a remote description is set, which is why
// the coordinator buffers them.
func (e *PionEngine) AddRemoteCandidate(c Candidate) error {
	mid := c.Mid
	index := uint16(c.LineIndex)
	return e.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     c.Text,
		SDPMid:        &mid,
		SDPMLineIndex: &index,
	})
}

// SetAudioEnabled pauses or resumes the outgoing audio track.
func (e *PionEngine) SetAudioEnabled(on bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return setTrackEnabled(e.audioSend, e.audioTrack, on)
}

// SetVideoEnabled pauses or resumes the outgoing video track.
func (e *PionEngine) SetVideoEnabled(on bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return setTrackEnabled(e.videoSend, e.videoTrack, on)
}

// StopAndRelease closes the PeerConnection and the event stream.
func (e *PionEngine) StopAndRelease() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	if err := e.pc.Close(); err != nil {
		util.LogDebug("PeerConnection close: %v", err)
	}
	close(e.events)
}

// ensureReceive adds receive-only transceivers for media the local side
// does not capture, so the generated SDP still requests them.
func (e *PionEngine) ensureReceive(mode Mode) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	recvOnly := webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}
	if e.audioTrack == nil {
		if _, err := e.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, recvOnly); err != nil {
			return fmt.Errorf("failed to add audio transceiver: %w", err)
		}
	}
	if mode == ModeAudioVideo && e.videoTrack == nil {
		if _, err := e.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, recvOnly); err != nil {
			return fmt.Errorf("failed to add video transceiver: %w", err)
		}
	}
	return nil
}

// emit delivers an event unless the engine is released. Delivery is
// non-blocking: the stream is buffered and the consumer is expected to
// keep draining it.
func (e *PionEngine) emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	select {
	case e.events <- ev:
	default:
		util.LogWarning("engine event stream full, dropping event kind=%d", ev.Kind)
	}
}

func setTrackEnabled(sender *webrtc.RTPSender, track *webrtc.TrackLocalStaticSample, on bool) error {
	if sender == nil || track == nil {
		return fmt.Errorf("no local track to toggle")
	}
	if on {
		return sender.ReplaceTrack(track)
	}
	return sender.ReplaceTrack(nil)
}

func toSessionDescription(d Description) (webrtc.SessionDescription, error) {
	switch d.Kind {
	case "offer":
		return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: d.SDP}, nil
	case "answer":
		return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: d.SDP}, nil
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("unknown description kind %q", d.Kind)
	}
}

func fromSessionDescription(sd webrtc.SessionDescription) Description {
	return Description{Kind: sd.Type.String(), SDP: sd.SDP}
}
