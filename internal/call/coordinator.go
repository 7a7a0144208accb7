// Package call implements the call negotiation coordinator: the state
// machine that turns asynchronous signaling messages, engine completions
// and user intents into a correctly ordered peer session.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/peercall/peercall/internal/media"
	"github.com/peercall/peercall/internal/protocol"
	"github.com/peercall/peercall/internal/signaling"
	"github.com/peercall/peercall/internal/util"
)

var (
	// ErrBusy is returned when a command would create a second session
	// while one is active. The existing session is left untouched.
	ErrBusy = errors.New("a call is already active")

	// ErrNoRingingCall is returned by Accept/Reject without an incoming
	// ring.
	ErrNoRingingCall = errors.New("no incoming call")

	// ErrNoActiveCall is returned by media toggles outside a call.
	ErrNoActiveCall = errors.New("no active call")

	// ErrClosed is returned by commands after the coordinator stopped.
	ErrClosed = errors.New("coordinator stopped")
)

// Config wires a coordinator to its collaborators.
type Config struct {
	// Identity is the local peer name registered with the relay.
	Identity string

	// Channel is the signaling transport. The coordinator consumes its
	// event stream for the whole run.
	Channel signaling.Channel

	// NewEngine creates a media engine for one session. A fresh engine is
	// made per call and released on terminal transition.
	NewEngine func() (media.Engine, error)

	// Notifier receives UI notifications. Required.
	Notifier Notifier

	// RingTimeout bounds OUTGOING_RINGING and INCOMING_RINGING; when it
	// elapses the session is discarded and CallEnded(EndReasonRingTimeout)
	// fires. Zero disables the bound.
	RingTimeout time.Duration

	// SendEndCall enables the end_call protocol extension: hang-up sends
	// an explicit teardown envelope to the remote peer. Off by default to
	// match the observed protocol, where call end is implied by silence.
	SendEndCall bool
}

// Coordinator owns the call session and serializes every event - user
// intents, channel receipts and engine completions - onto one loop
// goroutine. Strict serialization is the concurrency control: there are no
// fine-grained locks because there is exactly one writer.
type Coordinator struct {
	cfg   Config
	inbox chan loopMsg
	done  chan struct{}

	state atomic.Value // State, readable from any goroutine

	// Loop-owned fields below; untouched outside the loop goroutine.
	sess      *session
	speakerOn bool
	ringTimer *time.Timer
	ringC     <-chan time.Time
}

// loopMsg is one unit of work for the loop: exactly one field group is set.
type loopMsg struct {
	cmd     *command
	channel *signaling.Event
	engine  *engineEvent
}

type cmdKind int

const (
	cmdPlaceCall cmdKind = iota + 1
	cmdAccept
	cmdReject
	cmdHangUp
	cmdToggleMic
	cmdToggleCamera
	cmdToggleSpeaker
)

type command struct {
	kind   cmdKind
	target string
	mode   media.Mode
	reply  chan cmdResult
}

type cmdResult struct {
	on  bool
	err error
}

// engineEvent tags an engine event with the session it belongs to, so the
// loop can discard completions for sessions the user already ended.
type engineEvent struct {
	sid uuid.UUID
	ev  media.Event
}

// New creates a coordinator. Call Run to start processing.
func New(cfg Config) *Coordinator {
	c := &Coordinator{
		cfg:   cfg,
		inbox: make(chan loopMsg, 64),
		done:  make(chan struct{}),
	}
	c.state.Store(StateIdle)
	return c
}

// State reports the current call state. Safe from any goroutine.
func (c *Coordinator) State() State {
	return c.state.Load().(State)
}

// Run processes events until ctx is cancelled. Commands may only be issued
// while Run is active.
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.done)

	go c.pumpChannel(ctx)

	for {
		select {
		case m := <-c.inbox:
			switch {
			case m.cmd != nil:
				c.handleCommand(m.cmd)
			case m.channel != nil:
				c.handleChannel(*m.channel)
			case m.engine != nil:
				c.handleEngine(*m.engine)
			}

		case <-c.ringC:
			c.onRingTimeout()

		case <-ctx.Done():
			c.teardown("", false)
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Commands (UI intents)
// ---------------------------------------------------------------------------

// PlaceCall rings target with the given media mode.
func (c *Coordinator) PlaceCall(target string, mode media.Mode) error {
	_, err := c.do(command{kind: cmdPlaceCall, target: target, mode: mode})
	return err
}

// Accept answers the currently ringing incoming call, honoring the mode the
// caller chose.
func (c *Coordinator) Accept() error {
	_, err := c.do(command{kind: cmdAccept})
	return err
}

// Reject discards the currently ringing incoming call. No signaling reply
// is sent; the caller's own timeout handling covers it.
func (c *Coordinator) Reject() error {
	_, err := c.do(command{kind: cmdReject})
	return err
}

// HangUp ends any active session. It is idempotent: hanging up with no
// session is a no-op.
func (c *Coordinator) HangUp() error {
	_, err := c.do(command{kind: cmdHangUp})
	return err
}

// ToggleMic flips the microphone mute and reports the new muted state.
func (c *Coordinator) ToggleMic() (muted bool, err error) {
	return c.do(command{kind: cmdToggleMic})
}

// ToggleCamera flips the camera pause and reports the new paused state.
func (c *Coordinator) ToggleCamera() (paused bool, err error) {
	return c.do(command{kind: cmdToggleCamera})
}

// ToggleSpeaker flips the speakerphone preference and reports the new
// value. Output routing itself is the UI consumer's concern.
func (c *Coordinator) ToggleSpeaker() (on bool, err error) {
	return c.do(command{kind: cmdToggleSpeaker})
}

func (c *Coordinator) do(m command) (bool, error) {
	m.reply = make(chan cmdResult, 1)
	select {
	case c.inbox <- loopMsg{cmd: &m}:
	case <-c.done:
		return false, ErrClosed
	}
	select {
	case r := <-m.reply:
		return r.on, r.err
	case <-c.done:
		return false, ErrClosed
	}
}

func (c *Coordinator) handleCommand(m *command) {
	switch m.kind {
	case cmdPlaceCall:
		m.reply <- cmdResult{err: c.placeCall(m.target, m.mode)}
	case cmdAccept:
		m.reply <- cmdResult{err: c.accept()}
	case cmdReject:
		m.reply <- cmdResult{err: c.reject()}
	case cmdHangUp:
		m.reply <- cmdResult{err: c.hangUp()}
	case cmdToggleMic:
		m.reply <- c.toggleMic()
	case cmdToggleCamera:
		m.reply <- c.toggleCamera()
	case cmdToggleSpeaker:
		c.speakerOn = !c.speakerOn
		m.reply <- cmdResult{on: c.speakerOn}
	}
}

func (c *Coordinator) placeCall(target string, mode media.Mode) error {
	if c.sess != nil {
		return ErrBusy
	}

	env := protocol.StartCall(c.cfg.Identity, target, mode.AudioOnly())
	if err := c.cfg.Channel.Send(env); err != nil {
		return fmt.Errorf("failed to ring %s: %w", target, err)
	}

	s := newSession(DirectionOutgoing, c.cfg.Identity, target, mode)
	s.state = StateOutgoingRinging
	c.sess = s
	c.setState(StateOutgoingRinging)
	c.armRingTimer()
	return nil
}

func (c *Coordinator) accept() error {
	s := c.sess
	if s == nil || s.state != StateIncomingRinging {
		return ErrNoRingingCall
	}

	c.stopRingTimer()
	if err := c.attachEngine(s); err != nil {
		return err
	}

	// The received offer becomes the remote description; the answer is
	// created once its application completes.
	s.engine.SetRemoteDescription(s.remoteOffer)
	s.state = StateNegotiating
	c.setState(StateNegotiating)
	return nil
}

func (c *Coordinator) reject() error {
	s := c.sess
	if s == nil || s.state != StateIncomingRinging {
		return ErrNoRingingCall
	}
	c.teardown("", false)
	return nil
}

func (c *Coordinator) hangUp() error {
	if c.sess == nil {
		return nil
	}
	if c.cfg.SendEndCall {
		if err := c.cfg.Channel.Send(protocol.EndCall(c.cfg.Identity, c.sess.remote)); err != nil {
			util.LogWarning("failed to send end_call: %v", err)
		}
	}
	c.teardown(EndReasonLocalHangUp, true)
	return nil
}

func (c *Coordinator) toggleMic() cmdResult {
	s := c.sess
	if s == nil || s.engine == nil {
		return cmdResult{err: ErrNoActiveCall}
	}
	s.micMuted = !s.micMuted
	if err := s.engine.SetAudioEnabled(!s.micMuted); err != nil {
		s.micMuted = !s.micMuted
		return cmdResult{on: s.micMuted, err: err}
	}
	return cmdResult{on: s.micMuted}
}

func (c *Coordinator) toggleCamera() cmdResult {
	s := c.sess
	if s == nil || s.engine == nil {
		return cmdResult{err: ErrNoActiveCall}
	}
	if s.mode != media.ModeAudioVideo {
		return cmdResult{err: fmt.Errorf("no video in an audio-only call")}
	}
	s.cameraOff = !s.cameraOff
	if err := s.engine.SetVideoEnabled(!s.cameraOff); err != nil {
		s.cameraOff = !s.cameraOff
		return cmdResult{on: s.cameraOff, err: err}
	}
	return cmdResult{on: s.cameraOff}
}

// ---------------------------------------------------------------------------
// Channel receipts
// ---------------------------------------------------------------------------

func (c *Coordinator) pumpChannel(ctx context.Context) {
	for {
		select {
		case ev, ok := <-c.cfg.Channel.Events():
			if !ok {
				return
			}
			select {
			case c.inbox <- loopMsg{channel: &ev}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Coordinator) handleChannel(ev signaling.Event) {
	if ev.Err != nil {
		util.LogWarning("signaling channel fault: %v", ev.Err)
		c.teardown(EndReasonChannelFault, true)
		return
	}

	env := ev.Envelope
	switch env.Type {
	case protocol.TypeCallResponse:
		c.onCallResponse(env)
	case protocol.TypeOfferReceived:
		c.onOffer(env)
	case protocol.TypeAnswerReceived:
		c.onAnswer(env)
	case protocol.TypeCandidate:
		c.onCandidate(env)
	case protocol.TypeEndCall:
		c.onEndCall(env)
	default:
		util.LogDebug("ignoring envelope type %q", env.Type)
	}
}

func (c *Coordinator) onCallResponse(env protocol.Envelope) {
	s := c.sess
	if s == nil || s.state != StateOutgoingRinging {
		util.LogDebug("ignoring call_response outside outgoing ring")
		return
	}

	if env.Rejected() {
		c.cfg.Notifier.PeerUnreachable(s.remote)
		c.teardown("", false)
		return
	}

	c.stopRingTimer()
	if err := c.attachEngine(s); err != nil {
		return
	}
	s.engine.CreateOffer(s.mode)
	s.state = StateNegotiating
	c.setState(StateNegotiating)
}

func (c *Coordinator) onOffer(env protocol.Envelope) {
	if c.sess != nil {
		// Glare or call-waiting: a second session is never created.
		util.LogWarning("rejecting offer from %s: call already active", env.Name)
		return
	}

	desc, err := env.Description()
	if err != nil {
		util.LogWarning("dropping offer: %v", err)
		return
	}

	// The caller's chosen mode travels on the envelope and is
	// authoritative; the callee does not guess.
	mode := media.ModeFromCallType(env.CallType)

	s := newSession(DirectionIncoming, c.cfg.Identity, env.Name, mode)
	s.state = StateIncomingRinging
	s.remoteOffer = media.Description{Kind: "offer", SDP: desc.SDP}
	c.sess = s
	c.setState(StateIncomingRinging)
	c.armRingTimer()

	c.cfg.Notifier.IncomingCall(env.Name, mode)
}

func (c *Coordinator) onAnswer(env protocol.Envelope) {
	s := c.sess
	if s == nil || s.direction != DirectionOutgoing || s.state != StateNegotiating {
		util.LogDebug("ignoring answer for no active negotiation")
		return
	}

	desc, err := env.Description()
	if err != nil {
		util.LogWarning("dropping answer: %v", err)
		return
	}
	s.engine.SetRemoteDescription(media.Description{Kind: "answer", SDP: desc.SDP})
}

func (c *Coordinator) onCandidate(env protocol.Envelope) {
	s := c.sess
	if s == nil {
		util.LogDebug("dropping candidate with no session")
		return
	}

	payload, err := env.Candidate()
	if err != nil {
		util.LogWarning("dropping candidate: %v", err)
		return
	}
	cand := media.Candidate{
		Mid:       payload.SdpMid,
		LineIndex: payload.SdpMLineIndex,
		Text:      payload.SdpCandidate,
	}

	// Candidates and description application are independent events; the
	// engine rejects candidates before a remote description exists, so
	// early arrivals are buffered in receipt order.
	if !s.remoteApplied {
		s.pending = append(s.pending, cand)
		return
	}
	if err := s.engine.AddRemoteCandidate(cand); err != nil {
		util.LogWarning("failed to add remote candidate: %v", err)
	}
}

func (c *Coordinator) onEndCall(env protocol.Envelope) {
	s := c.sess
	if s == nil || env.Name != s.remote {
		return
	}
	c.teardown(EndReasonRemoteHangUp, true)
}

// ---------------------------------------------------------------------------
// Engine completions
// ---------------------------------------------------------------------------

func (c *Coordinator) handleEngine(m engineEvent) {
	s := c.sess
	if s == nil || s.id != m.sid {
		// Completion for a session the user already ended.
		util.LogDebug("ignoring stale engine event")
		return
	}

	ev := m.ev
	switch ev.Kind {
	case media.EventFailed:
		c.cfg.Notifier.NegotiationFailed(ev.Stage, ev.Err)
		c.teardown("", false)

	case media.EventOfferCreated, media.EventAnswerCreated:
		if s.state != StateNegotiating {
			util.LogDebug("ignoring %s outside negotiation", ev.Description.Kind)
			return
		}
		s.engine.SetLocalDescription(ev.Description)

	case media.EventLocalApplied:
		c.onLocalApplied(s, ev.Description)

	case media.EventRemoteApplied:
		c.onRemoteApplied(s, ev.Description)

	case media.EventLocalCandidate:
		env := protocol.NewCandidate(s.local, s.remote, protocol.Candidate{
			SdpMid:        ev.Candidate.Mid,
			SdpMLineIndex: ev.Candidate.LineIndex,
			SdpCandidate:  ev.Candidate.Text,
		}, s.mode.AudioOnly())
		if err := c.cfg.Channel.Send(env); err != nil {
			util.LogWarning("failed to send candidate: %v", err)
		}

	case media.EventRemoteMedia:
		if !s.mediaNotified {
			s.mediaNotified = true
			c.cfg.Notifier.RemoteMediaAvailable(ev.Mode)
		}
	}
}

// onLocalApplied sends the freshly applied local description to the remote
// peer. On the incoming side the answer completes negotiation.
func (c *Coordinator) onLocalApplied(s *session, d media.Description) {
	wire := protocol.Description{SDP: d.SDP, Type: d.Kind}

	switch {
	case s.direction == DirectionOutgoing && d.Kind == "offer":
		env := protocol.Offer(s.local, s.remote, wire, s.mode.AudioOnly())
		if err := c.cfg.Channel.Send(env); err != nil {
			util.LogError("failed to send offer: %v", err)
			c.teardown(EndReasonChannelFault, true)
		}

	case s.direction == DirectionIncoming && d.Kind == "answer":
		env := protocol.Answer(s.local, s.remote, wire, s.mode.AudioOnly())
		if err := c.cfg.Channel.Send(env); err != nil {
			util.LogError("failed to send answer: %v", err)
			c.teardown(EndReasonChannelFault, true)
			return
		}
		s.state = StateConnected
		c.setState(StateConnected)
		c.cfg.Notifier.CallConnected(s.remote)

	default:
		util.LogDebug("unexpected local %s application for %s session", d.Kind, s.direction)
	}
}

// onRemoteApplied flushes buffered candidates and advances the side-specific
// negotiation step.
func (c *Coordinator) onRemoteApplied(s *session, d media.Description) {
	s.remoteApplied = true
	c.flushPending(s)

	switch {
	case s.direction == DirectionIncoming && d.Kind == "offer":
		s.engine.CreateAnswer(s.mode)

	case s.direction == DirectionOutgoing && d.Kind == "answer":
		s.state = StateConnected
		c.setState(StateConnected)
		c.cfg.Notifier.CallConnected(s.remote)
	}
}

// flushPending hands buffered candidates to the engine in receipt order,
// exactly once per session.
func (c *Coordinator) flushPending(s *session) {
	if s.flushed {
		return
	}
	s.flushed = true
	for _, cand := range s.pending {
		if err := s.engine.AddRemoteCandidate(cand); err != nil {
			util.LogWarning("failed to apply buffered candidate: %v", err)
		}
	}
	s.pending = nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// attachEngine builds the per-session engine, starts local capture and the
// event pump. On failure the session is discarded and NegotiationFailed
// fires.
func (c *Coordinator) attachEngine(s *session) error {
	eng, err := c.cfg.NewEngine()
	if err != nil {
		err = fmt.Errorf("failed to create media engine: %w", err)
		c.cfg.Notifier.NegotiationFailed(media.StageSetup, err)
		c.teardown("", false)
		return err
	}
	s.engine = eng

	go c.pumpEngine(s.id, eng.Events())

	if err := eng.StartCapture(s.mode); err != nil {
		err = fmt.Errorf("failed to start capture: %w", err)
		c.cfg.Notifier.NegotiationFailed(media.StageCapture, err)
		c.teardown("", false)
		return err
	}
	return nil
}

func (c *Coordinator) pumpEngine(sid uuid.UUID, events <-chan media.Event) {
	for ev := range events {
		select {
		case c.inbox <- loopMsg{engine: &engineEvent{sid: sid, ev: ev}}:
		case <-c.done:
			return
		}
	}
}

// teardown releases the engine, discards the session and returns to idle.
// Safe to call with no session.
func (c *Coordinator) teardown(reason EndReason, notify bool) {
	c.stopRingTimer()

	s := c.sess
	if s == nil {
		return
	}
	c.sess = nil
	c.setState(StateIdle)

	if s.engine != nil {
		s.engine.StopAndRelease()
	}
	if notify {
		c.cfg.Notifier.CallEnded(reason)
	}
}

func (c *Coordinator) setState(st State) {
	c.state.Store(st)
}

func (c *Coordinator) armRingTimer() {
	if c.cfg.RingTimeout <= 0 {
		return
	}
	c.ringTimer = time.NewTimer(c.cfg.RingTimeout)
	c.ringC = c.ringTimer.C
}

func (c *Coordinator) stopRingTimer() {
	if c.ringTimer != nil {
		c.ringTimer.Stop()
		c.ringTimer = nil
		c.ringC = nil
	}
}

func (c *Coordinator) onRingTimeout() {
	c.ringTimer = nil
	c.ringC = nil

	s := c.sess
	if s == nil || (s.state != StateOutgoingRinging && s.state != StateIncomingRinging) {
		return
	}
	util.LogInfo("call to/from %s timed out while ringing", s.remote)
	c.teardown(EndReasonRingTimeout, true)
}
