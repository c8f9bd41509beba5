// Package callctl is the client-side call controller. It drives the
// local peer connection and exchanges signaling frames with a call relay,
// mirroring the relay's protocol: call-start/incoming-call,
// call-answer/call-answered, ice-candidate, call-reject/call-end.
package callctl

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/parleychat/parley/internal/domain"
)

type State int

const (
	StateIdle State = iota
	StateCalling
	StateRinging
	StateConnected
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCalling:
		return "calling"
	case StateRinging:
		return "ringing"
	case StateConnected:
		return "connected"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

var (
	ErrBusy       = errors.New("call already in progress")
	ErrNotRinging = errors.New("no incoming call to answer")
)

// MediaSession is the local media/transport pipeline behind the
// controller. The pion-backed implementation lives in this package;
// tests substitute fakes.
type MediaSession interface {
	CreateOffer() (string, error)
	AcceptOffer(sdp string) (answer string, err error)
	AcceptAnswer(sdp string) error
	AddRemoteCandidate(webrtc.ICECandidateInit) error
	OnLocalCandidate(func(webrtc.ICECandidateInit))
	OnFailure(func())
	Close()
}

// Signaler sends frames to the call relay.
type Signaler interface {
	Send(v any) error
	Close()
}

// Controller is the per-call state machine:
// idle -> calling | ringing -> connected -> ended. Every terminal event
// (remote end or reject, local hangup, transport failure) releases the
// media session and the signaling connection exactly once.
type Controller struct {
	selfID domain.ParticipantID
	media  MediaSession
	signal Signaler

	mu           sync.Mutex
	state        State
	peerID       domain.ParticipantID
	pendingOffer string
	pendingLocal []webrtc.ICECandidateInit
	released     bool
	onEnded      func()
}

func New(selfID domain.ParticipantID, media MediaSession, signal Signaler, onEnded func()) *Controller {
	c := &Controller{
		selfID:  selfID,
		media:   media,
		signal:  signal,
		state:   StateIdle,
		onEnded: onEnded,
	}
	media.OnLocalCandidate(c.sendLocalCandidate)
	// A transport-layer failure is treated identically to a remote hangup.
	media.OnFailure(c.Teardown)
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StartCall creates a local offer and rings the other side of the call
// room with it.
func (c *Controller) StartCall(callType string) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = StateCalling
	c.mu.Unlock()

	offer, err := c.media.CreateOffer()
	if err != nil {
		c.Teardown()
		return err
	}
	return c.signal.Send(map[string]any{
		"type":     domain.TypeCallStart,
		"callType": callType,
		"signal":   offer,
	})
}

// Answer applies the pending remote offer and sends the answer back to
// the caller.
func (c *Controller) Answer() error {
	c.mu.Lock()
	if c.state != StateRinging {
		c.mu.Unlock()
		return ErrNotRinging
	}
	offer := c.pendingOffer
	peer := c.peerID
	c.mu.Unlock()

	answer, err := c.media.AcceptOffer(offer)
	if err != nil {
		c.Teardown()
		return err
	}
	if err := c.signal.Send(map[string]any{
		"type":     domain.TypeCallAnswer,
		"targetId": string(peer),
		"signal":   answer,
	}); err != nil {
		return err
	}
	c.mu.Lock()
	c.state = StateConnected
	queued := c.drainLocalLocked()
	c.mu.Unlock()
	c.sendCandidates(peer, queued)
	return nil
}

// Reject declines a ringing call and releases local resources.
func (c *Controller) Reject() error {
	err := c.signal.Send(map[string]any{"type": domain.TypeCallReject})
	c.Teardown()
	return err
}

// Hangup ends the call from this side.
func (c *Controller) Hangup() error {
	err := c.signal.Send(map[string]any{"type": domain.TypeCallEnd})
	c.Teardown()
	return err
}

type inboundFrame struct {
	Type          string  `json:"type"`
	CallerID      string  `json:"callerId"`
	AnswererID    string  `json:"answererId"`
	SenderID      string  `json:"senderId"`
	CallType      string  `json:"callType"`
	Signal        string  `json:"signal"`
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
}

// HandleFrame dispatches one frame received from the relay.
func (c *Controller) HandleFrame(raw []byte) {
	var f inboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		log.Warn().Err(err).Str("module", "callctl").Msg("malformed frame dropped")
		return
	}

	switch f.Type {
	case domain.TypeIncomingCall:
		c.mu.Lock()
		if c.state != StateIdle {
			c.mu.Unlock()
			return
		}
		c.state = StateRinging
		c.peerID = domain.ParticipantID(f.CallerID)
		c.pendingOffer = f.Signal
		c.mu.Unlock()
		log.Info().Str("module", "callctl").Str("caller", f.CallerID).Str("callType", f.CallType).Msg("incoming call")

	case domain.TypeCallAnswered:
		c.mu.Lock()
		if c.state != StateCalling {
			c.mu.Unlock()
			return
		}
		c.peerID = domain.ParticipantID(f.AnswererID)
		c.mu.Unlock()
		if err := c.media.AcceptAnswer(f.Signal); err != nil {
			log.Error().Err(err).Str("module", "callctl").Msg("apply answer")
			c.Teardown()
			return
		}
		c.mu.Lock()
		c.state = StateConnected
		peer := c.peerID
		queued := c.drainLocalLocked()
		c.mu.Unlock()
		c.sendCandidates(peer, queued)

	case domain.TypeICECandidate:
		ci := webrtc.ICECandidateInit{
			Candidate:     f.Candidate,
			SDPMid:        f.SDPMid,
			SDPMLineIndex: f.SDPMLineIndex,
		}
		if err := c.media.AddRemoteCandidate(ci); err != nil {
			log.Warn().Err(err).Str("module", "callctl").Msg("add remote candidate")
		}

	case domain.TypeCallRejected, domain.TypeCallEnded:
		c.Teardown()

	default:
		log.Debug().Str("module", "callctl").Str("type", f.Type).Msg("frame ignored")
	}
}

// Teardown releases media, signaling, and marks the call ended. Safe to
// call from any path, any number of times; only the first call acts.
func (c *Controller) Teardown() {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return
	}
	c.released = true
	c.state = StateEnded
	c.mu.Unlock()

	c.media.Close()
	c.signal.Close()
	if c.onEnded != nil {
		c.onEnded()
	}
}

// sendLocalCandidate forwards locally gathered candidates to the peer.
// Candidates gathered before the peer is known are queued and flushed
// once the call is answered.
func (c *Controller) sendLocalCandidate(ci webrtc.ICECandidateInit) {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return
	}
	if c.peerID == "" || c.state != StateConnected {
		c.pendingLocal = append(c.pendingLocal, ci)
		c.mu.Unlock()
		return
	}
	peer := c.peerID
	c.mu.Unlock()
	c.sendCandidates(peer, []webrtc.ICECandidateInit{ci})
}

func (c *Controller) drainLocalLocked() []webrtc.ICECandidateInit {
	queued := c.pendingLocal
	c.pendingLocal = nil
	return queued
}

func (c *Controller) sendCandidates(peer domain.ParticipantID, cands []webrtc.ICECandidateInit) {
	for _, ci := range cands {
		frame := map[string]any{
			"type":      domain.TypeICECandidate,
			"targetId":  string(peer),
			"candidate": ci.Candidate,
		}
		if ci.SDPMid != nil {
			frame["sdpMid"] = *ci.SDPMid
		}
		if ci.SDPMLineIndex != nil {
			frame["sdpMLineIndex"] = *ci.SDPMLineIndex
		}
		if err := c.signal.Send(frame); err != nil {
			log.Warn().Err(err).Str("module", "callctl").Msg("send candidate")
		}
	}
}
