package callctl

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// PeerSession is the pion-backed MediaSession.
type PeerSession struct {
	pc *webrtc.PeerConnection

	onICE     func(webrtc.ICECandidateInit)
	onFailure func()

	mu     sync.Mutex
	closed bool
}

func DefaultRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

func NewPeerSession(cfg webrtc.Configuration) (*PeerSession, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	// Audio by default; the offer needs at least one media section.
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio); err != nil {
		_ = pc.Close()
		return nil, err
	}

	s := &PeerSession{pc: pc}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && s.onICE != nil {
			s.onICE(cand.ToJSON())
		}
	})

	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		log.Info().Str("module", "callctl.media").Str("peer_connection_state", st.String()).Msg("peer state")
		if st == webrtc.PeerConnectionStateFailed ||
			st == webrtc.PeerConnectionStateDisconnected ||
			st == webrtc.PeerConnectionStateClosed {
			if s.onFailure != nil {
				s.onFailure()
			}
		}
	})

	return s, nil
}

func (s *PeerSession) OnLocalCandidate(fn func(webrtc.ICECandidateInit)) { s.onICE = fn }

func (s *PeerSession) OnFailure(fn func()) { s.onFailure = fn }

// CreateOffer produces a local offer with ICE gathering complete, so the
// SDP alone is enough to ring the far side.
func (s *PeerSession) CreateOffer() (string, error) {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	gatherComplete := webrtc.GatheringCompletePromise(s.pc)
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	<-gatherComplete
	return s.pc.LocalDescription().SDP, nil
}

// AcceptOffer applies the remote offer and returns a fully gathered
// answer.
func (s *PeerSession) AcceptOffer(sdp string) (string, error) {
	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := s.pc.SetRemoteDescription(remote); err != nil {
		return "", err
	}
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	gatherComplete := webrtc.GatheringCompletePromise(s.pc)
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	<-gatherComplete
	return s.pc.LocalDescription().SDP, nil
}

func (s *PeerSession) AcceptAnswer(sdp string) error {
	return s.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
}

func (s *PeerSession) AddRemoteCandidate(ci webrtc.ICECandidateInit) error {
	return s.pc.AddICECandidate(ci)
}

func (s *PeerSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "callctl.media").Msg("close error")
	}
}
