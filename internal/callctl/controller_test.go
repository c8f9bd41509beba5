package callctl

import (
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"
)

type fakeMedia struct {
	mu        sync.Mutex
	onICE     func(webrtc.ICECandidateInit)
	onFailure func()

	acceptedOffer  string
	acceptedAnswer string
	remoteCands    []webrtc.ICECandidateInit
	closes         int
}

func (m *fakeMedia) CreateOffer() (string, error) { return "offer-sdp", nil }

func (m *fakeMedia) AcceptOffer(sdp string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acceptedOffer = sdp
	return "answer-sdp", nil
}

func (m *fakeMedia) AcceptAnswer(sdp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acceptedAnswer = sdp
	return nil
}

func (m *fakeMedia) AddRemoteCandidate(ci webrtc.ICECandidateInit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remoteCands = append(m.remoteCands, ci)
	return nil
}

func (m *fakeMedia) OnLocalCandidate(fn func(webrtc.ICECandidateInit)) { m.onICE = fn }
func (m *fakeMedia) OnFailure(fn func())                               { m.onFailure = fn }

func (m *fakeMedia) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
}

type fakeSignal struct {
	mu     sync.Mutex
	sent   []map[string]any
	closes int
}

func (s *fakeSignal) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, v.(map[string]any))
	return nil
}

func (s *fakeSignal) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
}

func (s *fakeSignal) frame(t *testing.T, i int) map[string]any {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.sent) {
		t.Fatalf("expected at least %d frames, got %d", i+1, len(s.sent))
	}
	return s.sent[i]
}

func TestCallerFlow(t *testing.T) {
	media, sig := &fakeMedia{}, &fakeSignal{}
	ctl := New("A", media, sig, nil)

	if err := ctl.StartCall("voice"); err != nil {
		t.Fatalf("start call: %v", err)
	}
	if ctl.State() != StateCalling {
		t.Fatalf("expected calling, got %s", ctl.State())
	}
	start := sig.frame(t, 0)
	if start["type"] != "call-start" || start["callType"] != "voice" || start["signal"] != "offer-sdp" {
		t.Fatalf("unexpected call-start frame: %v", start)
	}

	ctl.HandleFrame([]byte(`{"type":"call-answered","answererId":"B","signal":"remote-answer"}`))
	if ctl.State() != StateConnected {
		t.Fatalf("expected connected, got %s", ctl.State())
	}
	if media.acceptedAnswer != "remote-answer" {
		t.Fatalf("answer not applied, got %q", media.acceptedAnswer)
	}
}

func TestCalleeFlow(t *testing.T) {
	media, sig := &fakeMedia{}, &fakeSignal{}
	ctl := New("B", media, sig, nil)

	ctl.HandleFrame([]byte(`{"type":"incoming-call","callerId":"A","callType":"voice","signal":"remote-offer"}`))
	if ctl.State() != StateRinging {
		t.Fatalf("expected ringing, got %s", ctl.State())
	}

	if err := ctl.Answer(); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if ctl.State() != StateConnected {
		t.Fatalf("expected connected, got %s", ctl.State())
	}
	if media.acceptedOffer != "remote-offer" {
		t.Fatalf("offer not applied, got %q", media.acceptedOffer)
	}
	answer := sig.frame(t, 0)
	if answer["type"] != "call-answer" || answer["targetId"] != "A" || answer["signal"] != "answer-sdp" {
		t.Fatalf("unexpected call-answer frame: %v", answer)
	}
}

func TestStartCallWhileBusy(t *testing.T) {
	ctl := New("A", &fakeMedia{}, &fakeSignal{}, nil)
	if err := ctl.StartCall("voice"); err != nil {
		t.Fatalf("start call: %v", err)
	}
	if err := ctl.StartCall("voice"); err != ErrBusy {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestAnswerWithoutIncomingCall(t *testing.T) {
	ctl := New("B", &fakeMedia{}, &fakeSignal{}, nil)
	if err := ctl.Answer(); err != ErrNotRinging {
		t.Fatalf("expected ErrNotRinging, got %v", err)
	}
}

func TestRemoteEndReleasesOnce(t *testing.T) {
	media, sig := &fakeMedia{}, &fakeSignal{}
	ended := 0
	ctl := New("A", media, sig, func() { ended++ })

	ctl.HandleFrame([]byte(`{"type":"call-ended","senderId":"B"}`))
	ctl.HandleFrame([]byte(`{"type":"call-ended","senderId":"B"}`))
	ctl.Teardown()

	if ctl.State() != StateEnded {
		t.Fatalf("expected ended, got %s", ctl.State())
	}
	if media.closes != 1 || sig.closes != 1 || ended != 1 {
		t.Fatalf("release must happen exactly once: media=%d signal=%d ended=%d", media.closes, sig.closes, ended)
	}
}

func TestTransportFailureIsHangup(t *testing.T) {
	media, sig := &fakeMedia{}, &fakeSignal{}
	ctl := New("A", media, sig, nil)
	if err := ctl.StartCall("voice"); err != nil {
		t.Fatalf("start call: %v", err)
	}

	media.onFailure()

	if ctl.State() != StateEnded {
		t.Fatalf("expected ended, got %s", ctl.State())
	}
	if media.closes != 1 || sig.closes != 1 {
		t.Fatalf("failure must release resources: media=%d signal=%d", media.closes, sig.closes)
	}
}

func TestLocalCandidatesQueuedUntilConnected(t *testing.T) {
	media, sig := &fakeMedia{}, &fakeSignal{}
	ctl := New("A", media, sig, nil)
	if err := ctl.StartCall("voice"); err != nil {
		t.Fatalf("start call: %v", err)
	}

	// Gathered before the answer names a peer: must not go out yet.
	media.onICE(webrtc.ICECandidateInit{Candidate: "cand-1"})
	for _, f := range sig.sent {
		if f["type"] == "ice-candidate" {
			t.Fatal("candidate sent before the peer was known")
		}
	}

	ctl.HandleFrame([]byte(`{"type":"call-answered","answererId":"B","signal":"remote-answer"}`))

	found := false
	for _, f := range sig.sent {
		if f["type"] == "ice-candidate" && f["targetId"] == "B" && f["candidate"] == "cand-1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("queued candidate not flushed, frames: %v", sig.sent)
	}

	// Once connected, candidates go straight out.
	media.onICE(webrtc.ICECandidateInit{Candidate: "cand-2"})
	last := sig.frame(t, len(sig.sent)-1)
	if last["candidate"] != "cand-2" || last["targetId"] != "B" {
		t.Fatalf("unexpected candidate frame: %v", last)
	}
}

func TestRemoteCandidateApplied(t *testing.T) {
	media := &fakeMedia{}
	ctl := New("B", media, &fakeSignal{}, nil)
	ctl.HandleFrame([]byte(`{"type":"ice-candidate","senderId":"A","candidate":"ice1"}`))
	if len(media.remoteCands) != 1 || media.remoteCands[0].Candidate != "ice1" {
		t.Fatalf("remote candidate not applied: %v", media.remoteCands)
	}
}

func TestRejectReleases(t *testing.T) {
	media, sig := &fakeMedia{}, &fakeSignal{}
	ctl := New("B", media, sig, nil)
	ctl.HandleFrame([]byte(`{"type":"incoming-call","callerId":"A","signal":"remote-offer"}`))

	if err := ctl.Reject(); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if sig.frame(t, 0)["type"] != "call-reject" {
		t.Fatalf("expected call-reject frame, got %v", sig.sent)
	}
	if ctl.State() != StateEnded || media.closes != 1 {
		t.Fatal("reject must release local resources")
	}
}
