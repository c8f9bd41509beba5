package core

import (
	"encoding/json"
	"testing"

	"github.com/parleychat/parley/internal/domain"
)

func TestOfferUnicastOnlyToTarget(t *testing.T) {
	call := NewCallRoom("c1")
	ca, cb, cc := &fakeConn{}, &fakeConn{}, &fakeConn{}
	call.Connect("alice", ca)
	call.Connect("bob", cb)
	call.Connect("carol", cc)

	call.Route("alice", []byte(`{"type":"offer","targetId":"bob","sdp":"v=0"}`))

	if cb.count() != 1 {
		t.Fatalf("target must receive the offer, got %d frames", cb.count())
	}
	if cc.count() != 0 {
		t.Fatal("a third participant must never see a peer-specific payload")
	}
	if ca.count() != 0 {
		t.Fatal("sender must not receive its own frame")
	}
	msg := cb.decoded(t, 0)
	if msg["senderId"] != "alice" {
		t.Fatalf("senderId must be stamped, got %v", msg["senderId"])
	}
	if msg["sdp"] != "v=0" {
		t.Fatalf("payload must pass through, got %v", msg["sdp"])
	}
}

func TestUnicastToAbsentTargetDropped(t *testing.T) {
	call := NewCallRoom("c1")
	ca := &fakeConn{}
	call.Connect("alice", ca)

	call.Route("alice", []byte(`{"type":"answer","targetId":"ghost","sdp":"v=0"}`))
	if ca.count() != 0 {
		t.Fatal("nothing should be delivered, and no error surfaced to the sender")
	}
}

func TestDisconnectBroadcastsCallEnded(t *testing.T) {
	call := NewCallRoom("c1")
	ca, cb := &fakeConn{}, &fakeConn{}
	call.Connect("alice", ca)
	call.Connect("bob", cb)

	// No signaling was ever exchanged; a drop is still a hang-up.
	call.Disconnect("bob", cb)

	if ca.count() != 1 {
		t.Fatalf("expected call-ended broadcast, got %d frames", ca.count())
	}
	msg := ca.decoded(t, 0)
	if msg["type"] != domain.TypeCallEnded || msg["senderId"] != "bob" {
		t.Fatalf("unexpected frame: %v", msg)
	}
}

func TestReconnectLastWriterWins(t *testing.T) {
	call := NewCallRoom("c1")
	old, fresh, ca := &fakeConn{}, &fakeConn{}, &fakeConn{}
	call.Connect("alice", ca)
	call.Connect("bob", old)
	call.Connect("bob", fresh)

	call.Route("alice", []byte(`{"type":"offer","targetId":"bob","sdp":"v=0"}`))
	if old.count() != 0 || fresh.count() != 1 {
		t.Fatalf("frame must reach the replacement connection, old=%d fresh=%d", old.count(), fresh.count())
	}

	// The stale connection's close must not evict the replacement.
	if remaining := call.Disconnect("bob", old); remaining != 2 {
		t.Fatalf("expected 2 peers after stale close, got %d", remaining)
	}
	if ca.count() != 0 {
		t.Fatal("stale close must not broadcast call-ended")
	}
}

func TestUnknownSignalTypeDropped(t *testing.T) {
	call := NewCallRoom("c1")
	ca, cb := &fakeConn{}, &fakeConn{}
	call.Connect("alice", ca)
	call.Connect("bob", cb)

	call.Route("alice", []byte(`{"type":"mystery","targetId":"bob"}`))
	call.Route("alice", []byte(`not json`))
	if cb.count() != 0 {
		t.Fatalf("expected nothing delivered, got %d frames", cb.count())
	}
}

func TestCallSignalingScenario(t *testing.T) {
	call := NewCallRoom("c1")
	ca, cb := &fakeConn{}, &fakeConn{}
	call.Connect("A", ca)
	call.Connect("B", cb)

	call.Route("A", []byte(`{"type":"call-start","callType":"voice","signal":"offer1"}`))

	incoming := cb.decoded(t, 0)
	if incoming["type"] != domain.TypeIncomingCall {
		t.Fatalf("expected incoming-call, got %v", incoming["type"])
	}
	if incoming["callerId"] != "A" || incoming["callType"] != "voice" || incoming["signal"] != "offer1" {
		t.Fatalf("unexpected incoming-call frame: %v", incoming)
	}
	if incoming["callId"] != "c1" {
		t.Fatalf("expected callId c1, got %v", incoming["callId"])
	}

	call.Route("B", []byte(`{"type":"call-answer","targetId":"A","signal":"answer1"}`))

	answered := ca.decoded(t, 0)
	if answered["type"] != domain.TypeCallAnswered || answered["answererId"] != "B" || answered["signal"] != "answer1" {
		t.Fatalf("unexpected call-answered frame: %v", answered)
	}

	call.Route("A", []byte(`{"type":"ice-candidate","targetId":"B","candidate":"ice1"}`))

	cand := cb.decoded(t, 1)
	if cand["type"] != domain.TypeICECandidate || cand["candidate"] != "ice1" || cand["senderId"] != "A" {
		t.Fatalf("unexpected candidate frame: %v", cand)
	}

	call.Disconnect("B", cb)

	ended := ca.decoded(t, 1)
	if ended["type"] != domain.TypeCallEnded || ended["senderId"] != "B" {
		t.Fatalf("unexpected call-ended frame: %v", ended)
	}
}

func TestCallRejectBroadcast(t *testing.T) {
	call := NewCallRoom("c1")
	ca, cb := &fakeConn{}, &fakeConn{}
	call.Connect("A", ca)
	call.Connect("B", cb)

	call.Route("B", []byte(`{"type":"call-reject"}`))

	var msg map[string]any
	if err := json.Unmarshal(ca.frames[0], &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg["type"] != domain.TypeCallRejected || msg["senderId"] != "B" {
		t.Fatalf("unexpected frame: %v", msg)
	}
	if cb.count() != 0 {
		t.Fatal("rejector must not receive the broadcast")
	}
}
