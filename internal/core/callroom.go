package core

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/parleychat/parley/internal/domain"
)

// CallRoom routes WebRTC signaling frames between the participants of one
// active call. Unlike a chat room it routes by target participant id:
// SDP and ICE payloads are peer-specific and must never reach a third
// connected participant.
type CallRoom struct {
	id    domain.CallID
	mu    sync.RWMutex
	peers map[domain.ParticipantID]SignalConnection
}

func NewCallRoom(id domain.CallID) *CallRoom {
	return &CallRoom{
		id:    id,
		peers: make(map[domain.ParticipantID]SignalConnection),
	}
}

func (r *CallRoom) ID() domain.CallID { return r.id }

func (r *CallRoom) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Connect registers the participant's connection. A reconnect under the
// same id replaces the previous entry, last writer wins. Connection alone
// does not imply ringing, so nothing is broadcast here.
func (r *CallRoom) Connect(pid domain.ParticipantID, conn SignalConnection) {
	r.mu.Lock()
	r.peers[pid] = conn
	r.mu.Unlock()
	log.Info().Str("module", "core.callroom").Str("call", string(r.id)).Str("user", string(pid)).Msg("peer connected")
}

// Disconnect removes the participant and tells everyone left that the
// call ended: a dropped connection is always an implicit hang-up. The
// entry is only removed if conn is still the registered connection, so a
// stale close after a reconnect cannot evict the replacement.
// Returns the number of peers left.
func (r *CallRoom) Disconnect(pid domain.ParticipantID, conn SignalConnection) int {
	r.mu.Lock()
	current, ok := r.peers[pid]
	if ok && (conn == nil || current == conn) {
		delete(r.peers, pid)
	} else {
		ok = false
	}
	remaining := len(r.peers)
	r.mu.Unlock()

	if !ok {
		return remaining
	}
	log.Info().Str("module", "core.callroom").Str("call", string(r.id)).Str("user", string(pid)).Msg("peer disconnected")
	r.broadcast(map[string]any{
		domain.FieldType:     domain.TypeCallEnded,
		domain.FieldSenderID: string(pid),
	}, pid)
	return remaining
}

// Route dispatches one inbound signaling frame from pid. The sender id on
// the frame is always the authenticated connection's id; a client-asserted
// senderId is overwritten. Frames for peers that are not currently
// connected are dropped without telling the sender — the client controller
// detects that with its own timeout.
func (r *CallRoom) Route(pid domain.ParticipantID, raw Frame) {
	var msg map[string]any
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Warn().Err(err).Str("module", "core.callroom").Str("call", string(r.id)).Msg("malformed frame dropped")
		return
	}
	t, _ := msg[domain.FieldType].(string)

	switch t {
	case domain.TypeOffer, domain.TypeAnswer, domain.TypeICECandidate:
		msg[domain.FieldSenderID] = string(pid)
		target, _ := msg[domain.FieldTargetID].(string)
		r.unicast(domain.ParticipantID(target), msg)

	case domain.TypeCallStart:
		r.broadcast(map[string]any{
			domain.FieldType: domain.TypeIncomingCall,
			"callerId":       string(pid),
			"callId":         string(r.id),
			"callType":       msg["callType"],
			"signal":         msg["signal"],
		}, pid)

	case domain.TypeCallAnswer:
		target, _ := msg[domain.FieldTargetID].(string)
		r.unicast(domain.ParticipantID(target), map[string]any{
			domain.FieldType: domain.TypeCallAnswered,
			"answererId":     string(pid),
			"signal":         msg["signal"],
		})

	case domain.TypeCallReject:
		r.broadcast(map[string]any{
			domain.FieldType:     domain.TypeCallRejected,
			domain.FieldSenderID: string(pid),
		}, pid)

	case domain.TypeCallEnd:
		r.broadcast(map[string]any{
			domain.FieldType:     domain.TypeCallEnded,
			domain.FieldSenderID: string(pid),
		}, pid)

	default:
		log.Warn().Str("module", "core.callroom").Str("call", string(r.id)).Str("type", t).Msg("unknown frame type dropped")
	}
}

func (r *CallRoom) unicast(target domain.ParticipantID, msg map[string]any) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "core.callroom").Msg("encode frame")
		return
	}
	r.mu.RLock()
	conn, ok := r.peers[target]
	r.mu.RUnlock()
	if !ok {
		log.Debug().Str("module", "core.callroom").Str("call", string(r.id)).Str("target", string(target)).Msg("unicast target absent, dropped")
		return
	}
	_ = conn.TrySend(data)
}

func (r *CallRoom) broadcast(msg map[string]any, exclude domain.ParticipantID) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "core.callroom").Msg("encode frame")
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for pid, conn := range r.peers {
		if pid == exclude {
			continue
		}
		_ = conn.TrySend(data)
	}
}
