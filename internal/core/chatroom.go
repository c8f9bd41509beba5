package core

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/parleychat/parley/internal/domain"
)

// ChatRoom owns the live session set for one logical chat room and fans
// chat/presence events out to every other current participant. It is
// threadsafe; the mutex guards the registry, delivery itself never blocks.
type ChatRoom struct {
	id       domain.RoomID
	mu       sync.RWMutex
	sessions map[SessionKey]*Session
	limiter  *RateLimiter
}

func NewChatRoom(id domain.RoomID, limiter *RateLimiter) *ChatRoom {
	return &ChatRoom{
		id:       id,
		sessions: make(map[SessionKey]*Session),
		limiter:  limiter,
	}
}

func (r *ChatRoom) ID() domain.RoomID { return r.id }

func (r *ChatRoom) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Connect registers a new session and announces it to the rest of the
// room. Identity validation happened at the gateway; there is no error
// path here.
func (r *ChatRoom) Connect(pid domain.ParticipantID, conn SignalConnection) *Session {
	sess := &Session{
		Key:           SessionKey(uuid.NewString()),
		ParticipantID: pid,
		Conn:          conn,
		JoinedAt:      time.Now(),
	}
	r.mu.Lock()
	r.sessions[sess.Key] = sess
	r.mu.Unlock()

	log.Info().Str("module", "core.chatroom").Str("room", string(r.id)).Str("user", string(pid)).Msg("session connected")
	r.broadcastEvent(domain.PresenceOnline(pid), sess.Key)
	return sess
}

// Disconnect removes the session and announces it offline to the rest of
// the room. Safe to call more than once per session; only the first call
// broadcasts. Returns the number of sessions left.
func (r *ChatRoom) Disconnect(sess *Session) int {
	r.mu.Lock()
	_, registered := r.sessions[sess.Key]
	if registered {
		delete(r.sessions, sess.Key)
	}
	remaining := len(r.sessions)
	r.mu.Unlock()

	if !registered {
		return remaining
	}
	log.Info().Str("module", "core.chatroom").Str("room", string(r.id)).Str("user", string(sess.ParticipantID)).Msg("session disconnected")
	r.broadcastEvent(domain.PresenceOffline(sess.ParticipantID), sess.Key)
	return remaining
}

// HandleInbound parses one raw frame from a session, stamps senderId and
// a server timestamp over whatever the client supplied, and fans the
// frame out to every other session. Malformed or unrecognized frames are
// dropped; the connection stays open either way.
func (r *ChatRoom) HandleInbound(sess *Session, raw Frame) {
	var msg map[string]any
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Warn().Err(err).Str("module", "core.chatroom").Str("room", string(r.id)).Msg("malformed frame dropped")
		return
	}
	t, _ := msg[domain.FieldType].(string)
	switch t {
	case domain.TypeMessage, domain.TypeTyping, domain.TypeRead, domain.TypeContact, domain.TypeCall:
	default:
		log.Warn().Str("module", "core.chatroom").Str("room", string(r.id)).Str("type", t).Msg("unknown frame type dropped")
		return
	}
	if r.limiter != nil && !r.limiter.Allow(sess.ParticipantID) {
		log.Warn().Str("module", "core.chatroom").Str("room", string(r.id)).Str("user", string(sess.ParticipantID)).Msg("rate limited frame dropped")
		return
	}

	msg[domain.FieldSenderID] = string(sess.ParticipantID)
	msg[domain.FieldTimestamp] = time.Now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "core.chatroom").Msg("re-encode frame")
		return
	}
	r.Broadcast(data, sess.Key)
}

// Broadcast delivers one already-serialized frame to every session except
// the excluded one. Delivery is fire-and-forget: recipients whose
// connection is closed or backed up are skipped, never retried.
func (r *ChatRoom) Broadcast(data Frame, exclude SessionKey) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sent, skipped := 0, 0
	for key, s := range r.sessions {
		if key == exclude {
			continue
		}
		if err := s.Conn.TrySend(data); err != nil {
			skipped++
			continue
		}
		sent++
	}
	log.Debug().Str("module", "core.chatroom").Str("room", string(r.id)).Int("sent", sent).Int("skipped", skipped).Msg("broadcast")
}

// Participants is a snapshot read of the registry for the admin surface.
func (r *ChatRoom) Participants() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Participant, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, domain.Participant{ID: s.ParticipantID, JoinedAt: s.JoinedAt})
	}
	return out
}

func (r *ChatRoom) broadcastEvent(v any, exclude SessionKey) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "core.chatroom").Msg("encode event")
		return
	}
	r.Broadcast(data, exclude)
}
