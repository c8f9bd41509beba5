// Package app owns the lifecycle of relay instances: one ChatRoom per
// room id and one CallRoom per call id, created on first connection and
// removed once the last disconnect drains them.
package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/parleychat/parley/internal/core"
	"github.com/parleychat/parley/internal/domain"
)

type RoomInfo struct {
	ID           domain.RoomID `json:"roomId"`
	Participants int           `json:"participantCount"`
}

// Supervisor serializes all membership mutations under its own lock, so
// the drain-check-then-delete on disconnect is atomic with respect to a
// concurrent first-connect for the same id. Frame fan-out inside a room
// never takes this lock; rooms stay independent.
type Supervisor struct {
	mu    sync.Mutex
	rooms map[domain.RoomID]*core.ChatRoom
	calls map[domain.CallID]*core.CallRoom

	chatLimit  int
	chatWindow time.Duration
}

func NewSupervisor(chatLimit int, chatWindow time.Duration) *Supervisor {
	return &Supervisor{
		rooms:      make(map[domain.RoomID]*core.ChatRoom),
		calls:      make(map[domain.CallID]*core.CallRoom),
		chatLimit:  chatLimit,
		chatWindow: chatWindow,
	}
}

// JoinRoom resolves or creates the room and registers a new session in it.
func (s *Supervisor) JoinRoom(id domain.RoomID, pid domain.ParticipantID, conn core.SignalConnection) (*core.ChatRoom, *core.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		var limiter *core.RateLimiter
		if s.chatLimit > 0 {
			limiter = core.NewRateLimiter(s.chatLimit, s.chatWindow)
		}
		room = core.NewChatRoom(id, limiter)
		s.rooms[id] = room
		log.Info().Str("module", "app.supervisor").Str("room", string(id)).Msg("room created")
	}
	return room, room.Connect(pid, conn)
}

// LeaveRoom runs the disconnect cleanup for one session and reclaims the
// room once it is empty. Idempotent per session.
func (s *Supervisor) LeaveRoom(room *core.ChatRoom, sess *core.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room.Disconnect(sess) == 0 {
		delete(s.rooms, room.ID())
		log.Info().Str("module", "app.supervisor").Str("room", string(room.ID())).Msg("room reclaimed")
	}
}

// JoinCall resolves or creates the call room and registers the peer.
func (s *Supervisor) JoinCall(id domain.CallID, pid domain.ParticipantID, conn core.SignalConnection) *core.CallRoom {
	s.mu.Lock()
	defer s.mu.Unlock()
	call, ok := s.calls[id]
	if !ok {
		call = core.NewCallRoom(id)
		s.calls[id] = call
		log.Info().Str("module", "app.supervisor").Str("call", string(id)).Msg("call created")
	}
	call.Connect(pid, conn)
	return call
}

// LeaveCall removes the peer (if conn still owns the entry) and reclaims
// the call room once it is empty.
func (s *Supervisor) LeaveCall(call *core.CallRoom, pid domain.ParticipantID, conn core.SignalConnection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if call.Disconnect(pid, conn) == 0 {
		delete(s.calls, call.ID())
		log.Info().Str("module", "app.supervisor").Str("call", string(call.ID())).Msg("call reclaimed")
	}
}

// Room is the admin-side lookup; it never creates.
func (s *Supervisor) Room(id domain.RoomID) (*core.ChatRoom, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	return room, ok
}

func (s *Supervisor) Rooms() []RoomInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RoomInfo, 0, len(s.rooms))
	for id, room := range s.rooms {
		out = append(out, RoomInfo{ID: id, Participants: room.Len()})
	}
	return out
}
