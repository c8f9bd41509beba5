package core

import (
	"time"

	"github.com/parleychat/parley/internal/domain"
)

// Frame is one raw wire payload.
type Frame []byte

// SessionKey is a stable opaque key for one live connection. Registries
// key on it instead of on the transport object itself.
type SessionKey string

// SignalConnection abstracts the messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend must not block. It returns an error when the connection is
	// closed or its outbound buffer is full; the caller treats both as
	// "skip this recipient".
	TrySend(Frame) error
	Close()
}

// Session is one live connection plus its participant identity, held in a
// chat room's registry. The registry is the sole writer.
type Session struct {
	Key           SessionKey
	ParticipantID domain.ParticipantID
	Conn          SignalConnection
	JoinedAt      time.Time
}
