// Package domain contains entities without logic, just meta-data.
package domain

import "time"

type (
	RoomID        string
	CallID        string
	ParticipantID string
)

// Participant is the admin-facing view of one live chat session.
type Participant struct {
	ID       ParticipantID `json:"userId"`
	JoinedAt time.Time     `json:"joinedAt"`
}
