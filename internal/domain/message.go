package domain

// Frame types accepted on a chat room connection. Anything else is
// logged and dropped, never forwarded.
const (
	TypeMessage = "message"
	TypeTyping  = "typing"
	TypeRead    = "read"
	TypeContact = "contact"
	TypeCall    = "call"
)

// Frame types accepted on a call connection.
const (
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
	TypeCallStart    = "call-start"
	TypeCallAnswer   = "call-answer"
	TypeCallReject   = "call-reject"
	TypeCallEnd      = "call-end"
)

// Frame types the call relay emits.
const (
	TypeIncomingCall = "incoming-call"
	TypeCallAnswered = "call-answered"
	TypeCallRejected = "call-rejected"
	TypeCallEnded    = "call-ended"
)

// Envelope field keys. The relay stamps SenderID (and Timestamp for chat
// frames) server-side; client-supplied values are overwritten.
const (
	FieldType      = "type"
	FieldSenderID  = "senderId"
	FieldTargetID  = "targetId"
	FieldTimestamp = "timestamp"
)

const (
	TypePresence  = "presence"
	ActionOnline  = "online"
	ActionOffline = "offline"
)

// PresenceEvent announces a participant becoming reachable or unreachable
// to the other members of a chat room.
type PresenceEvent struct {
	Type          string        `json:"type"`
	Action        string        `json:"action"`
	ParticipantID ParticipantID `json:"participantId"`
}

func PresenceOnline(pid ParticipantID) PresenceEvent {
	return PresenceEvent{Type: TypePresence, Action: ActionOnline, ParticipantID: pid}
}

func PresenceOffline(pid ParticipantID) PresenceEvent {
	return PresenceEvent{Type: TypePresence, Action: ActionOffline, ParticipantID: pid}
}
