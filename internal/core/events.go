package core

import (
	"encoding/json"

	"echoroom/internal/domain"
)

// EventType tags every server-to-client frame. The set is closed; unknown
// types on either side are dropped with a warning, never acted on.
type EventType string

const (
	EventRoomCreated     EventType = "room-created"
	EventJoinAck         EventType = "join-ack"
	EventLeft            EventType = "left"
	EventUserJoined      EventType = "user-joined"
	EventUserLeft        EventType = "user-left"
	EventNewMessage      EventType = "new-message"
	EventUserScreenShare EventType = "user-screen-share"
	EventSignal          EventType = "signal"
	EventPong            EventType = "pong"
)

// SignalKind discriminates the relayed WebRTC payloads.
type SignalKind string

const (
	SignalOffer        SignalKind = "offer"
	SignalAnswer       SignalKind = "answer"
	SignalICECandidate SignalKind = "ice-candidate"
)

// SignalBody is passed through the relay verbatim. The payload is opaque
// to the server; only the two peers parse it.
type SignalBody struct {
	Kind    SignalKind      `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// RoomSnapshot is the roster view shipped with membership events and acks.
type RoomSnapshot struct {
	ID        domain.RoomID        `json:"id"`
	UserCount int                  `json:"userCount"`
	Users     []domain.Participant `json:"users"`
}

type RoomCreatedEvent struct {
	Type   EventType     `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
}

type JoinAckEvent struct {
	Type    EventType     `json:"type"`
	Success bool          `json:"success"`
	Self    domain.ConnID `json:"self,omitempty"`
	Room    *RoomSnapshot `json:"room,omitempty"`
	Error   string        `json:"error,omitempty"`
}

type UserJoinedEvent struct {
	Type      EventType            `json:"type"`
	User      domain.Participant   `json:"user"`
	UserCount int                  `json:"userCount"`
	Users     []domain.Participant `json:"users"`
}

type UserLeftEvent struct {
	Type      EventType            `json:"type"`
	UserID    domain.ConnID        `json:"userId"`
	UserCount int                  `json:"userCount"`
	Users     []domain.Participant `json:"users"`
}

type NewMessageEvent struct {
	Type EventType `json:"type"`
	domain.ChatMessage
}

type ScreenShareEvent struct {
	Type      EventType     `json:"type"`
	UserID    domain.ConnID `json:"userId"`
	IsSharing bool          `json:"isSharing"`
}

// SignalEvent is what the relay target receives. From is stamped by the
// server from the sending connection, so it cannot be spoofed.
type SignalEvent struct {
	Type   EventType     `json:"type"`
	From   domain.ConnID `json:"from"`
	Signal SignalBody    `json:"signal"`
}
