package domain

import (
	"errors"
	"time"
)

const MaxUsernameLen = 36

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

// ConnID is the transport-level identifier, unique per live connection
// and reassigned on reconnect. The server allocates it, never the client.
type ConnID string

// UserID is the stable logical identity a client carries across connections.
type UserID string

// Participant is one connected client bound to a room.
type Participant struct {
	ConnID   ConnID    `json:"id"`
	UserID   UserID    `json:"userId,omitempty"`
	Username string    `json:"username"`
	Avatar   string    `json:"avatar"`
	IsHost   bool      `json:"isHost"`
	JoinedAt time.Time `json:"joinedAt"`
}

// NewParticipant avoids ad-hoc struct literals in adapters.
func NewParticipant(connID ConnID, userID UserID, username, avatar string) (*Participant, error) {
	if username == "" {
		return nil, ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return nil, ErrUsernameTooLong
	}
	return &Participant{
		ConnID:   connID,
		UserID:   userID,
		Username: username,
		Avatar:   avatar,
		JoinedAt: time.Now().UTC(),
	}, nil
}
