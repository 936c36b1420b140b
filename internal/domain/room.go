// Package domain contains entity without logic, just meta-data
package domain

import "time"

type RoomID string

// Room is the registry meta for one room. Membership lives in core.
type Room struct {
	ID        RoomID    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}
