package domain

import "time"

// ChatMessage is a relayed chat line. Nothing is persisted; the id and
// timestamp exist so every client renders the same authoritative event.
type ChatMessage struct {
	ID        string      `json:"id"`
	Text      string      `json:"text"`
	Sender    Participant `json:"sender"`
	Timestamp time.Time   `json:"timestamp"`
}
