package domain

import "time"

type EventType string

const (
	EventJoin  EventType = "join"
	EventLeave EventType = "leave"
)

// PresenceEvent is an immutable record of one observed join or leave.
// Timestamp is wall-clock time at observation, not transport time.
type PresenceEvent struct {
	Type        EventType   `json:"type"`
	RoomID      RoomID      `json:"room_id"`
	UserID      UserID      `json:"user_id"`
	Participant Participant `json:"participant"`
	Timestamp   time.Time   `json:"timestamp"`
}
