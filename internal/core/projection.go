package core

import (
	"sync"

	"github.com/mgrn/tamari/internal/domain"
)

// Read-model helpers over membership data. Purely observational; nothing
// here influences admission.

func IsParticipant(members []domain.Participant, userID domain.UserID) bool {
	_, ok := FindParticipant(members, userID)
	return ok
}

func FindParticipant(members []domain.Participant, userID domain.UserID) (domain.Participant, bool) {
	for _, m := range members {
		if m.UserID == userID {
			return m, true
		}
	}
	return domain.Participant{}, false
}

const DefaultEventLogCapacity = 10

// EventLog keeps the most recent presence events, newest first, for an
// activity feed. Oldest entries are evicted once capacity is reached.
type EventLog struct {
	mu     sync.Mutex
	cap    int
	events []domain.PresenceEvent
}

func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = DefaultEventLogCapacity
	}
	return &EventLog{cap: capacity}
}

func (l *EventLog) Append(e domain.PresenceEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append([]domain.PresenceEvent{e}, l.events...)
	if len(l.events) > l.cap {
		l.events = l.events[:l.cap]
	}
}

// Recent returns the buffered events, newest first.
func (l *EventLog) Recent() []domain.PresenceEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.PresenceEvent, len(l.events))
	copy(out, l.events)
	return out
}

func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func (l *EventLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}
