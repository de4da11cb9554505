package core

import (
	"context"
	"time"

	"github.com/mgrn/tamari/internal/domain"
)

// PresenceRecord is the wire form of one tracked participant. Field names
// are part of the channel protocol and must stay stable across clients.
type PresenceRecord struct {
	UserID   string `json:"user_id"`
	Name     string `json:"user_name"`
	Avatar   string `json:"user_avatar"`
	Email    string `json:"user_email,omitempty"`
	JoinedAt string `json:"joined_at"`
}

type DeltaKind string

const (
	DeltaJoin  DeltaKind = "join"
	DeltaLeave DeltaKind = "leave"
)

// Delta is one incremental join/leave notification from the transport.
type Delta struct {
	Kind   DeltaKind      `json:"type"`
	Record PresenceRecord `json:"record"`
}

// Conn is a live subscription to one room channel.
// Owned by the adapter; the adapter must Close() it.
type Conn interface {
	// Track announces or updates the local presence record under key.
	Track(ctx context.Context, key string, rec PresenceRecord) error
	// Untrack withdraws the local record, if any.
	Untrack(ctx context.Context) error
	// State returns every raw record currently tracked on the channel.
	// The same user may appear more than once (multiple tabs).
	State(ctx context.Context) ([]PresenceRecord, error)
	// Events yields remote deltas in the order the transport emits them.
	// The channel is closed when the subscription ends.
	Events() <-chan Delta
	Close() error
}

// Transport abstracts the real-time presence medium. Any pub/sub system
// offering group membership plus change notification satisfies it.
type Transport interface {
	Subscribe(ctx context.Context, channel string) (Conn, error)
}

// ChannelName is the transport channel carrying a room's presence.
func ChannelName(roomID domain.RoomID) string {
	return "room:" + string(roomID)
}

// PresenceKey is the per-participant track key within a channel.
func PresenceKey(userID domain.UserID) string {
	return "user_" + string(userID)
}

// EncodeRecord flattens a participant into its wire form.
func EncodeRecord(p domain.Participant) PresenceRecord {
	return PresenceRecord{
		UserID:   string(p.UserID),
		Name:     p.DisplayName,
		Avatar:   string(p.Avatar),
		Email:    p.Email,
		JoinedAt: p.JoinedAt.UTC().Format(time.RFC3339Nano),
	}
}

// DecodeRecord reconstructs a participant from a raw record. The provider is
// inferred from the presence of an email; unknown avatars fall back to the
// default; an unparsable joined_at becomes the zero time.
func DecodeRecord(rec PresenceRecord) domain.Participant {
	provider := domain.ProviderGuest
	if rec.Email != "" {
		provider = domain.ProviderGoogle
	}
	joined, _ := time.Parse(time.RFC3339Nano, rec.JoinedAt)
	return domain.Participant{
		UserID:      domain.UserID(rec.UserID),
		DisplayName: rec.Name,
		Avatar:      domain.ParseAvatar(rec.Avatar),
		Provider:    provider,
		Email:       rec.Email,
		JoinedAt:    joined,
	}
}
