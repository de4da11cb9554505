// Package domain contains entities without logic, just meta-data.
package domain

import (
	"errors"
	"time"
)

const MaxDisplayNameLen = 36

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
)

type UserID string

// Provider discriminates the two identity variants. Google users carry an
// email, guests exist only for the lifetime of their presence.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderGuest  Provider = "guest"
)

// Avatar is the fixed set of avatar selections the client may pick from.
type Avatar string

const (
	AvatarBlue    Avatar = "blue"
	AvatarPurple  Avatar = "purple"
	AvatarCyan    Avatar = "cyan"
	AvatarIndigo  Avatar = "indigo"
	AvatarGreen   Avatar = "green"
	AvatarDefault Avatar = "default"
)

// ParseAvatar maps any unknown selection to AvatarDefault so that stale
// presence records never break rendering.
func ParseAvatar(s string) Avatar {
	switch Avatar(s) {
	case AvatarBlue, AvatarPurple, AvatarCyan, AvatarIndigo, AvatarGreen:
		return Avatar(s)
	default:
		return AvatarDefault
	}
}

// Participant is one occupant of a room. Identity is unique per room by
// UserID; JoinedAt is stamped by the coordinator on a successful join.
type Participant struct {
	UserID      UserID    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Avatar      Avatar    `json:"avatar"`
	Provider    Provider  `json:"provider"`
	Email       string    `json:"email,omitempty"` // google only
	JoinedAt    time.Time `json:"joined_at"`
}

// NewGuestParticipant avoids raw struct literals in adapters and keeps
// validation in one place.
func NewGuestParticipant(id UserID, name string, avatar Avatar) (Participant, error) {
	if err := validateDisplayName(name); err != nil {
		return Participant{}, err
	}
	return Participant{
		UserID:      id,
		DisplayName: name,
		Avatar:      avatar,
		Provider:    ProviderGuest,
	}, nil
}

func NewGoogleParticipant(id UserID, name, email string, avatar Avatar) (Participant, error) {
	if err := validateDisplayName(name); err != nil {
		return Participant{}, err
	}
	return Participant{
		UserID:      id,
		DisplayName: name,
		Avatar:      avatar,
		Provider:    ProviderGoogle,
		Email:       email,
	}, nil
}

func validateDisplayName(name string) error {
	if len(name) == 0 {
		return ErrDisplayNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	return nil
}
