package domain_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgrn/tamari/internal/domain"
)

func TestParseAvatar(t *testing.T) {
	assert.Equal(t, domain.AvatarBlue, domain.ParseAvatar("blue"))
	assert.Equal(t, domain.AvatarGreen, domain.ParseAvatar("green"))
	assert.Equal(t, domain.AvatarDefault, domain.ParseAvatar(""))
	assert.Equal(t, domain.AvatarDefault, domain.ParseAvatar("crimson"))
	assert.Equal(t, domain.AvatarDefault, domain.ParseAvatar("default"))
}

func TestNewGuestParticipant(t *testing.T) {
	p, err := domain.NewGuestParticipant("u1", "alice", domain.AvatarCyan)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderGuest, p.Provider)
	assert.Empty(t, p.Email)
	assert.True(t, p.JoinedAt.IsZero())

	_, err = domain.NewGuestParticipant("u1", "", domain.AvatarCyan)
	assert.ErrorIs(t, err, domain.ErrDisplayNameEmpty)

	_, err = domain.NewGuestParticipant("u1", strings.Repeat("x", domain.MaxDisplayNameLen+1), domain.AvatarCyan)
	assert.ErrorIs(t, err, domain.ErrDisplayNameTooLong)
}

func TestNewGoogleParticipant(t *testing.T) {
	p, err := domain.NewGoogleParticipant("u2", "bob", "bob@example.com", domain.AvatarIndigo)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderGoogle, p.Provider)
	assert.Equal(t, "bob@example.com", p.Email)
}
