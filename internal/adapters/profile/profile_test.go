package profile_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgrn/tamari/internal/adapters/profile"
	"github.com/mgrn/tamari/internal/domain"
)

func TestGuestStore(t *testing.T) {
	store := profile.NewGuestStore()
	store.Put(profile.Record{UserID: "g1", DisplayName: "alice", Avatar: domain.AvatarBlue})

	rec, err := store.Lookup(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.DisplayName)
	assert.Equal(t, domain.ProviderGuest, rec.Provider)

	_, err = store.Lookup(context.Background(), "missing")
	assert.ErrorIs(t, err, profile.ErrNotFound)
}

func TestSources_RoutesByProvider(t *testing.T) {
	guests := profile.NewGuestStore()
	guests.Put(profile.Record{UserID: "g1", DisplayName: "alice"})
	sources := profile.Sources{Guest: guests}

	rec, err := sources.Lookup(context.Background(), domain.ProviderGuest, "g1")
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.DisplayName)

	// No google path configured: registered lookups answer not-found.
	_, err = sources.Lookup(context.Background(), domain.ProviderGoogle, "g1")
	assert.ErrorIs(t, err, profile.ErrNotFound)

	_, err = sources.Lookup(context.Background(), "unknown", "g1")
	assert.ErrorIs(t, err, profile.ErrNotFound)
}
