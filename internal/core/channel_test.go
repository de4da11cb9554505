package core_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgrn/tamari/internal/adapters/presence"
	"github.com/mgrn/tamari/internal/core"
	"github.com/mgrn/tamari/internal/domain"
)

const testRoom = domain.RoomID("main-room")

func TestChannelClient_ConnectIdempotent(t *testing.T) {
	transport := &countingTransport{inner: presence.NewMemoryTransport()}
	cc := core.NewChannelClient(transport, time.Second)

	ctx := context.Background()
	require.NoError(t, cc.Connect(ctx, testRoom))
	require.NoError(t, cc.Connect(ctx, testRoom))
	require.NoError(t, cc.Connect(ctx, testRoom))

	assert.Equal(t, 1, transport.count())
	assert.True(t, cc.Connected(testRoom))
}

func TestChannelClient_ConnectTimeout(t *testing.T) {
	cc := core.NewChannelClient(stallingTransport{}, 50*time.Millisecond)

	err := cc.Connect(context.Background(), testRoom)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConnection)
	assert.False(t, cc.Connected(testRoom))
}

func TestChannelClient_PublishBeforeConnect(t *testing.T) {
	cc := core.NewChannelClient(presence.NewMemoryTransport(), time.Second)

	err := cc.Publish(context.Background(), testRoom, guest("u1", "alice"))
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestChannelClient_PublishSnapshotRoundTrip(t *testing.T) {
	cc := core.NewChannelClient(presence.NewMemoryTransport(), time.Second)
	ctx := context.Background()
	require.NoError(t, cc.Connect(ctx, testRoom))

	p := guest("u1", "alice")
	p.JoinedAt = time.Now().UTC()
	require.NoError(t, cc.Publish(ctx, testRoom, p))

	got, err := cc.Snapshot(ctx, testRoom)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, p.UserID, got[0].UserID)
	assert.Equal(t, p.DisplayName, got[0].DisplayName)
	assert.Equal(t, p.Avatar, got[0].Avatar)
	assert.Equal(t, domain.ProviderGuest, got[0].Provider)
}

func TestChannelClient_SnapshotLastWriterWins(t *testing.T) {
	older := core.PresenceRecord{UserID: "u1", Name: "stale tab", Avatar: "blue", JoinedAt: "2024-01-01T10:00:00Z"}
	newer := core.PresenceRecord{UserID: "u1", Name: "fresh tab", Avatar: "green", JoinedAt: "2024-01-01T10:05:00Z"}
	cc := core.NewChannelClient(&staticStateTransport{records: []core.PresenceRecord{newer, older}}, time.Second)

	ctx := context.Background()
	require.NoError(t, cc.Connect(ctx, testRoom))

	got, err := cc.Snapshot(ctx, testRoom)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh tab", got[0].DisplayName)
	assert.Equal(t, domain.AvatarGreen, got[0].Avatar)
}

func TestChannelClient_SnapshotNotConnected(t *testing.T) {
	cc := core.NewChannelClient(presence.NewMemoryTransport(), time.Second)

	got, err := cc.Snapshot(context.Background(), testRoom)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestChannelClient_DeltaFanOut(t *testing.T) {
	transport := presence.NewMemoryTransport()
	cc := core.NewChannelClient(transport, time.Second)
	ctx := context.Background()

	var mu sync.Mutex
	var first, second []core.Delta
	unsubFirst, err := cc.OnDelta(ctx, testRoom, func(d core.Delta) {
		mu.Lock()
		first = append(first, d)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer unsubFirst()
	unsubSecond, err := cc.OnDelta(ctx, testRoom, func(d core.Delta) {
		mu.Lock()
		second = append(second, d)
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, cc.Publish(ctx, testRoom, guest("u1", "alice")))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(first) == 1 && len(second) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, core.DeltaJoin, first[0].Kind)
	assert.Equal(t, "u1", first[0].Record.UserID)
	mu.Unlock()

	// A removed listener stops receiving; the remaining one still does.
	unsubSecond()
	require.NoError(t, cc.Publish(ctx, testRoom, guest("u2", "bob")))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(first) == 2
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Len(t, second, 1)
	mu.Unlock()
}

func TestChannelClient_DisconnectIdempotent(t *testing.T) {
	cc := core.NewChannelClient(presence.NewMemoryTransport(), time.Second)
	ctx := context.Background()
	require.NoError(t, cc.Connect(ctx, testRoom))
	require.NoError(t, cc.Publish(ctx, testRoom, guest("u1", "alice")))

	cc.Disconnect(testRoom)
	cc.Disconnect(testRoom) // second call is a no-op
	assert.False(t, cc.Connected(testRoom))

	got, err := cc.Snapshot(ctx, testRoom)
	require.NoError(t, err)
	assert.Empty(t, got)
}
