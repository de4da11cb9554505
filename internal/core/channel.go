package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mgrn/tamari/internal/domain"
)

// DefaultConnectTimeout bounds how long Connect waits for the transport to
// reach its subscribed state.
const DefaultConnectTimeout = 5 * time.Second

// channelState is one live room subscription plus its delta listeners.
type channelState struct {
	conn Conn

	mu        sync.Mutex
	listeners map[int]func(Delta)
	nextID    int
}

func (st *channelState) addListener(fn func(Delta)) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	id := st.nextID
	st.nextID++
	st.listeners[id] = fn
	return id
}

func (st *channelState) removeListener(id int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.listeners, id)
}

func (st *channelState) snapshotListeners() []func(Delta) {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]func(Delta), 0, len(st.listeners))
	for _, fn := range st.listeners {
		out = append(out, fn)
	}
	return out
}

// ChannelClient owns one transport connection per room and is the only
// writer to the transport. Everything above it reads snapshots or
// subscribes to deltas.
type ChannelClient struct {
	transport Transport
	timeout   time.Duration

	mu       sync.Mutex
	channels map[domain.RoomID]*channelState
}

func NewChannelClient(t Transport, timeout time.Duration) *ChannelClient {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	return &ChannelClient{
		transport: t,
		timeout:   timeout,
		channels:  make(map[domain.RoomID]*channelState),
	}
}

// Connect is idempotent: an existing connection is reused. A fresh subscribe
// is bounded by the configured timeout and survives caller cancellation so
// that an aborted join never leaves the subscription half-established.
func (cc *ChannelClient) Connect(ctx context.Context, roomID domain.RoomID) error {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if _, ok := cc.channels[roomID]; ok {
		return nil
	}

	subCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cc.timeout)
	defer cancel()

	conn, err := cc.transport.Subscribe(subCtx, ChannelName(roomID))
	if err != nil {
		return fmt.Errorf("connect %s: %w: %w", roomID, domain.ErrConnection, err)
	}

	st := &channelState{conn: conn, listeners: make(map[int]func(Delta))}
	cc.channels[roomID] = st
	go cc.dispatch(roomID, st)
	log.Info().Str("module", "core.channel").Str("room", string(roomID)).Msg("channel connected")
	return nil
}

// dispatch fans transport deltas out to listeners, one at a time, in
// transport order. It exits when the adapter closes the event feed.
func (cc *ChannelClient) dispatch(roomID domain.RoomID, st *channelState) {
	for d := range st.conn.Events() {
		for _, fn := range st.snapshotListeners() {
			fn(d)
		}
	}
	log.Debug().Str("module", "core.channel").Str("room", string(roomID)).Msg("delta feed closed")
}

// Publish announces or updates the local participant on the open channel.
func (cc *ChannelClient) Publish(ctx context.Context, roomID domain.RoomID, p domain.Participant) error {
	st := cc.state(roomID)
	if st == nil {
		return fmt.Errorf("publish %s: %w", roomID, domain.ErrNotConnected)
	}
	if err := st.conn.Track(ctx, PresenceKey(p.UserID), EncodeRecord(p)); err != nil {
		return fmt.Errorf("publish %s: %w: %w", roomID, domain.ErrConnection, err)
	}
	return nil
}

// Snapshot reconstructs the current membership from transport state. When
// the same user holds several raw records (multiple tabs), the most
// recently announced one wins. Not connected means an empty room.
func (cc *ChannelClient) Snapshot(ctx context.Context, roomID domain.RoomID) ([]domain.Participant, error) {
	st := cc.state(roomID)
	if st == nil {
		return nil, nil
	}
	recs, err := st.conn.State(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w: %w", roomID, domain.ErrConnection, err)
	}

	latest := make(map[string]domain.Participant, len(recs))
	for _, rec := range recs {
		p := DecodeRecord(rec)
		if prev, ok := latest[rec.UserID]; ok && prev.JoinedAt.After(p.JoinedAt) {
			continue
		}
		latest[rec.UserID] = p
	}

	out := make([]domain.Participant, 0, len(latest))
	for _, p := range latest {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

// OnDelta registers fn for every future delta on the room, connecting first
// if needed. Each delta reaches every active listener exactly once. The
// returned func removes the listener; the connection itself stays up until
// Disconnect.
func (cc *ChannelClient) OnDelta(ctx context.Context, roomID domain.RoomID, fn func(Delta)) (func(), error) {
	if err := cc.Connect(ctx, roomID); err != nil {
		return nil, err
	}
	st := cc.state(roomID)
	if st == nil {
		// Disconnect raced the registration; treat as a plain failure.
		return nil, fmt.Errorf("subscribe %s: %w", roomID, domain.ErrNotConnected)
	}
	id := st.addListener(fn)
	return func() { st.removeListener(id) }, nil
}

// Disconnect untracks and tears the connection down. Idempotent and
// best-effort: cleanup must never block or fail an exit path, so transport
// errors are logged and swallowed.
func (cc *ChannelClient) Disconnect(roomID domain.RoomID) {
	cc.mu.Lock()
	st, ok := cc.channels[roomID]
	delete(cc.channels, roomID)
	cc.mu.Unlock()
	if !ok {
		return
	}

	ctx := context.Background()
	if err := st.conn.Untrack(ctx); err != nil {
		log.Warn().Err(err).Str("module", "core.channel").Str("room", string(roomID)).Msg("untrack failed")
	}
	if err := st.conn.Close(); err != nil {
		log.Warn().Err(err).Str("module", "core.channel").Str("room", string(roomID)).Msg("unsubscribe failed")
	}
	log.Info().Str("module", "core.channel").Str("room", string(roomID)).Msg("channel disconnected")
}

// Connected reports whether a room channel is currently open.
func (cc *ChannelClient) Connected(roomID domain.RoomID) bool {
	return cc.state(roomID) != nil
}

// Idle reports whether the client holds no open channel at all.
func (cc *ChannelClient) Idle() bool {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return len(cc.channels) == 0
}

func (cc *ChannelClient) state(roomID domain.RoomID) *channelState {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.channels[roomID]
}
