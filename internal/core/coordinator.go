package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mgrn/tamari/internal/domain"
)

// JoinState is the local lifecycle of one (user, room) pair.
// NotJoined → Joining → Joined → Leaving → NotJoined; nothing else.
type JoinState int

const (
	StateNotJoined JoinState = iota
	StateJoining
	StateJoined
	StateLeaving
)

func (s JoinState) String() string {
	switch s {
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateLeaving:
		return "leaving"
	default:
		return "not_joined"
	}
}

type stateKey struct {
	room domain.RoomID
	user domain.UserID
}

// Coordinator owns the join/leave decision. Capacity is checked against a
// snapshot that can be stale by the time the announce lands; two
// participants racing for the last slot may both get in. That window is
// accepted: resolving it would need a server-side arbiter this
// architecture does not have, and a transient overshoot self-corrects when
// someone leaves.
type Coordinator struct {
	registry *Registry
	channel  *ChannelClient

	mu     sync.Mutex
	states map[stateKey]JoinState
}

func NewCoordinator(registry *Registry, channel *ChannelClient) *Coordinator {
	return &Coordinator{
		registry: registry,
		channel:  channel,
		states:   make(map[stateKey]JoinState),
	}
}

// Join admits p into the room or reports why not. Admission control runs
// strictly before the transport write so a full room is never announced
// into. A second Join while Joining or Joined does not re-enter: it
// reports ErrAlreadyInRoom, which callers treat as success.
func (c *Coordinator) Join(ctx context.Context, roomID domain.RoomID, p domain.Participant) error {
	room, err := c.registry.Get(roomID)
	if err != nil {
		return err
	}

	key := stateKey{room: roomID, user: p.UserID}
	c.mu.Lock()
	switch c.states[key] {
	case StateJoining, StateJoined:
		c.mu.Unlock()
		return domain.ErrAlreadyInRoom
	}
	c.states[key] = StateJoining
	c.mu.Unlock()

	fail := func(err error) error {
		c.setState(key, StateNotJoined)
		return err
	}

	if err := c.channel.Connect(ctx, roomID); err != nil {
		return fail(err)
	}

	members, err := c.channel.Snapshot(ctx, roomID)
	if err != nil {
		return fail(err)
	}
	if !room.CanAccommodate(len(members)) {
		return fail(fmt.Errorf("%w (%d/%d)", domain.ErrRoomFull, len(members), room.MaxOccupants))
	}
	if IsParticipant(members, p.UserID) {
		return fail(domain.ErrAlreadyInRoom)
	}

	p.JoinedAt = time.Now().UTC()

	// The announce must run to completion even if the caller goes away
	// mid-join; cancellation is settled only after the write lands.
	if err := c.channel.Publish(context.WithoutCancel(ctx), roomID, p); err != nil {
		return fail(err)
	}
	if ctx.Err() != nil {
		// Caller cancelled while the announce was in flight: withdraw it
		// rather than leave a half-tracked record behind.
		c.channel.Disconnect(roomID)
		return fail(ctx.Err())
	}

	c.setState(key, StateJoined)
	log.Info().Str("module", "core.coordinator").Str("room", string(roomID)).Str("user", string(p.UserID)).Msg("joined")
	return nil
}

// Leave withdraws the local presence and releases the connection. It is
// fire-and-forget: once invoked the caller has left, whatever the
// transport thinks about it.
func (c *Coordinator) Leave(roomID domain.RoomID, userID domain.UserID) {
	key := stateKey{room: roomID, user: userID}
	c.setState(key, StateLeaving)
	c.channel.Disconnect(roomID)
	c.setState(key, StateNotJoined)
	log.Info().Str("module", "core.coordinator").Str("room", string(roomID)).Str("user", string(userID)).Msg("left")
}

// Members returns the current membership, empty when not connected or when
// the transport read fails.
func (c *Coordinator) Members(ctx context.Context, roomID domain.RoomID) []domain.Participant {
	members, err := c.channel.Snapshot(ctx, roomID)
	if err != nil {
		log.Warn().Err(err).Str("module", "core.coordinator").Str("room", string(roomID)).Msg("snapshot failed")
		return nil
	}
	return members
}

// Occupancy resolves the room and computes its usage from the live count.
func (c *Coordinator) Occupancy(ctx context.Context, roomID domain.RoomID) (domain.Occupancy, error) {
	room, err := c.registry.Get(roomID)
	if err != nil {
		return domain.Occupancy{}, err
	}
	return room.Occupancy(len(c.Members(ctx, roomID))), nil
}

// SubscribeDeltas forwards normalized presence events to fn, stamped with
// the wall clock at observation time. The returned func unsubscribes.
func (c *Coordinator) SubscribeDeltas(ctx context.Context, roomID domain.RoomID, fn func(domain.PresenceEvent)) (func(), error) {
	return c.channel.OnDelta(ctx, roomID, func(d Delta) {
		typ := domain.EventJoin
		if d.Kind == DeltaLeave {
			typ = domain.EventLeave
		}
		p := DecodeRecord(d.Record)
		fn(domain.PresenceEvent{
			Type:        typ,
			RoomID:      roomID,
			UserID:      p.UserID,
			Participant: p,
			Timestamp:   time.Now().UTC(),
		})
	})
}

// Idle reports whether the coordinator holds no open channel, meaning it
// carries no presence and can be discarded.
func (c *Coordinator) Idle() bool {
	return c.channel.Idle()
}

// State reports the local lifecycle of a (user, room) pair.
func (c *Coordinator) State(roomID domain.RoomID, userID domain.UserID) JoinState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[stateKey{room: roomID, user: userID}]
}

func (c *Coordinator) setState(key stateKey, s JoinState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s == StateNotJoined {
		delete(c.states, key)
		return
	}
	c.states[key] = s
}
