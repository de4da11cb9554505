// Package presence provides the transport implementations behind the
// channel client: an in-process one for single-node mode and tests, and a
// Redis-backed one for running several nodes against a shared medium.
package presence

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mgrn/tamari/internal/core"
)

var errConnClosed = errors.New("presence connection closed")

// eventBuffer is the per-connection delta queue size. A subscriber that
// falls this far behind starts losing deltas instead of blocking writers.
const eventBuffer = 32

// MemoryTransport keeps presence state in process memory. Records live
// exactly as long as the connection that tracked them, which matches the
// transport-ephemeral design: nothing survives a restart.
type MemoryTransport struct {
	mu       sync.Mutex
	channels map[string]*memoryChannel
}

type memoryChannel struct {
	records map[string]core.PresenceRecord
	conns   map[*memoryConn]struct{}
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{channels: make(map[string]*memoryChannel)}
}

func (t *MemoryTransport) Subscribe(ctx context.Context, channel string) (core.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.channels[channel]
	if !ok {
		ch = &memoryChannel{
			records: make(map[string]core.PresenceRecord),
			conns:   make(map[*memoryConn]struct{}),
		}
		t.channels[channel] = ch
	}
	conn := &memoryConn{
		t:       t,
		channel: channel,
		events:  make(chan core.Delta, eventBuffer),
	}
	ch.conns[conn] = struct{}{}
	return conn, nil
}

// broadcast delivers d to every subscriber of the channel, the local one
// included (the transport echoes self-originated deltas back).
// Caller holds t.mu.
func (t *MemoryTransport) broadcast(ch *memoryChannel, d core.Delta) {
	for conn := range ch.conns {
		select {
		case conn.events <- d:
		default:
			log.Warn().Str("module", "presence.memory").Str("user", d.Record.UserID).Msg("slow subscriber, delta dropped")
		}
	}
}

type memoryConn struct {
	t       *MemoryTransport
	channel string
	events  chan core.Delta

	closed     bool
	trackedKey string
}

func (c *memoryConn) Track(ctx context.Context, key string, rec core.PresenceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	ch := c.t.channels[c.channel]
	ch.records[key] = rec
	c.trackedKey = key
	c.t.broadcast(ch, core.Delta{Kind: core.DeltaJoin, Record: rec})
	return nil
}

func (c *memoryConn) Untrack(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	c.untrackLocked()
	return nil
}

// untrackLocked withdraws the tracked record and emits the leave delta.
// Caller holds t.mu.
func (c *memoryConn) untrackLocked() {
	if c.trackedKey == "" {
		return
	}
	ch := c.t.channels[c.channel]
	rec, ok := ch.records[c.trackedKey]
	delete(ch.records, c.trackedKey)
	c.trackedKey = ""
	if ok {
		c.t.broadcast(ch, core.Delta{Kind: core.DeltaLeave, Record: rec})
	}
}

func (c *memoryConn) State(ctx context.Context) ([]core.PresenceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	if c.closed {
		return nil, errConnClosed
	}
	ch := c.t.channels[c.channel]
	out := make([]core.PresenceRecord, 0, len(ch.records))
	for _, rec := range ch.records {
		out = append(out, rec)
	}
	return out, nil
}

func (c *memoryConn) Events() <-chan core.Delta {
	return c.events
}

// Close drops the subscription. A record still tracked at close time is
// withdrawn as if the participant had left, which is how the transport
// detects disconnects.
func (c *memoryConn) Close() error {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.untrackLocked()
	ch := c.t.channels[c.channel]
	delete(ch.conns, c)
	if len(ch.conns) == 0 {
		delete(c.t.channels, c.channel)
	}
	close(c.events)
	return nil
}
