package core_test

import (
	"context"
	"errors"
	"sync"

	"github.com/mgrn/tamari/internal/core"
	"github.com/mgrn/tamari/internal/domain"
)

// Test doubles for the transport boundary. The in-memory adapter is the
// production twin used by most tests; these wrappers inject the failure
// modes it cannot produce on its own.

// countingTransport counts Subscribe calls to observe connect idempotency.
type countingTransport struct {
	inner core.Transport

	mu         sync.Mutex
	subscribes int
}

func (t *countingTransport) Subscribe(ctx context.Context, channel string) (core.Conn, error) {
	t.mu.Lock()
	t.subscribes++
	t.mu.Unlock()
	return t.inner.Subscribe(ctx, channel)
}

func (t *countingTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subscribes
}

// stallingTransport never reaches the subscribed state; Subscribe returns
// only when the caller's deadline expires.
type stallingTransport struct{}

func (stallingTransport) Subscribe(ctx context.Context, _ string) (core.Conn, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// failTrackTransport subscribes fine but refuses every announce.
type failTrackTransport struct {
	inner core.Transport
}

var errTrackRefused = errors.New("track refused")

type failTrackConn struct {
	core.Conn
}

func (c failTrackConn) Track(context.Context, string, core.PresenceRecord) error {
	return errTrackRefused
}

func (t *failTrackTransport) Subscribe(ctx context.Context, channel string) (core.Conn, error) {
	conn, err := t.inner.Subscribe(ctx, channel)
	if err != nil {
		return nil, err
	}
	return failTrackConn{conn}, nil
}

// cancelOnTrackTransport fires cancel while the announce is in flight,
// simulating a caller that goes away mid-join.
type cancelOnTrackTransport struct {
	inner  core.Transport
	cancel context.CancelFunc
}

type cancelOnTrackConn struct {
	core.Conn
	cancel context.CancelFunc
}

func (c cancelOnTrackConn) Track(ctx context.Context, key string, rec core.PresenceRecord) error {
	c.cancel()
	return c.Conn.Track(ctx, key, rec)
}

func (t *cancelOnTrackTransport) Subscribe(ctx context.Context, channel string) (core.Conn, error) {
	conn, err := t.inner.Subscribe(ctx, channel)
	if err != nil {
		return nil, err
	}
	return cancelOnTrackConn{conn, t.cancel}, nil
}

// staticStateTransport serves a canned raw presence table.
type staticStateTransport struct {
	records []core.PresenceRecord
}

type staticStateConn struct {
	records []core.PresenceRecord
	events  chan core.Delta
}

func (t *staticStateTransport) Subscribe(context.Context, string) (core.Conn, error) {
	return &staticStateConn{records: t.records, events: make(chan core.Delta)}, nil
}

func (c *staticStateConn) Track(context.Context, string, core.PresenceRecord) error { return nil }
func (c *staticStateConn) Untrack(context.Context) error                            { return nil }
func (c *staticStateConn) State(context.Context) ([]core.PresenceRecord, error) {
	return c.records, nil
}
func (c *staticStateConn) Events() <-chan core.Delta { return c.events }
func (c *staticStateConn) Close() error {
	close(c.events)
	return nil
}

func guest(id, name string) domain.Participant {
	return domain.Participant{
		UserID:      domain.UserID(id),
		DisplayName: name,
		Avatar:      domain.AvatarBlue,
		Provider:    domain.ProviderGuest,
	}
}
