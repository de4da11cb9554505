package presence

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mgrn/tamari/internal/core"
)

// RedisTransport backs presence with a shared Redis: the membership of a
// channel is a hash (field = presence key, value = record JSON) and deltas
// travel over pub/sub on "<channel>:events". Several service nodes can
// point at the same Redis and observe one membership.
//
// A node that dies without untracking leaves its hash field behind until
// the user retries; presence in Redis is best-effort by the same rule as
// everywhere else in this design.
type RedisTransport struct {
	rdb *redis.Client
}

func NewRedisTransport(rdb *redis.Client) *RedisTransport {
	return &RedisTransport{rdb: rdb}
}

func (t *RedisTransport) Subscribe(ctx context.Context, channel string) (core.Conn, error) {
	pubsub := t.rdb.Subscribe(ctx, channel+":events")
	// Receive blocks until the server confirms the subscription, so the
	// caller's deadline is what bounds the connect.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}
	conn := &redisConn{
		rdb:    t.rdb,
		key:    channel,
		topic:  channel + ":events",
		pubsub: pubsub,
		events: make(chan core.Delta, eventBuffer),
	}
	go conn.listen()
	return conn, nil
}

type redisConn struct {
	rdb    *redis.Client
	key    string
	topic  string
	pubsub *redis.PubSub
	events chan core.Delta

	mu         sync.Mutex
	trackedKey string
	closeOnce  sync.Once
}

// listen decodes published deltas and feeds the event channel until the
// pub/sub subscription is closed.
func (c *redisConn) listen() {
	for msg := range c.pubsub.Channel() {
		var d core.Delta
		if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
			log.Error().Err(err).Str("module", "presence.redis").Str("topic", c.topic).Msg("bad delta payload")
			continue
		}
		select {
		case c.events <- d:
		default:
			log.Warn().Str("module", "presence.redis").Str("user", d.Record.UserID).Msg("slow subscriber, delta dropped")
		}
	}
	close(c.events)
}

func (c *redisConn) Track(ctx context.Context, key string, rec core.PresenceRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := c.rdb.HSet(ctx, c.key, key, payload).Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.trackedKey = key
	c.mu.Unlock()

	return c.publish(ctx, core.Delta{Kind: core.DeltaJoin, Record: rec})
}

func (c *redisConn) Untrack(ctx context.Context) error {
	c.mu.Lock()
	key := c.trackedKey
	c.trackedKey = ""
	c.mu.Unlock()
	if key == "" {
		return nil
	}

	raw, err := c.rdb.HGet(ctx, c.key, key).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	if err := c.rdb.HDel(ctx, c.key, key).Err(); err != nil {
		return err
	}
	if raw == "" {
		return nil
	}
	var rec core.PresenceRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		log.Error().Err(err).Str("module", "presence.redis").Str("key", key).Msg("bad stored record")
		return nil
	}
	return c.publish(ctx, core.Delta{Kind: core.DeltaLeave, Record: rec})
}

func (c *redisConn) State(ctx context.Context) ([]core.PresenceRecord, error) {
	raw, err := c.rdb.HGetAll(ctx, c.key).Result()
	if err != nil {
		return nil, err
	}
	out := make([]core.PresenceRecord, 0, len(raw))
	for field, value := range raw {
		var rec core.PresenceRecord
		if err := json.Unmarshal([]byte(value), &rec); err != nil {
			log.Error().Err(err).Str("module", "presence.redis").Str("key", field).Msg("bad stored record, skipped")
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (c *redisConn) publish(ctx context.Context, d core.Delta) error {
	buf, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return c.rdb.Publish(ctx, c.topic, buf).Err()
}

func (c *redisConn) Events() <-chan core.Delta {
	return c.events
}

func (c *redisConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.pubsub.Close()
	})
	return err
}
