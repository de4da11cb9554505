// Package ws streams normalized presence events to browsers over a
// websocket, read-only: clients never write to the transport through it.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mgrn/tamari/internal/core"
	"github.com/mgrn/tamari/internal/domain"
)

var errBackpressure = errors.New("backpressure")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	defaultReadLimit  = 32768
	defaultPingPeriod = 54 * time.Second
	writeWait         = 5 * time.Second
)

type EventsController struct {
	Coord *core.Coordinator
	Log   *core.EventLog

	readLimit  int64
	pingPeriod time.Duration
}

func NewEventsController(coord *core.Coordinator, eventLog *core.EventLog, readLimit int64, pingPeriod time.Duration) *EventsController {
	if readLimit <= 0 {
		readLimit = defaultReadLimit
	}
	if pingPeriod <= 0 {
		pingPeriod = defaultPingPeriod
	}
	return &EventsController{Coord: coord, Log: eventLog, readLimit: readLimit, pingPeriod: pingPeriod}
}

type eventsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *eventsConn) TrySend(buf []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- buf:
	default:
		return errBackpressure
	}
	return nil
}

func (c *eventsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

type eventFrame struct {
	Type   string                 `json:"type"`
	Event  *domain.PresenceEvent  `json:"event,omitempty"`
	Events []domain.PresenceEvent `json:"events,omitempty"`
}

// Handle upgrades the request and relays the recent event log followed by
// live deltas until the client goes away.
func (ctl *EventsController) Handle(ctx context.Context, c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))
	log.Info().Str("module", "adapters.ws").Str("room", string(roomID)).Msg("new events subscriber")

	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws").Msg("ws upgrade")
		return
	}

	conn := &eventsConn{
		conn: sock,
		send: make(chan []byte, 32),
	}
	ctx, cancel := context.WithCancel(ctx)

	pongWait := ctl.pingPeriod * 10 / 9
	sock.SetReadLimit(ctl.readLimit)
	_ = sock.SetReadDeadline(time.Now().Add(pongWait))
	sock.SetPongHandler(func(string) error {
		return sock.SetReadDeadline(time.Now().Add(pongWait))
	})
	// Unblocks the read loop on server shutdown: ReadMessage only returns
	// once the socket is gone.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	if buf, err := json.Marshal(eventFrame{Type: "recent_events", Events: ctl.Log.Recent()}); err == nil {
		_ = conn.TrySend(buf)
	}

	unsubscribe, err := ctl.Coord.SubscribeDeltas(ctx, roomID, func(e domain.PresenceEvent) {
		buf, err := json.Marshal(eventFrame{Type: "presence_event", Event: &e})
		if err != nil {
			return
		}
		if err := conn.TrySend(buf); err != nil {
			log.Warn().Err(err).Str("module", "adapters.ws").Str("room", string(roomID)).Msg("event dropped")
		}
	})
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws").Str("room", string(roomID)).Msg("subscribe failed")
		conn.Close()
		cancel()
		return
	}

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, unsubscribe, conn)
}

func (ctl *EventsController) writePump(ctx context.Context, c *eventsConn) {
	ticker := time.NewTicker(ctl.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case buf, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, buf); err != nil {
				log.Debug().Err(err).Str("module", "adapters.ws").Msg("write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "adapters.ws").Msg("ping error")
				return
			}
		}
	}
}

// readPump only watches for the client closing; inbound frames are
// discarded.
func (ctl *EventsController) readPump(ctx context.Context, cancel context.CancelFunc, unsubscribe func(), c *eventsConn) {
	defer func() {
		unsubscribe()
		cancel()
		c.Close()
		log.Info().Str("module", "adapters.ws").Msg("events subscriber gone")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if _, _, err := c.conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}
