package ws_test

import (
	"context"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgrn/tamari/internal/adapters/presence"
	"github.com/mgrn/tamari/internal/adapters/ws"
	"github.com/mgrn/tamari/internal/core"
	"github.com/mgrn/tamari/internal/domain"
)

type eventsStack struct {
	registry  *core.Registry
	transport core.Transport
	srv       *httptest.Server
	cancel    context.CancelFunc
}

func newEventsStack(t *testing.T) *eventsStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	transport := presence.NewMemoryTransport()
	registry := core.NewRegistry(domain.MainRoom(5))
	observer := core.NewCoordinator(registry, core.NewChannelClient(transport, time.Second))
	ctl := ws.NewEventsController(observer, core.NewEventLog(10), 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	r := gin.New()
	r.GET("/api/rooms/:id/events", func(c *gin.Context) {
		ctl.Handle(ctx, c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	t.Cleanup(cancel)

	return &eventsStack{registry: registry, transport: transport, srv: srv, cancel: cancel}
}

func (s *eventsStack) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/api/rooms/main-room/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type frame struct {
	Type  string               `json:"type"`
	Event *domain.PresenceEvent `json:"event"`
}

func TestEventsStream_RecentThenLive(t *testing.T) {
	s := newEventsStack(t)
	conn := s.dial(t)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "recent_events", f.Type)

	joiner := core.NewCoordinator(s.registry, core.NewChannelClient(s.transport, time.Second))
	p, err := domain.NewGuestParticipant("u1", "alice", domain.AvatarBlue)
	require.NoError(t, err)
	require.NoError(t, joiner.Join(context.Background(), domain.MainRoomID, p))

	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "presence_event", f.Type)
	require.NotNil(t, f.Event)
	assert.Equal(t, domain.EventJoin, f.Event.Type)
	assert.Equal(t, domain.UserID("u1"), f.Event.UserID)
}

// Shutdown must reach a client that sends nothing: the read loop sits in a
// blocking read and only a closed socket gets it out.
func TestEventsStream_ShutdownClosesIdleClient(t *testing.T) {
	s := newEventsStack(t)
	conn := s.dial(t)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	require.Equal(t, "recent_events", f.Type)

	s.cancel()

	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.False(t, os.IsTimeout(err), "read should end by close, not deadline")
}
