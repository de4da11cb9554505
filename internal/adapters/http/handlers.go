package http

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/mgrn/tamari/internal/adapters/profile"
	"github.com/mgrn/tamari/internal/config"
	"github.com/mgrn/tamari/internal/core"
	"github.com/mgrn/tamari/internal/domain"
)

// Controller serves the room API. Each (browser, user) pair gets its own
// coordinator over its own channel client, mirroring how every client of
// the presence medium owns its connection; the shared transport is what
// makes them see one room. Keying by the client token alone is not enough:
// a transport connection tracks a single record, so two users sharing one
// browser cookie would overwrite each other's presence. The observer
// coordinator serves read-only queries for callers that have not joined.
type Controller struct {
	cfg       *config.Config
	registry  *core.Registry
	transport core.Transport
	observer  *core.Coordinator
	guests    *profile.GuestStore
	profiles  profile.Sources

	mu       sync.Mutex
	sessions map[sessionKey]*core.Coordinator
}

type sessionKey struct {
	token string
	user  domain.UserID
}

func NewController(
	cfg *config.Config,
	registry *core.Registry,
	transport core.Transport,
	observer *core.Coordinator,
	guests *profile.GuestStore,
	profiles profile.Sources,
) *Controller {
	return &Controller{
		cfg:       cfg,
		registry:  registry,
		transport: transport,
		observer:  observer,
		guests:    guests,
		profiles:  profiles,
		sessions:  make(map[sessionKey]*core.Coordinator),
	}
}

// coordinatorFor returns the coordinator for this browser and user,
// creating it on first use.
func (ctl *Controller) coordinatorFor(key sessionKey) *core.Coordinator {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	coord, ok := ctl.sessions[key]
	if !ok {
		coord = core.NewCoordinator(ctl.registry, core.NewChannelClient(ctl.transport, ctl.cfg.ConnectTimeout))
		ctl.sessions[key] = coord
	}
	return coord
}

// releaseIfIdle drops the session entry once its coordinator holds no open
// channel, so the table does not accumulate one entry per browser cookie
// forever. A concurrent Join on the same key simply mints a fresh
// coordinator afterwards.
func (ctl *Controller) releaseIfIdle(key sessionKey, coord *core.Coordinator) {
	if !coord.Idle() {
		return
	}
	ctl.mu.Lock()
	if ctl.sessions[key] == coord {
		delete(ctl.sessions, key)
	}
	ctl.mu.Unlock()
}

// SessionCount reports how many per-session coordinators are live.
func (ctl *Controller) SessionCount() int {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return len(ctl.sessions)
}

type roomInfoResponse struct {
	ID          domain.RoomID    `json:"id"`
	Name        domain.RoomName  `json:"name"`
	Description string           `json:"description,omitempty"`
	Occupancy   domain.Occupancy `json:"occupancy"`
}

// RoomInfo returns the room definition plus live occupancy.
func (ctl *Controller) RoomInfo(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))
	room, err := ctl.registry.Get(roomID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room_not_found"})
		return
	}
	occ, _ := ctl.observer.Occupancy(c.Request.Context(), roomID)
	c.JSON(http.StatusOK, roomInfoResponse{
		ID:          room.ID,
		Name:        room.Name,
		Description: room.Description,
		Occupancy:   occ,
	})
}

// Join admits the authenticated participant. Admission rejections come back
// as distinct statuses: already-in-room is success-equivalent, a full room
// is a plain conflict with no retry hint, transport trouble is retryable.
func (ctl *Controller) Join(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))
	p := participantFrom(c)
	key := sessionKey{token: c.GetString(ctxClientToken), user: p.UserID}
	coord := ctl.coordinatorFor(key)

	err := coord.Join(c.Request.Context(), roomID, p)
	if err != nil {
		ctl.releaseIfIdle(key, coord)
	}
	switch {
	case err == nil:
		occ, _ := ctl.observer.Occupancy(c.Request.Context(), roomID)
		c.JSON(http.StatusOK, gin.H{"status": "joined", "occupancy": occ})
	case errors.Is(err, domain.ErrAlreadyInRoom):
		c.JSON(http.StatusOK, gin.H{"status": "already_in_room"})
	case errors.Is(err, domain.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "room_not_found"})
	case errors.Is(err, domain.ErrRoomFull):
		c.JSON(http.StatusConflict, gin.H{"error": "room_full", "message": err.Error()})
	case errors.Is(err, domain.ErrConnection):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "connection_failed", "retryable": true})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "join_failed"})
	}
}

// Leave always succeeds from the caller's point of view.
func (ctl *Controller) Leave(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))
	p := participantFrom(c)
	key := sessionKey{token: c.GetString(ctxClientToken), user: p.UserID}
	coord := ctl.coordinatorFor(key)

	coord.Leave(roomID, p.UserID)
	ctl.releaseIfIdle(key, coord)
	c.JSON(http.StatusOK, gin.H{"status": "left"})
}

// Members lists the current room membership.
func (ctl *Controller) Members(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))
	if _, err := ctl.registry.Get(roomID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room_not_found"})
		return
	}
	members := ctl.observer.Members(c.Request.Context(), roomID)
	if members == nil {
		members = []domain.Participant{}
	}
	c.JSON(http.StatusOK, gin.H{"members": members, "count": len(members)})
}
