package core

import "github.com/mgrn/tamari/internal/domain"

// Registry resolves room definitions. Rooms are statically defined at
// process start, so no locking is needed after construction.
type Registry struct {
	rooms map[domain.RoomID]domain.Room
}

// NewRegistry builds a registry from the given rooms; with none given it
// serves the single fixed main room.
func NewRegistry(rooms ...domain.Room) *Registry {
	if len(rooms) == 0 {
		rooms = []domain.Room{domain.MainRoom(0)}
	}
	byID := make(map[domain.RoomID]domain.Room, len(rooms))
	for _, r := range rooms {
		byID[r.ID] = r
	}
	return &Registry{rooms: byID}
}

// Rooms lists every registered room.
func (r *Registry) Rooms() []domain.Room {
	out := make([]domain.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room)
	}
	return out
}

func (r *Registry) Get(id domain.RoomID) (domain.Room, error) {
	room, ok := r.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return room, nil
}
