package domain

type (
	RoomID   string
	RoomName string
)

// MainRoomID is the single fixed room served in the current scope.
const MainRoomID RoomID = "main-room"

const DefaultMaxOccupants = 5

type Room struct {
	ID           RoomID
	Name         RoomName
	MaxOccupants int // invariant: > 0
	Description  string
}

// MainRoom returns the static room definition. maxOccupants <= 0 falls back
// to the default so a misconfigured cap can never disable admission.
func MainRoom(maxOccupants int) Room {
	if maxOccupants <= 0 {
		maxOccupants = DefaultMaxOccupants
	}
	return Room{
		ID:           MainRoomID,
		Name:         "Main Room",
		MaxOccupants: maxOccupants,
		Description:  "The shared room where everyone hangs out",
	}
}

// Occupancy is a read-only view of how full a room is.
type Occupancy struct {
	Current    int  `json:"current"`
	Max        int  `json:"max"`
	IsFull     bool `json:"is_full"`
	Percentage int  `json:"percentage"`
}

// CanAccommodate reports whether one more participant fits.
func (r Room) CanAccommodate(current int) bool {
	return current < r.MaxOccupants
}

// Occupancy computes the usage status for the given member count.
func (r Room) Occupancy(current int) Occupancy {
	pct := 0
	if r.MaxOccupants > 0 {
		pct = int(float64(current)/float64(r.MaxOccupants)*100 + 0.5)
	}
	return Occupancy{
		Current:    current,
		Max:        r.MaxOccupants,
		IsFull:     current >= r.MaxOccupants,
		Percentage: pct,
	}
}
