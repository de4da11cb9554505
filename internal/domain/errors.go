package domain

import "errors"

// Admission outcomes and transport failures surfaced by the presence core.
// Callers branch with errors.Is; ErrRoomFull and ErrAlreadyInRoom are
// expected business outcomes, not faults.
var (
	// ErrRoomNotFound means the room id is unknown; fatal to the attempt.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomFull means the occupancy cap is reached. Recoverable: the
	// caller may retry after someone leaves.
	ErrRoomFull = errors.New("room is full")

	// ErrAlreadyInRoom is an idempotent rejection. Callers should treat it
	// as success-equivalent.
	ErrAlreadyInRoom = errors.New("already in room")

	// ErrConnection wraps transport subscribe/track failures and timeouts.
	// Retry is an explicit caller decision; the core never retries.
	ErrConnection = errors.New("presence transport failure")

	// ErrNotConnected indicates a caller bug: publishing before the
	// channel reached its subscribed state.
	ErrNotConnected = errors.New("presence channel not connected")
)
