package profile

import (
	"context"
	"sync"

	"github.com/mgrn/tamari/internal/domain"
)

// GuestStore holds guest profiles for the lifetime of the process. Guests
// are presence-only identities; losing them on restart is by the same rule
// as losing presence itself.
type GuestStore struct {
	mu   sync.RWMutex
	byID map[domain.UserID]Record
}

func NewGuestStore() *GuestStore {
	return &GuestStore{byID: make(map[domain.UserID]Record)}
}

func (s *GuestStore) Put(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Provider = domain.ProviderGuest
	s.byID[rec.UserID] = rec
}

func (s *GuestStore) Lookup(_ context.Context, id domain.UserID) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}
