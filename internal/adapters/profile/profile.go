// Package profile resolves display identity (name, avatar) for a user id.
// Registered users are read from durable storage kept in sync by the
// identity provider; guests exist only in memory for their session. The
// two paths stay independent behind one interface — there is no unified
// persisted avatar entity.
package profile

import (
	"context"
	"errors"

	"github.com/mgrn/tamari/internal/domain"
)

var ErrNotFound = errors.New("profile not found")

type Record struct {
	UserID      domain.UserID
	DisplayName string
	Avatar      domain.Avatar
	Provider    domain.Provider
	Email       string
}

// Source is one read path for profiles.
type Source interface {
	Lookup(ctx context.Context, id domain.UserID) (Record, error)
}

// Sources routes lookups by provider. A nil path answers not-found, so a
// deployment without Postgres simply has no registered users.
type Sources struct {
	Guest  Source
	Google Source
}

func (s Sources) Lookup(ctx context.Context, provider domain.Provider, id domain.UserID) (Record, error) {
	var src Source
	switch provider {
	case domain.ProviderGoogle:
		src = s.Google
	case domain.ProviderGuest:
		src = s.Guest
	}
	if src == nil {
		return Record{}, ErrNotFound
	}
	return src.Lookup(ctx, id)
}
