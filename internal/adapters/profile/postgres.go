package profile

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mgrn/tamari/internal/domain"
)

// profileRow mirrors the profiles table the identity provider sync writes.
type profileRow struct {
	ID          string `gorm:"primaryKey"`
	DisplayName string
	AvatarType  string
	Email       string
	UpdatedAt   time.Time
}

func (profileRow) TableName() string { return "profiles" }

// PostgresSource is the read path for registered (google) users.
type PostgresSource struct {
	db *gorm.DB
}

func NewPostgresSource(db *gorm.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) Lookup(ctx context.Context, id domain.UserID) (Record, error) {
	var row profileRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", string(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return Record{
		UserID:      domain.UserID(row.ID),
		DisplayName: row.DisplayName,
		Avatar:      domain.ParseAvatar(row.AvatarType),
		Provider:    domain.ProviderGoogle,
		Email:       row.Email,
	}, nil
}
