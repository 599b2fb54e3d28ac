package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/buildmart/storefront/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLKV stores collections in the state_entries table.
type SQLKV struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSQLKV migrates the state_entries table and returns the backend.
func NewSQLKV(ctx context.Context, db *gorm.DB) (*SQLKV, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm connection required")
	}
	if err := db.WithContext(ctx).AutoMigrate(&models.StateEntry{}); err != nil {
		return nil, fmt.Errorf("migrate state_entries: %w", err)
	}
	return &SQLKV{db: db, now: time.Now}, nil
}

func (s *SQLKV) Get(ctx context.Context, sessionID, name string) ([]byte, error) {
	var row models.StateEntry
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND name = ?", sessionID, name).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return []byte(row.Payload), nil
}

func (s *SQLKV) Set(ctx context.Context, sessionID, name string, value []byte) error {
	row := models.StateEntry{
		SessionID: sessionID,
		Name:      name,
		Payload:   string(value),
		UpdatedAt: s.now().UTC(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&row).Error
}

func (s *SQLKV) Del(ctx context.Context, sessionID, name string) error {
	return s.db.WithContext(ctx).
		Where("session_id = ? AND name = ?", sessionID, name).
		Delete(&models.StateEntry{}).Error
}

// Prune removes entries untouched since before cutoff.
func (s *SQLKV) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("updated_at < ?", cutoff.UTC()).
		Delete(&models.StateEntry{})
	return res.RowsAffected, res.Error
}

func (s *SQLKV) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
