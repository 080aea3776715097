package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	statePending = "pending"
	stateDone    = "done"

	defaultPendingTTL = 15 * time.Minute
)

// ProcessedEventModel is a GORM model for processed_events table
type ProcessedEventModel struct {
	EventID   string    `gorm:"primaryKey;size:128"`
	State     string    `gorm:"not null;size:16;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;index"`
}

func (ProcessedEventModel) TableName() string {
	return "processed_events"
}

// Store is a dedup store backed by PostgreSQL
type Store struct {
	db         *gorm.DB
	pendingTTL time.Duration
	now        func() time.Time
}

// NewStore creates a new PostgreSQL dedup store. A pending row older than
// pendingTTL (15 minutes when zero) is treated as abandoned.
func NewStore(db *gorm.DB, pendingTTL time.Duration) *Store {
	if pendingTTL <= 0 {
		pendingTTL = defaultPendingTTL
	}
	return &Store{db: db, pendingTTL: pendingTTL, now: time.Now}
}

// Has reports whether id was committed
func (s *Store) Has(ctx context.Context, id string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&ProcessedEventModel{}).
		Where("event_id = ? AND state = ?", id, stateDone).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check processed event: %w", err)
	}
	return count > 0, nil
}

// TryBegin inserts a pending row. A pending row older than the reservation
// timeout is taken over, since its holder is gone.
func (s *Store) TryBegin(ctx context.Context, id string) (bool, error) {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&ProcessedEventModel{EventID: id, State: statePending})
	if result.Error != nil {
		return false, fmt.Errorf("failed to reserve event: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return true, nil
	}

	result = s.db.WithContext(ctx).
		Model(&ProcessedEventModel{}).
		Where("event_id = ? AND state = ? AND updated_at < ?", id, statePending, s.now().Add(-s.pendingTTL)).
		Update("updated_at", s.now())
	if result.Error != nil {
		return false, fmt.Errorf("failed to take over stale reservation: %w", result.Error)
	}

	return result.RowsAffected == 1, nil
}

// Commit marks id processed. It is an upsert, so committing twice is a no-op.
func (s *Store) Commit(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"state", "updated_at"}),
		}).
		Create(&ProcessedEventModel{EventID: id, State: stateDone})
	if result.Error != nil {
		return fmt.Errorf("failed to commit event: %w", result.Error)
	}
	return nil
}

// Release deletes a pending reservation
func (s *Store) Release(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).
		Where("event_id = ? AND state = ?", id, statePending).
		Delete(&ProcessedEventModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to release event: %w", result.Error)
	}
	return nil
}

// Prune removes committed rows older than ttl and returns how many were deleted
func (s *Store) Prune(ctx context.Context, ttl time.Duration) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("state = ? AND updated_at < ?", stateDone, s.now().Add(-ttl)).
		Delete(&ProcessedEventModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune processed events: %w", result.Error)
	}
	return result.RowsAffected, nil
}
