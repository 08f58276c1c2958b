package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/aryandika/campusgate/internal/interfaces"
	"github.com/aryandika/campusgate/internal/models"
)

// ScheduleStorage implements the ScheduleStorage interface for Badger
type ScheduleStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewScheduleStorage creates a new ScheduleStorage instance
func NewScheduleStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ScheduleStorage {
	return &ScheduleStorage{
		db:     db,
		logger: logger,
	}
}

// Save upserts the latest scraped schedule for a user.
func (s *ScheduleStorage) Save(ctx context.Context, schedule *models.Schedule) error {
	if schedule.UserID == "" {
		return fmt.Errorf("schedule user ID is required")
	}
	if schedule.ScrapedAt == 0 {
		schedule.ScrapedAt = time.Now().Unix()
	}

	if err := s.db.Store().Upsert(schedule.UserID, schedule); err != nil {
		return fmt.Errorf("failed to store schedule: %w", err)
	}
	return nil
}

// Get returns the latest stored schedule for a user.
func (s *ScheduleStorage) Get(ctx context.Context, userID string) (*models.Schedule, error) {
	var schedule models.Schedule
	if err := s.db.Store().Get(userID, &schedule); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return &schedule, nil
}
