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

// SessionStorage implements the SessionStorage interface for Badger
type SessionStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSessionStorage creates a new SessionStorage instance
func NewSessionStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SessionStorage {
	return &SessionStorage{
		db:     db,
		logger: logger,
	}
}

// Save upserts the persisted cookie set for a user. One row per user.
func (s *SessionStorage) Save(ctx context.Context, session *models.PortalSession) error {
	if session.UserID == "" {
		return fmt.Errorf("session user ID is required")
	}

	now := time.Now().Unix()
	if session.CapturedAt == 0 {
		session.CapturedAt = now
	}
	if session.CreatedAt == 0 {
		var existing models.PortalSession
		if err := s.db.Store().Get(session.UserID, &existing); err == nil {
			session.CreatedAt = existing.CreatedAt
		} else {
			session.CreatedAt = now
		}
	}
	session.UpdatedAt = now

	if err := s.db.Store().Upsert(session.UserID, session); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	s.logger.Debug().
		Str("user_id", session.UserID).
		Int("cookies", len(session.Cookies)).
		Msg("Portal session persisted")
	return nil
}

// Load returns the persisted cookie set for a user. A record whose capture
// time is older than maxAge reports ErrNotFound even though the row exists,
// forcing the caller into validity probing or a fresh login.
func (s *SessionStorage) Load(ctx context.Context, userID string, maxAge time.Duration) (*models.PortalSession, error) {
	var session models.PortalSession
	if err := s.db.Store().Get(userID, &session); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if maxAge > 0 {
		capturedAt := time.Unix(session.CapturedAt, 0)
		if time.Since(capturedAt) > maxAge {
			s.logger.Debug().
				Str("user_id", userID).
				Str("captured_at", capturedAt.Format(time.RFC3339)).
				Msg("Persisted session older than staleness window, treating as absent")
			return nil, interfaces.ErrNotFound
		}
	}

	return &session, nil
}

// Delete removes a user's persisted session.
func (s *SessionStorage) Delete(ctx context.Context, userID string) error {
	if err := s.db.Store().Delete(userID, &models.PortalSession{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}
	s.logger.Debug().Str("user_id", userID).Msg("Portal session deleted")
	return nil
}
