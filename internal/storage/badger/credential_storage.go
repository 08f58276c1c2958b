package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/aryandika/campusgate/internal/interfaces"
	"github.com/aryandika/campusgate/internal/models"
)

// CredentialStorage implements the CredentialStorage interface for Badger
type CredentialStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCredentialStorage creates a new CredentialStorage instance
func NewCredentialStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CredentialStorage {
	return &CredentialStorage{
		db:     db,
		logger: logger,
	}
}

// Upsert stores a credential keyed by user ID. A prior record for the same
// user is replaced, so a user never accumulates duplicate credential rows.
func (s *CredentialStorage) Upsert(ctx context.Context, cred *models.Credential) error {
	if cred.UserID == "" {
		return fmt.Errorf("credential user ID is required")
	}

	now := time.Now().Unix()
	if existing, err := s.GetByUserID(ctx, cred.UserID); err == nil {
		cred.ID = existing.ID
		cred.CreatedAt = existing.CreatedAt
	}
	if cred.ID == "" {
		cred.ID = "cred_" + uuid.New().String()
	}
	if cred.CreatedAt == 0 {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now

	if err := s.db.Store().Upsert(cred.UserID, cred); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}

	s.logger.Debug().Str("user_id", cred.UserID).Msg("Credential stored")
	return nil
}

// GetByUserID returns the active credential for a user.
func (s *CredentialStorage) GetByUserID(ctx context.Context, userID string) (*models.Credential, error) {
	var cred models.Credential
	if err := s.db.Store().Get(userID, &cred); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	if !cred.Active {
		return nil, interfaces.ErrNotFound
	}
	return &cred, nil
}

// Delete removes a user's credential.
func (s *CredentialStorage) Delete(ctx context.Context, userID string) error {
	if err := s.db.Store().Delete(userID, &models.Credential{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

// List returns all stored credentials.
func (s *CredentialStorage) List(ctx context.Context) ([]*models.Credential, error) {
	var creds []models.Credential
	if err := s.db.Store().Find(&creds, nil); err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}

	result := make([]*models.Credential, len(creds))
	for i := range creds {
		result[i] = &creds[i]
	}
	return result, nil
}
