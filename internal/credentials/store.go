// Package credentials resolves a user's portal login identity and secret.
package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/aryandika/campusgate/internal/crypto"
	"github.com/aryandika/campusgate/internal/interfaces"
	"github.com/aryandika/campusgate/internal/models"
)

// ErrNotLinked is returned when no active credential exists for a user.
// Surfaced to callers as "portal account not linked"; never retryable.
var ErrNotLinked = errors.New("portal account not linked")

// Store reads per-user portal credentials and decrypts the secret on demand.
// Credentials are seeded by an administrative step and read-only to the
// session manager.
type Store struct {
	storage interfaces.CredentialStorage
	cipher  *crypto.Cipher
	logger  arbor.ILogger
}

// NewStore creates a credential store backed by the given storage and cipher.
func NewStore(storage interfaces.CredentialStorage, cipher *crypto.Cipher, logger arbor.ILogger) *Store {
	return &Store{
		storage: storage,
		cipher:  cipher,
		logger:  logger,
	}
}

// Get returns the portal username and decrypted password for a user.
//
// A missing credential yields ErrNotLinked. A secret that does not decrypt
// under the configured key yields crypto.ErrDecrypt — deliberately distinct
// from a login failure, because falling through to a fresh login would mask
// a key-rotation bug.
func (s *Store) Get(ctx context.Context, userID string) (string, string, error) {
	cred, err := s.storage.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return "", "", fmt.Errorf("%w: user %s", ErrNotLinked, userID)
		}
		return "", "", fmt.Errorf("failed to read credential for user %s: %w", userID, err)
	}

	password, err := s.cipher.Decrypt(cred.EncryptedPassword)
	if err != nil {
		s.logger.Error().
			Str("user_id", userID).
			Err(err).
			Msg("Stored portal secret failed to decrypt; possible key rotation mismatch")
		return "", "", fmt.Errorf("credential for user %s: %w", userID, err)
	}

	return cred.PortalUsername, string(password), nil
}

// Seed encrypts and stores a credential for a user, replacing any prior one.
func (s *Store) Seed(ctx context.Context, userID, portalUsername, password string) error {
	if userID == "" || portalUsername == "" || password == "" {
		return fmt.Errorf("user ID, portal username and password are all required")
	}

	encrypted, err := s.cipher.Encrypt([]byte(password))
	if err != nil {
		return fmt.Errorf("failed to encrypt portal password: %w", err)
	}

	cred := &models.Credential{
		UserID:            userID,
		PortalUsername:    portalUsername,
		EncryptedPassword: encrypted,
		Active:            true,
	}

	if err := s.storage.Upsert(ctx, cred); err != nil {
		return err
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("portal_username", portalUsername).
		Msg("Portal credential seeded")
	return nil
}
