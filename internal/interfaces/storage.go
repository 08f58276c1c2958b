package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/aryandika/campusgate/internal/models"
)

// ErrNotFound is returned when a requested record does not exist, or — for
// persisted sessions — exists but is older than the caller's staleness window.
var ErrNotFound = errors.New("record not found")

// CredentialStorage persists per-user portal credentials.
// Exactly one active credential exists per user: Upsert replaces by user key.
type CredentialStorage interface {
	Upsert(ctx context.Context, cred *models.Credential) error
	GetByUserID(ctx context.Context, userID string) (*models.Credential, error)
	Delete(ctx context.Context, userID string) error
	List(ctx context.Context) ([]*models.Credential, error)
}

// SessionStorage persists per-user portal cookie sets.
//
// Load enforces maxAge against the record's capture time: a record older than
// the window reports ErrNotFound even though the row exists. This is a cost
// optimization to avoid probing cookies that are almost certainly dead, not a
// correctness guarantee — validity is always decided by probing.
type SessionStorage interface {
	Save(ctx context.Context, session *models.PortalSession) error
	Load(ctx context.Context, userID string, maxAge time.Duration) (*models.PortalSession, error)
	Delete(ctx context.Context, userID string) error
}

// ScheduleStorage persists the latest scraped schedule per user.
type ScheduleStorage interface {
	Save(ctx context.Context, schedule *models.Schedule) error
	Get(ctx context.Context, userID string) (*models.Schedule, error)
}

// StorageManager provides access to all storage backends
type StorageManager interface {
	CredentialStorage() CredentialStorage
	SessionStorage() SessionStorage
	ScheduleStorage() ScheduleStorage
	Close() error
}
