package badger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryandika/campusgate/internal/common"
	"github.com/aryandika/campusgate/internal/interfaces"
	"github.com/aryandika/campusgate/internal/models"
)

func newTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()

	manager, err := NewManager(common.GetLogger(), &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "campusgate-test"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func TestCredentialUpsertReplacesByUser(t *testing.T) {
	manager := newTestManager(t)
	storage := manager.CredentialStorage()
	ctx := context.Background()

	require.NoError(t, storage.Upsert(ctx, &models.Credential{
		UserID:            "alice",
		PortalUsername:    "191080001",
		EncryptedPassword: []byte("blob-1"),
		Active:            true,
	}))

	first, err := storage.GetByUserID(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, storage.Upsert(ctx, &models.Credential{
		UserID:            "alice",
		PortalUsername:    "191080001",
		EncryptedPassword: []byte("blob-2"),
		Active:            true,
	}))

	second, err := storage.GetByUserID(ctx, "alice")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, []byte("blob-2"), second.EncryptedPassword)

	all, err := storage.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCredentialInactiveIsAbsent(t *testing.T) {
	manager := newTestManager(t)
	storage := manager.CredentialStorage()
	ctx := context.Background()

	require.NoError(t, storage.Upsert(ctx, &models.Credential{
		UserID:            "alice",
		PortalUsername:    "191080001",
		EncryptedPassword: []byte("blob"),
		Active:            false,
	}))

	_, err := storage.GetByUserID(ctx, "alice")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestCredentialDeleteIsIdempotent(t *testing.T) {
	manager := newTestManager(t)
	storage := manager.CredentialStorage()
	ctx := context.Background()

	require.NoError(t, storage.Upsert(ctx, &models.Credential{
		UserID:            "alice",
		PortalUsername:    "191080001",
		EncryptedPassword: []byte("blob"),
		Active:            true,
	}))

	require.NoError(t, storage.Delete(ctx, "alice"))
	require.NoError(t, storage.Delete(ctx, "alice"))

	_, err := storage.GetByUserID(ctx, "alice")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestSessionRoundTrip(t *testing.T) {
	manager := newTestManager(t)
	storage := manager.SessionStorage()
	ctx := context.Background()

	saved := &models.PortalSession{
		UserID: "alice",
		Cookies: []models.SessionCookie{
			{Name: "gate_session", Value: "abc", Domain: "gate.example.ac.id", Path: "/"},
			{Name: "target_session", Value: "def", Domain: "portal.example.ac.id", Path: "/", Secure: true},
		},
		UserAgent:  "Mozilla/5.0 test",
		CapturedAt: time.Now().Unix(),
	}
	require.NoError(t, storage.Save(ctx, saved))

	loaded, err := storage.Load(ctx, "alice", 12*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, saved.Cookies, loaded.Cookies)
	assert.Equal(t, saved.UserAgent, loaded.UserAgent)
}

func TestSessionLoadEnforcesStaleness(t *testing.T) {
	manager := newTestManager(t)
	storage := manager.SessionStorage()
	ctx := context.Background()

	require.NoError(t, storage.Save(ctx, &models.PortalSession{
		UserID:     "alice",
		Cookies:    []models.SessionCookie{{Name: "gate_session", Value: "abc", Domain: "gate.example.ac.id"}},
		CapturedAt: time.Now().Add(-24 * time.Hour).Unix(),
	}))

	_, err := storage.Load(ctx, "alice", 12*time.Hour)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	// No staleness window means the row is served regardless of age.
	loaded, err := storage.Load(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, "alice", loaded.UserID)
}

func TestSessionSaveReplacesPriorRow(t *testing.T) {
	manager := newTestManager(t)
	storage := manager.SessionStorage()
	ctx := context.Background()

	require.NoError(t, storage.Save(ctx, &models.PortalSession{
		UserID:     "alice",
		Cookies:    []models.SessionCookie{{Name: "gate_session", Value: "old", Domain: "gate.example.ac.id"}},
		CapturedAt: time.Now().Unix(),
	}))
	require.NoError(t, storage.Save(ctx, &models.PortalSession{
		UserID:     "alice",
		Cookies:    []models.SessionCookie{{Name: "gate_session", Value: "new", Domain: "gate.example.ac.id"}},
		CapturedAt: time.Now().Unix(),
	}))

	loaded, err := storage.Load(ctx, "alice", time.Hour)
	require.NoError(t, err)
	require.Len(t, loaded.Cookies, 1)
	assert.Equal(t, "new", loaded.Cookies[0].Value)
}

func TestSessionDeleteIsIdempotent(t *testing.T) {
	manager := newTestManager(t)
	storage := manager.SessionStorage()
	ctx := context.Background()

	require.NoError(t, storage.Delete(ctx, "never-existed"))
}

func TestScheduleRoundTrip(t *testing.T) {
	manager := newTestManager(t)
	storage := manager.ScheduleStorage()
	ctx := context.Background()

	_, err := storage.Get(ctx, "alice")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	require.NoError(t, storage.Save(ctx, &models.Schedule{
		UserID:  "alice",
		Headers: []string{"Hari", "Kegiatan"},
		Rows:    [][]string{{"Senin", "Pemrograman Web"}},
	}))

	loaded, err := storage.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"Hari", "Kegiatan"}, loaded.Headers)
	assert.NotZero(t, loaded.ScrapedAt)
}
