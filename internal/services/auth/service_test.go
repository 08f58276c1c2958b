package auth

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryandika/campusgate/internal/common"
	"github.com/aryandika/campusgate/internal/credentials"
	"github.com/aryandika/campusgate/internal/crypto"
	"github.com/aryandika/campusgate/internal/interfaces"
	"github.com/aryandika/campusgate/internal/models"
)

type memCredentialStorage struct {
	mu     sync.Mutex
	byUser map[string]*models.Credential
}

func newMemCredentialStorage() *memCredentialStorage {
	return &memCredentialStorage{byUser: make(map[string]*models.Credential)}
}

func (m *memCredentialStorage) Upsert(_ context.Context, cred *models.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byUser[cred.UserID] = cred
	return nil
}

func (m *memCredentialStorage) GetByUserID(_ context.Context, userID string) (*models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.byUser[userID]
	if !ok || !cred.Active {
		return nil, interfaces.ErrNotFound
	}
	return cred, nil
}

func (m *memCredentialStorage) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byUser, userID)
	return nil
}

func (m *memCredentialStorage) List(_ context.Context) ([]*models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Credential, 0, len(m.byUser))
	for _, cred := range m.byUser {
		out = append(out, cred)
	}
	return out, nil
}

type memSessionStorage struct {
	mu   sync.Mutex
	rows map[string]*models.PortalSession
}

func newMemSessionStorage() *memSessionStorage {
	return &memSessionStorage{rows: make(map[string]*models.PortalSession)}
}

func (m *memSessionStorage) Save(_ context.Context, session *models.PortalSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[session.UserID] = session
	return nil
}

func (m *memSessionStorage) Load(_ context.Context, userID string, maxAge time.Duration) (*models.PortalSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[userID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	if maxAge > 0 && time.Since(time.Unix(row.CapturedAt, 0)) > maxAge {
		return nil, interfaces.ErrNotFound
	}
	return row, nil
}

func (m *memSessionStorage) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, userID)
	return nil
}

func (m *memSessionStorage) get(userID string) *models.PortalSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[userID]
}

type serviceFixture struct {
	service  *Service
	creds    *credentials.Store
	sessions *memSessionStorage
	cipher   *crypto.Cipher
	env      *portalEnv
}

func newServiceFixture(t *testing.T, env *portalEnv, tweak func(*Config)) *serviceFixture {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	cipher, err := crypto.NewCipher(key)
	require.NoError(t, err)

	logger := common.GetLogger()
	creds := credentials.NewStore(newMemCredentialStorage(), cipher, logger)
	sessions := newMemSessionStorage()

	cfg := env.config()
	if tweak != nil {
		tweak(&cfg)
	}

	service, err := NewService(cfg, creds, sessions, logger)
	require.NoError(t, err)

	return &serviceFixture{
		service:  service,
		creds:    creds,
		sessions: sessions,
		cipher:   cipher,
		env:      env,
	}
}

func (f *serviceFixture) seed(t *testing.T, userID, portalUser, password string) {
	t.Helper()
	require.NoError(t, f.creds.Seed(context.Background(), userID, portalUser, password))
}

func (f *serviceFixture) portalHost(t *testing.T) string {
	t.Helper()
	u, err := url.Parse(f.env.target.URL)
	require.NoError(t, err)
	return u.Hostname()
}

func TestAcquireLogsInAndPersists(t *testing.T) {
	env := newPortalEnv(t, 2)
	f := newServiceFixture(t, env, nil)
	f.seed(t, "alice", env.validUser, env.validPass)

	session, err := f.service.Acquire(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, session.Client)
	assert.EqualValues(t, 1, env.loginCount())

	stored := f.sessions.get("alice")
	require.NotNil(t, stored)
	names := make([]string, 0, len(stored.Cookies))
	for _, c := range stored.Cookies {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "gate_session")
	assert.Contains(t, names, "target_session")
}

func TestAcquireConcurrentCallersShareOneLogin(t *testing.T) {
	env := newPortalEnv(t, 1)
	f := newServiceFixture(t, env, nil)
	f.seed(t, "alice", env.validUser, env.validPass)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	sessions := make([]*Session, len(errs))
	for i := 0; i < len(errs); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], errs[i] = f.service.Acquire(context.Background(), "alice")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err)
		// Everyone shares the one client (and therefore the one cookie jar)
		// the single login produced.
		assert.Same(t, sessions[0].Client, sessions[i].Client)
	}
	assert.EqualValues(t, 1, env.loginCount())
}

func TestAcquireFreshCacheSkipsNetwork(t *testing.T) {
	env := newPortalEnv(t, 0)
	f := newServiceFixture(t, env, nil)
	f.seed(t, "alice", env.validUser, env.validPass)

	_, err := f.service.Acquire(context.Background(), "alice")
	require.NoError(t, err)
	hits := env.totalHits()

	_, err = f.service.Acquire(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, hits, env.totalHits())
}

func TestAcquireAdoptsPersistedCookies(t *testing.T) {
	env := newPortalEnv(t, 0)
	f := newServiceFixture(t, env, nil)
	f.seed(t, "alice", env.validUser, env.validPass)

	host := f.portalHost(t)
	require.NoError(t, f.sessions.Save(context.Background(), &models.PortalSession{
		UserID: "alice",
		Cookies: []models.SessionCookie{
			{Name: "gate_session", Value: "ok", Domain: host, Path: "/"},
			{Name: "target_session", Value: "ok", Domain: host, Path: "/"},
		},
		UserAgent:  "persisted-ua",
		CapturedAt: time.Now().Unix(),
	}))

	session, err := f.service.Acquire(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "persisted-ua", session.UserAgent)
	assert.EqualValues(t, 0, env.loginCount())
}

func TestAcquireStalePersistedCookiesTriggerLogin(t *testing.T) {
	env := newPortalEnv(t, 0)
	f := newServiceFixture(t, env, nil)
	f.seed(t, "alice", env.validUser, env.validPass)

	host := f.portalHost(t)
	require.NoError(t, f.sessions.Save(context.Background(), &models.PortalSession{
		UserID: "alice",
		Cookies: []models.SessionCookie{
			{Name: "target_session", Value: "ok", Domain: host, Path: "/"},
		},
		CapturedAt: time.Now().Add(-24 * time.Hour).Unix(),
	}))

	_, err := f.service.Acquire(context.Background(), "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 1, env.loginCount())
}

func TestAcquireDeadPersistedCookiesFallThroughToLogin(t *testing.T) {
	env := newPortalEnv(t, 0)
	f := newServiceFixture(t, env, nil)
	f.seed(t, "alice", env.validUser, env.validPass)

	host := f.portalHost(t)
	require.NoError(t, f.sessions.Save(context.Background(), &models.PortalSession{
		UserID: "alice",
		Cookies: []models.SessionCookie{
			{Name: "target_session", Value: "revoked", Domain: host, Path: "/"},
		},
		CapturedAt: time.Now().Unix(),
	}))

	_, err := f.service.Acquire(context.Background(), "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 1, env.loginCount())

	stored := f.sessions.get("alice")
	require.NotNil(t, stored)
	assert.WithinDuration(t, time.Now(), time.Unix(stored.CapturedAt, 0), time.Minute)
}

func TestAcquireConcurrentUsersGetDistinctSessions(t *testing.T) {
	env := newPortalEnv(t, 1)
	f := newServiceFixture(t, env, nil)
	f.seed(t, "alice", env.validUser, env.validPass)
	f.seed(t, "bob", env.validUser, env.validPass)

	var wg sync.WaitGroup
	results := make(map[string]*Session, 2)
	var mu sync.Mutex
	for _, userID := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			session, err := f.service.Acquire(context.Background(), userID)
			assert.NoError(t, err)
			mu.Lock()
			results[userID] = session
			mu.Unlock()
		}(userID)
	}
	wg.Wait()

	require.NotNil(t, results["alice"])
	require.NotNil(t, results["bob"])
	assert.NotSame(t, results["alice"].Client, results["bob"].Client)
	assert.EqualValues(t, 2, env.loginCount())

	// Each user ended up with their own persisted cookie row.
	aliceRow := f.sessions.get("alice")
	bobRow := f.sessions.get("bob")
	require.NotNil(t, aliceRow)
	require.NotNil(t, bobRow)
	assert.Equal(t, "alice", aliceRow.UserID)
	assert.Equal(t, "bob", bobRow.UserID)
	assert.NotSame(t, aliceRow, bobRow)
}

func TestStatusConcurrentWithAcquire(t *testing.T) {
	env := newPortalEnv(t, 0)
	// A nanosecond interval forces every Acquire to re-probe and rewrite the
	// validation timestamp while Status reads it.
	f := newServiceFixture(t, env, func(cfg *Config) {
		cfg.ValidityCheckInterval = time.Nanosecond
	})
	f.seed(t, "alice", env.validUser, env.validPass)

	_, err := f.service.Acquire(context.Background(), "alice")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, err := f.service.Acquire(context.Background(), "alice")
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			status := f.service.Status("alice")
			if status.Cached {
				assert.False(t, status.LastValidated.IsZero())
			}
		}
	}()
	wg.Wait()
}

func TestAcquireUserIsolation(t *testing.T) {
	env := newPortalEnv(t, 0)
	f := newServiceFixture(t, env, nil)
	f.seed(t, "alice", env.validUser, env.validPass)
	f.seed(t, "bob", env.validUser, "not-bobs-password")

	_, err := f.service.Acquire(context.Background(), "bob")
	require.ErrorIs(t, err, ErrSessionUnavailable)

	_, err = f.service.Acquire(context.Background(), "alice")
	assert.NoError(t, err)

	_, err = f.service.Acquire(context.Background(), "alice")
	assert.NoError(t, err)
}

func TestAcquireUnlinkedUser(t *testing.T) {
	env := newPortalEnv(t, 0)
	f := newServiceFixture(t, env, nil)

	_, err := f.service.Acquire(context.Background(), "ghost")
	assert.ErrorIs(t, err, credentials.ErrNotLinked)
	assert.EqualValues(t, 0, env.loginCount())
}

func TestAcquireDecryptFailureIsNotALoginFailure(t *testing.T) {
	env := newPortalEnv(t, 0)

	seedKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	seedCipher, err := crypto.NewCipher(seedKey)
	require.NoError(t, err)

	storage := newMemCredentialStorage()
	logger := common.GetLogger()
	seeder := credentials.NewStore(storage, seedCipher, logger)
	require.NoError(t, seeder.Seed(context.Background(), "alice", env.validUser, env.validPass))

	// The service reads the same storage under a different key, as after a
	// botched key rotation.
	runtimeKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	runtimeCipher, err := crypto.NewCipher(runtimeKey)
	require.NoError(t, err)
	creds := credentials.NewStore(storage, runtimeCipher, logger)

	service, err := NewService(env.config(), creds, newMemSessionStorage(), logger)
	require.NoError(t, err)

	_, err = service.Acquire(context.Background(), "alice")
	assert.ErrorIs(t, err, crypto.ErrDecrypt)
	assert.EqualValues(t, 0, env.loginCount())
}

func TestAcquireThrottlesRepeatedLogins(t *testing.T) {
	env := newPortalEnv(t, 0)
	f := newServiceFixture(t, env, func(cfg *Config) {
		cfg.LoginsPerMinute = 1
	})
	f.seed(t, "alice", env.validUser, "wrong-password")

	_, err := f.service.Acquire(context.Background(), "alice")
	require.ErrorIs(t, err, ErrSessionUnavailable)

	_, err = f.service.Acquire(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrLoginThrottled)
	assert.EqualValues(t, 1, env.loginCount())
}

func TestInvalidateForcesFreshLogin(t *testing.T) {
	env := newPortalEnv(t, 0)
	f := newServiceFixture(t, env, nil)
	f.seed(t, "alice", env.validUser, env.validPass)

	_, err := f.service.Acquire(context.Background(), "alice")
	require.NoError(t, err)

	require.NoError(t, f.service.Invalidate(context.Background(), "alice"))
	assert.Nil(t, f.sessions.get("alice"))

	_, err = f.service.Acquire(context.Background(), "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 2, env.loginCount())
}

func TestStatusReflectsCache(t *testing.T) {
	env := newPortalEnv(t, 0)
	f := newServiceFixture(t, env, nil)
	f.seed(t, "alice", env.validUser, env.validPass)

	assert.False(t, f.service.Status("alice").Cached)

	_, err := f.service.Acquire(context.Background(), "alice")
	require.NoError(t, err)

	status := f.service.Status("alice")
	assert.True(t, status.Cached)
	assert.WithinDuration(t, time.Now(), status.LastValidated, time.Minute)
}
