// Package auth maintains a pool of authenticated portal sessions, one per
// application user, across process restarts and concurrent requests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/aryandika/campusgate/internal/credentials"
	"github.com/aryandika/campusgate/internal/httpclient"
	"github.com/aryandika/campusgate/internal/interfaces"
	"github.com/aryandika/campusgate/internal/models"
)

// Session is a ready-to-use authenticated HTTP client for one user.
// Downstream scraping code treats it as opaque.
type Session struct {
	UserID    string
	Client    *http.Client
	UserAgent string
}

// cachedSession lives only in process memory; the durable artifact is the
// persisted cookie set, not the live client.
type cachedSession struct {
	client        *http.Client
	userAgent     string
	probe         *Probe
	lastValidated time.Time
}

// Service orchestrates session acquisition: in-memory cache first, then
// persisted cookies, then a fresh login — each tier only when the previous
// one was inconclusive. A per-user lock guarantees at most one in-flight
// login per user under concurrent callers.
type Service struct {
	cfg       Config
	creds     *credentials.Store
	sessions  interfaces.SessionStorage
	automaton *Automaton
	logger    arbor.ILogger

	mu        sync.Mutex
	cache     map[string]*cachedSession
	userLocks map[string]*sync.Mutex
	limiters  map[string]*rate.Limiter
}

// NewService creates the session manager.
func NewService(cfg Config, creds *credentials.Store, sessions interfaces.SessionStorage, logger arbor.ILogger) (*Service, error) {
	automaton, err := NewAutomaton(cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.ValidityCheckInterval <= 0 {
		cfg.ValidityCheckInterval = 5 * time.Minute
	}

	return &Service{
		cfg:       cfg,
		creds:     creds,
		sessions:  sessions,
		automaton: automaton,
		logger:    logger,
		cache:     make(map[string]*cachedSession),
		userLocks: make(map[string]*sync.Mutex),
		limiters:  make(map[string]*rate.Limiter),
	}, nil
}

// Acquire returns an authenticated client for the user, reusing the cached
// session when fresh, adopting persisted cookies when they still probe
// valid, and logging in fresh otherwise.
func (s *Service) Acquire(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user ID", ErrSessionUnavailable)
	}

	// Serialize per user, not globally: unrelated users log in concurrently.
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if entry := s.cacheGet(userID); entry != nil {
		if time.Since(s.lastValidated(entry)) < s.cfg.ValidityCheckInterval {
			return s.toSession(userID, entry), nil
		}

		if entry.probe.IsValid(ctx, entry.client) {
			s.markValidated(entry)
			s.persistCookies(ctx, userID, entry)
			return s.toSession(userID, entry), nil
		}

		s.logger.Info().Str("user_id", userID).Msg("Cached session no longer valid, evicting")
		s.cacheDelete(userID)
	}

	if entry, ok := s.adoptPersisted(ctx, userID); ok {
		return s.toSession(userID, entry), nil
	}

	entry, err := s.login(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.toSession(userID, entry), nil
}

// adoptPersisted tries to revive a session from the persisted cookie store.
func (s *Service) adoptPersisted(ctx context.Context, userID string) (*cachedSession, bool) {
	stored, err := s.sessions.Load(ctx, userID, s.cfg.CookieMaxAge)
	if err != nil {
		if !errors.Is(err, interfaces.ErrNotFound) {
			s.logger.Warn().Str("user_id", userID).Err(err).Msg("Failed to load persisted session")
		}
		return nil, false
	}

	client, err := httpclient.NewFromSession(s.clientOptions(), stored)
	if err != nil {
		s.logger.Warn().Str("user_id", userID).Err(err).Msg("Failed to rebuild client from persisted cookies")
		return nil, false
	}

	probe := s.newProbe()
	if !probe.IsValid(ctx, client) {
		s.logger.Info().Str("user_id", userID).Msg("Persisted session expired, discarding")
		// Dead cookies would collide with a fresh login; drop the row and
		// let the login path start from a clean jar.
		if err := s.sessions.Delete(ctx, userID); err != nil {
			s.logger.Warn().Str("user_id", userID).Err(err).Msg("Failed to delete expired session")
		}
		return nil, false
	}

	s.logger.Info().Str("user_id", userID).Msg("Session restored from persisted cookies")
	entry := &cachedSession{
		client:        client,
		userAgent:     stored.UserAgent,
		probe:         probe,
		lastValidated: time.Now(),
	}
	s.cacheSet(userID, entry)
	return entry, true
}

// login runs the automaton with stored credentials, retrying only transport
// faults, and persists the resulting cookie set.
func (s *Service) login(ctx context.Context, userID string) (*cachedSession, error) {
	username, password, err := s.creds.Get(ctx, userID)
	if err != nil {
		// ErrNotLinked and decryption failures propagate untranslated: a
		// corrupt secret must never be reported as a failed login.
		return nil, err
	}

	if !s.limiter(userID).Allow() {
		return nil, fmt.Errorf("%w: %w", ErrSessionUnavailable, ErrLoginThrottled)
	}

	client, err := httpclient.New(s.clientOptions())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionUnavailable, err)
	}

	attempts := s.cfg.LoginRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			s.logger.Warn().
				Str("user_id", userID).
				Int("attempt", attempt+1).
				Err(lastErr).
				Msg("Retrying portal login after transport error")
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrSessionUnavailable, ctx.Err())
			case <-time.After(s.cfg.RetryBackoff * time.Duration(attempt)):
			}
		}

		lastErr = s.automaton.Run(ctx, client, username, password)
		if lastErr == nil {
			break
		}
		if !errors.Is(lastErr, ErrTransport) {
			// Wrong credentials or an unrecognized flow; retrying would
			// hammer the gate for nothing.
			break
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionUnavailable, lastErr)
	}

	probe := s.newProbe()
	probe.markValid()
	entry := &cachedSession{
		client:        client,
		userAgent:     s.cfg.UserAgent,
		probe:         probe,
		lastValidated: time.Now(),
	}

	s.persistCookies(ctx, userID, entry)
	s.cacheSet(userID, entry)
	return entry, nil
}

// Invalidate evicts the cached session and deletes the persisted cookies.
// The next Acquire performs a fresh login.
func (s *Service) Invalidate(ctx context.Context, userID string) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	s.cacheDelete(userID)
	return s.sessions.Delete(ctx, userID)
}

// Status describes a user's session as known to this process.
type Status struct {
	UserID        string    `json:"user_id"`
	Cached        bool      `json:"cached"`
	LastValidated time.Time `json:"last_validated,omitempty"`
}

// Status reports cache state without touching the network.
func (s *Service) Status(userID string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{UserID: userID}
	if entry := s.cache[userID]; entry != nil {
		status.Cached = true
		status.LastValidated = entry.lastValidated
	}
	return status
}

func (s *Service) toSession(userID string, entry *cachedSession) *Session {
	return &Session{
		UserID:    userID,
		Client:    entry.client,
		UserAgent: entry.userAgent,
	}
}

// persistCookies refreshes the durable cookie copy. Failures are logged,
// not fatal: the live session still works, only restart recovery suffers.
func (s *Service) persistCookies(ctx context.Context, userID string, entry *cachedSession) {
	cookies := httpclient.SnapshotCookies(entry.client, s.cfg.GateURL, s.cfg.TargetURL)
	session := &models.PortalSession{
		UserID:     userID,
		Cookies:    cookies,
		UserAgent:  entry.userAgent,
		CapturedAt: time.Now().Unix(),
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		s.logger.Warn().Str("user_id", userID).Err(err).Msg("Failed to persist session cookies")
	}
}

func (s *Service) newProbe() *Probe {
	// The classifier was validated when the automaton was built, so probe
	// construction cannot fail here.
	return &Probe{
		cfg:      s.cfg,
		classify: s.automaton.classify,
		logger:   s.logger,
	}
}

func (s *Service) clientOptions() httpclient.Options {
	return httpclient.Options{
		Timeout:   s.cfg.Timeout,
		ProxyURL:  s.cfg.ProxyURL,
		UserAgent: s.cfg.UserAgent,
	}
}

func (s *Service) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.userLocks[userID] = lock
	}
	return lock
}

func (s *Service) limiter(userID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.limiters[userID]
	if !ok {
		if s.cfg.LoginsPerMinute > 0 {
			limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.cfg.LoginsPerMinute)), s.cfg.LoginsPerMinute)
		} else {
			limiter = rate.NewLimiter(rate.Inf, 1)
		}
		s.limiters[userID] = limiter
	}
	return limiter
}

func (s *Service) cacheGet(userID string) *cachedSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache[userID]
}

// lastValidated and markValidated guard the validation timestamp with the
// same mutex Status reads it under; the per-user lock alone is not enough
// because Status takes no user lock.
func (s *Service) lastValidated(entry *cachedSession) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return entry.lastValidated
}

func (s *Service) markValidated(entry *cachedSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.lastValidated = time.Now()
}

func (s *Service) cacheSet(userID string, entry *cachedSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[userID] = entry
}

func (s *Service) cacheDelete(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, userID)
}
