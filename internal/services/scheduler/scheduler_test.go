package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryandika/campusgate/internal/common"
	"github.com/aryandika/campusgate/internal/interfaces"
	"github.com/aryandika/campusgate/internal/models"
)

type fakeCredStorage struct {
	creds []*models.Credential
}

func (f *fakeCredStorage) Upsert(context.Context, *models.Credential) error { return nil }
func (f *fakeCredStorage) Delete(context.Context, string) error             { return nil }

func (f *fakeCredStorage) GetByUserID(_ context.Context, userID string) (*models.Credential, error) {
	for _, cred := range f.creds {
		if cred.UserID == userID {
			return cred, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (f *fakeCredStorage) List(context.Context) ([]*models.Credential, error) {
	return f.creds, nil
}

type fakeFetcher struct {
	mu      sync.Mutex
	fetched []string
	failFor string
}

func (f *fakeFetcher) FetchWeekly(_ context.Context, userID string) (*models.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if userID == f.failFor {
		return nil, errors.New("portal said no")
	}
	f.fetched = append(f.fetched, userID)
	return &models.Schedule{UserID: userID}, nil
}

func TestRunSweepScrapesActiveUsers(t *testing.T) {
	creds := &fakeCredStorage{creds: []*models.Credential{
		{UserID: "alice", Active: true},
		{UserID: "bob", Active: false},
		{UserID: "carol", Active: true},
	}}
	fetcher := &fakeFetcher{}

	s := New("0 6 * * *", creds, fetcher, common.GetLogger())
	s.RunSweep(context.Background())

	assert.Equal(t, []string{"alice", "carol"}, fetcher.fetched)
}

func TestRunSweepContinuesPastFailures(t *testing.T) {
	creds := &fakeCredStorage{creds: []*models.Credential{
		{UserID: "alice", Active: true},
		{UserID: "bob", Active: true},
	}}
	fetcher := &fakeFetcher{failFor: "alice"}

	s := New("0 6 * * *", creds, fetcher, common.GetLogger())
	s.RunSweep(context.Background())

	assert.Equal(t, []string{"bob"}, fetcher.fetched)
}

func TestRunSweepStopsOnCancelledContext(t *testing.T) {
	creds := &fakeCredStorage{creds: []*models.Credential{
		{UserID: "alice", Active: true},
	}}
	fetcher := &fakeFetcher{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New("0 6 * * *", creds, fetcher, common.GetLogger())
	s.RunSweep(ctx)

	assert.Empty(t, fetcher.fetched)
}

func TestStartRejectsInvalidSpec(t *testing.T) {
	s := New("every day at six", &fakeCredStorage{}, &fakeFetcher{}, common.GetLogger())
	require.Error(t, s.Start())
}

func TestStartAndStop(t *testing.T) {
	s := New("0 6 * * *", &fakeCredStorage{}, &fakeFetcher{}, common.GetLogger())
	require.NoError(t, s.Start())
	s.Stop()
}
