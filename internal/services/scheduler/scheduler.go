// Package scheduler runs the periodic schedule scrape for every linked user.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/aryandika/campusgate/internal/interfaces"
	"github.com/aryandika/campusgate/internal/models"
)

// Fetcher scrapes one user's schedule. Satisfied by the schedule service.
type Fetcher interface {
	FetchWeekly(ctx context.Context, userID string) (*models.Schedule, error)
}

// Scheduler triggers a schedule scrape for each user with an active
// credential on a cron expression. Failures for one user never stop the
// sweep; they are logged and the next user proceeds.
type Scheduler struct {
	spec      string
	creds     interfaces.CredentialStorage
	schedules Fetcher
	logger    arbor.ILogger

	cron *cron.Cron
}

// New creates a scheduler with the given cron expression.
func New(spec string, creds interfaces.CredentialStorage, schedules Fetcher, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		spec:      spec,
		creds:     creds,
		schedules: schedules,
		logger:    logger,
	}
}

// Start registers the cron job and begins scheduling.
func (s *Scheduler) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(s.spec, s.runSweep); err != nil {
		return fmt.Errorf("invalid scrape schedule %q: %w", s.spec, err)
	}
	c.Start()
	s.cron = c

	s.logger.Info().Str("schedule", s.spec).Msg("Schedule scraper started")
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Schedule scraper stopped")
}

// RunSweep scrapes the schedule for every active user immediately.
func (s *Scheduler) RunSweep(ctx context.Context) {
	creds, err := s.creds.List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list credentials for scrape sweep")
		return
	}

	var ok, failed int
	for _, cred := range creds {
		if !cred.Active {
			continue
		}
		if ctx.Err() != nil {
			s.logger.Warn().Err(ctx.Err()).Msg("Scrape sweep aborted")
			return
		}
		if _, err := s.schedules.FetchWeekly(ctx, cred.UserID); err != nil {
			failed++
			s.logger.Warn().
				Str("user_id", cred.UserID).
				Err(err).
				Msg("Scheduled scrape failed for user")
			continue
		}
		ok++
	}

	s.logger.Info().
		Int("succeeded", ok).
		Int("failed", failed).
		Msg("Scrape sweep finished")
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	s.RunSweep(ctx)
}
