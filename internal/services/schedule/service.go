// Package schedule scrapes the weekly activity schedule off the academic
// portal for users with an active session.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/aryandika/campusgate/internal/interfaces"
	"github.com/aryandika/campusgate/internal/models"
	"github.com/aryandika/campusgate/internal/services/auth"
)

// scheduleTitle is the caption the portal renders above the weekly table.
const scheduleTitle = "JADWAL KEGIATAN MINGGU INI"

// ErrScheduleNotFound is returned when the page loaded fine but carried no
// recognizable schedule table.
var ErrScheduleNotFound = errors.New("schedule table not found on portal page")

// Service fetches, parses and persists weekly schedules.
type Service struct {
	scheduleURL string
	sessions    *auth.Service
	storage     interfaces.ScheduleStorage
	logger      arbor.ILogger
}

// NewService creates a schedule service scraping the given absolute URL.
func NewService(scheduleURL string, sessions *auth.Service, storage interfaces.ScheduleStorage, logger arbor.ILogger) *Service {
	return &Service{
		scheduleURL: scheduleURL,
		sessions:    sessions,
		storage:     storage,
		logger:      logger,
	}
}

// FetchWeekly scrapes the current weekly schedule for a user and persists
// it, replacing the previous scrape.
func (s *Service) FetchWeekly(ctx context.Context, userID string) (*models.Schedule, error) {
	session, err := s.sessions.Acquire(ctx, userID)
	if err != nil {
		return nil, err
	}

	doc, err := s.fetchPage(ctx, session.Client)
	if err != nil {
		return nil, err
	}

	table, ok := findScheduleTable(doc)
	if !ok {
		// First hit after a fresh handoff can land on the portal's local
		// SSO settling page; one re-fetch lands on the real content.
		doc, err = s.fetchPage(ctx, session.Client)
		if err != nil {
			return nil, err
		}
		table, ok = findScheduleTable(doc)
		if !ok {
			return nil, ErrScheduleNotFound
		}
	}

	headers, rows := extractTable(table)
	schedule := &models.Schedule{
		UserID:    userID,
		Headers:   headers,
		Rows:      rows,
		ScrapedAt: time.Now().Unix(),
	}

	if err := s.storage.Save(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to persist schedule for user %s: %w", userID, err)
	}

	s.logger.Info().
		Str("user_id", userID).
		Int("rows", len(rows)).
		Msg("Weekly schedule scraped")
	return schedule, nil
}

// Latest returns the most recent persisted schedule for a user.
func (s *Service) Latest(ctx context.Context, userID string) (*models.Schedule, error) {
	return s.storage.Get(ctx, userID)
}

func (s *Service) fetchPage(ctx context.Context, client *http.Client) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.scheduleURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch schedule page: %w", err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schedule page: %w", err)
	}
	return doc, nil
}

// findScheduleTable locates the weekly table: the title block first, then
// the next schedule-styled table after it. Falls back to the page's first
// schedule-styled table when the title moved.
func findScheduleTable(doc *goquery.Document) (*goquery.Selection, bool) {
	var table *goquery.Selection

	doc.Find("div.tabletitle").EachWithBreak(func(_ int, title *goquery.Selection) bool {
		if !strings.Contains(strings.ToUpper(title.Text()), scheduleTitle) {
			return true
		}
		candidate := title.NextAllFiltered("table.sicycatable").First()
		if candidate.Length() == 0 {
			candidate = title.Parent().Find("table.sicycatable").First()
		}
		if candidate.Length() > 0 {
			table = candidate
			return false
		}
		return true
	})

	if table == nil {
		fallback := doc.Find("table.sicycatable").First()
		if fallback.Length() == 0 {
			return nil, false
		}
		table = fallback
	}
	return table, true
}

// extractTable flattens the table into a header row and data rows. The
// first row supplies headers whether the portal marked it up with th or td.
func extractTable(table *goquery.Selection) ([]string, [][]string) {
	var headers []string
	var rows [][]string

	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})
		if len(cells) == 0 {
			return
		}
		if headers == nil {
			headers = cells
			return
		}
		rows = append(rows, cells)
	})

	return headers, rows
}
