package models

// Schedule holds one user's scraped weekly schedule table, kept as the
// header row plus data rows exactly as the portal rendered them.
type Schedule struct {
	UserID    string     `json:"user_id" badgerhold:"unique"`
	Headers   []string   `json:"headers"`
	Rows      [][]string `json:"rows"`
	ScrapedAt int64      `json:"scraped_at"`
}
