package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/aryandika/campusgate/internal/models"
)

// eventTimeLayout matches how the portal prints activity times, with the
// month name already translated to English.
const eventTimeLayout = "2 January 2006 15:04"

// indonesianMonths maps the portal's month names onto the English names
// time.Parse understands.
var indonesianMonths = map[string]string{
	"Januari":   "January",
	"Februari":  "February",
	"Maret":     "March",
	"April":     "April",
	"Mei":       "May",
	"Juni":      "June",
	"Juli":      "July",
	"Agustus":   "August",
	"September": "September",
	"Oktober":   "October",
	"November":  "November",
	"Desember":  "December",
}

// Column name candidates per calendar field. The portal renders Indonesian
// headers; the English aliases cover re-exported data.
var (
	summaryColumns     = []string{"kegiatan", "nama kegiatan", "aktivitas", "summary"}
	startColumns       = []string{"mulai", "waktu mulai", "start_time", "start"}
	endColumns         = []string{"selesai", "waktu selesai", "end_time", "end"}
	locationColumns    = []string{"lokasi", "tempat", "ruang", "location"}
	descriptionColumns = []string{"keterangan", "deskripsi", "description"}
	statusColumns      = []string{"status"}
)

// RenderICS turns a scraped schedule into an iCalendar document. Rows whose
// start or end time cannot be parsed are left out rather than failing the
// whole export.
func RenderICS(schedule *models.Schedule) string {
	columns := indexColumns(schedule.Headers)

	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\n")
	b.WriteString("VERSION:2.0\n")
	b.WriteString("CALSCALE:GREGORIAN\n")

	for _, row := range schedule.Rows {
		start, ok := parseEventTime(cellAt(row, columns, startColumns))
		if !ok {
			continue
		}
		end, ok := parseEventTime(cellAt(row, columns, endColumns))
		if !ok {
			continue
		}

		summary := cellAt(row, columns, summaryColumns)
		if summary == "" && len(row) > 0 {
			summary = row[0]
		}

		b.WriteString("BEGIN:VEVENT\n")
		fmt.Fprintf(&b, "SUMMARY:%s\n", escapeICSText(summary))
		fmt.Fprintf(&b, "DTSTART:%s\n", start.Format("20060102T150405"))
		fmt.Fprintf(&b, "DTEND:%s\n", end.Format("20060102T150405"))
		if location := cellAt(row, columns, locationColumns); location != "" {
			fmt.Fprintf(&b, "LOCATION:%s\n", escapeICSText(location))
		}
		if description := cellAt(row, columns, descriptionColumns); description != "" {
			fmt.Fprintf(&b, "DESCRIPTION:%s\n", escapeICSText(description))
		}
		if status := cellAt(row, columns, statusColumns); status != "" {
			fmt.Fprintf(&b, "STATUS:%s\n", escapeICSText(status))
		}
		b.WriteString("END:VEVENT\n")
	}

	b.WriteString("END:VCALENDAR\n")
	return b.String()
}

// indexColumns maps normalized header names to their column index.
func indexColumns(headers []string) map[string]int {
	columns := make(map[string]int, len(headers))
	for i, header := range headers {
		columns[strings.ToLower(strings.TrimSpace(header))] = i
	}
	return columns
}

// cellAt returns the row value for the first candidate column present.
func cellAt(row []string, columns map[string]int, candidates []string) string {
	for _, name := range candidates {
		if i, ok := columns[name]; ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
	}
	return ""
}

// parseEventTime reads a portal timestamp like "22 September 2025 08:00",
// translating the month name first.
func parseEventTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for indonesian, english := range indonesianMonths {
		value = strings.ReplaceAll(value, indonesian, english)
	}
	parsed, err := time.Parse(eventTimeLayout, value)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// escapeICSText escapes the characters RFC 5545 reserves in text values.
func escapeICSText(value string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		";", `\;`,
		",", `\,`,
		"\n", `\n`,
	)
	return replacer.Replace(value)
}
