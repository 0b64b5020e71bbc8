package scraper

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// cleanText collapses runs of whitespace into single spaces and trims.
func cleanText(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2006-01-02 15:04:05",
}

// parseDate tries the portal's known date formats in order. The zero
// time and false signal an unrecognized format; callers keep the record
// and log the dropped value.
func parseDate(s string) (time.Time, bool) {
	s = cleanText(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var budgetCharsRe = regexp.MustCompile(`[^\d.]`)

// parseBudget strips currency symbols and separators and parses the
// remainder. Placeholder values like "₱ ," reduce to nothing and yield
// nil rather than an error.
func parseBudget(s string) *float64 {
	cleaned := budgetCharsRe.ReplaceAllString(s, "")
	if cleaned == "" {
		return nil
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &value
}

// absoluteURL prefixes relative portal paths with the base URL.
func absoluteURL(base, href string) string {
	if href == "" || strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return strings.TrimSuffix(base, "/") + href
}
