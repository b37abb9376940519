// Package dates converts between the DD/MM/YYYY form shown in the app and the
// YYYY-MM-DD form kept in storage.
package dates

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DisplayLayout = "02/01/2006"
	StorageLayout = "2006-01-02"
)

// ParseDisplay parses "DD/MM/YYYY". Single-digit day and month are accepted
// ("5/3/2026").
func ParseDisplay(s string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("date %q: want DD/MM/YYYY", s)
	}

	day, err := strconv.Atoi(parts[0])
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("date %q: invalid day", s)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("date %q: invalid month", s)
	}
	year, err := strconv.Atoi(parts[2])
	if err != nil || len(parts[2]) != 4 {
		return time.Time{}, fmt.Errorf("date %q: invalid year", s)
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes 31/02 into March; reject instead.
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, fmt.Errorf("date %q: day out of range for month", s)
	}
	return t, nil
}

// FormatDisplay renders t as DD/MM/YYYY. The zero time renders as "".
func FormatDisplay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DisplayLayout)
}

// ParseStorage parses "YYYY-MM-DD".
func ParseStorage(s string) (time.Time, error) {
	t, err := time.Parse(StorageLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

// FormatStorage renders t as YYYY-MM-DD. The zero time renders as "".
func FormatStorage(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(StorageLayout)
}

// Parse accepts either form. Clients on older builds still send display dates.
func Parse(s string) (time.Time, error) {
	if strings.Contains(s, "/") {
		return ParseDisplay(s)
	}
	return ParseStorage(s)
}

// Today returns the current date at midnight UTC.
func Today() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
