// Package season maps calendar dates to broadcast seasons and week buckets.
//
// Seasons follow the Japanese broadcast pattern: winter (Jan-Mar), spring
// (Apr-Jun), summer (Jul-Sep), fall (Oct-Dec). Week 1 runs from the season's
// first calendar day through the first Sunday on or after it; every later
// week is a Monday-Sunday span. All math is in UTC.
package season

import (
	"errors"
	"time"

	"animerank/ingestion/internal/models"
)

// ErrInvalidDate is returned when an air-date cannot be parsed or does not
// represent a valid instant. Callers must handle or propagate it; the
// ingestion pipeline falls back to the ordinal week approximation.
var ErrInvalidDate = errors.New("invalid air date")

const (
	Winter = "winter"
	Spring = "spring"
	Summer = "summer"
	Fall   = "fall"
)

// maxWeek absorbs calendar irregularities: quarters are 90-92 days, so 13-14
// full weeks plus the short week 1.
const maxWeek = 15

// Names lists the four season names in calendar order.
var Names = []string{Winter, Spring, Summer, Fall}

// Classify maps a date to its broadcast season and week-within-season.
func Classify(t time.Time) (models.WeekBucket, error) {
	if t.IsZero() {
		return models.WeekBucket{}, ErrInvalidDate
	}

	t = t.UTC()
	name := nameForMonth(t.Month())

	start := SeasonStart(name, t.Year())
	week := weekWithin(start, t)

	return models.WeekBucket{Season: name, Year: t.Year(), Week: week}, nil
}

// ClassifyAirDate parses an upstream air-date string (RFC 3339, as the
// catalog API emits) and classifies it.
func ClassifyAirDate(aired string) (models.WeekBucket, error) {
	t, err := ParseAirDate(aired)
	if err != nil {
		return models.WeekBucket{}, err
	}
	return Classify(t)
}

// ParseAirDate parses an RFC 3339 air-date. Empty or malformed input yields
// ErrInvalidDate.
func ParseAirDate(aired string) (time.Time, error) {
	if aired == "" {
		return time.Time{}, ErrInvalidDate
	}
	t, err := time.Parse(time.RFC3339, aired)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// SeasonStart returns the UTC midnight of the season's first calendar day.
func SeasonStart(name string, year int) time.Time {
	var month time.Month
	switch name {
	case Winter:
		month = time.January
	case Spring:
		month = time.April
	case Summer:
		month = time.July
	default:
		month = time.October
	}
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}

// Current returns the season name and year for the given instant. The cron
// scheduler uses it to pick which season to refresh.
func Current(now time.Time) (string, int) {
	now = now.UTC()
	return nameForMonth(now.Month()), now.Year()
}

func nameForMonth(m time.Month) string {
	switch {
	case m <= time.March:
		return Winter
	case m <= time.June:
		return Spring
	case m <= time.September:
		return Summer
	default:
		return Fall
	}
}

// weekWithin computes the 1-based week index of t relative to the season
// start. Week 1 ends on the first Sunday on/after the start; week 2 begins
// the following Monday.
func weekWithin(start, t time.Time) int {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

	// First Sunday on or after the season start (may be the start itself).
	sundayOffset := (7 - int(start.Weekday())) % 7
	firstSunday := start.AddDate(0, 0, sundayOffset)

	week := 1
	if day.After(firstSunday) {
		daysPastMonday := int(day.Sub(firstSunday.AddDate(0, 0, 1)).Hours() / 24)
		week = 2 + daysPastMonday/7
	}

	return clampWeek(week)
}

func clampWeek(week int) int {
	if week < 1 {
		return 1
	}
	if week > maxWeek {
		return maxWeek
	}
	return week
}
