package season

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"animerank/ingestion/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestClassify_SeasonBoundaries(t *testing.T) {
	tests := []struct {
		name   string
		date   time.Time
		season string
		year   int
	}{
		{"january is winter", date(2025, time.January, 15), Winter, 2025},
		{"march 31 still winter", date(2025, time.March, 31), Winter, 2025},
		{"april 1 starts spring", date(2025, time.April, 1), Spring, 2025},
		{"june is spring", date(2025, time.June, 30), Spring, 2025},
		{"july 1 starts summer", date(2025, time.July, 1), Summer, 2025},
		{"october 1 starts fall", date(2025, time.October, 1), Fall, 2025},
		{"december 31 still fall", date(2025, time.December, 31), Fall, 2025},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, err := Classify(tt.date)
			require.NoError(t, err)
			assert.Equal(t, tt.season, bucket.Season)
			assert.Equal(t, tt.year, bucket.Year)
		})
	}
}

func TestClassify_WeekOne(t *testing.T) {
	// Fall 2025 starts on a Wednesday; the first Sunday is October 5, so
	// week 1 covers October 1-5.
	for d := 1; d <= 5; d++ {
		bucket, err := Classify(date(2025, time.October, d))
		require.NoError(t, err)
		assert.Equal(t, 1, bucket.Week, "October %d 2025 should be week 1", d)
	}

	// Monday October 6 opens week 2.
	bucket, err := Classify(date(2025, time.October, 6))
	require.NoError(t, err)
	assert.Equal(t, 2, bucket.Week)
}

func TestClassify_WeekOneSingleDay(t *testing.T) {
	// Fall 2023 starts on a Sunday, so week 1 is exactly one day long.
	bucket, err := Classify(date(2023, time.October, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, bucket.Week)

	bucket, err = Classify(date(2023, time.October, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, bucket.Week)
}

func TestClassify_MondayToSundaySpans(t *testing.T) {
	tests := []struct {
		date time.Time
		week int
	}{
		{date(2025, time.October, 6), 2},  // Monday
		{date(2025, time.October, 12), 2}, // Sunday closes week 2
		{date(2025, time.October, 13), 3}, // next Monday
		{date(2025, time.October, 19), 3},
		{date(2025, time.November, 3), 6},
		{date(2025, time.December, 31), 14}, // season's last day
	}

	for _, tt := range tests {
		bucket, err := Classify(tt.date)
		require.NoError(t, err)
		assert.Equal(t, tt.week, bucket.Week, "wrong week for %s", tt.date.Format("2006-01-02"))
	}
}

func TestClassify_WeekStaysInBounds(t *testing.T) {
	// Every day of a leap year must land in week 1..15 of its own season.
	d := date(2024, time.January, 1)
	for d.Year() == 2024 {
		bucket, err := Classify(d)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, bucket.Week, 1, "date %s", d.Format("2006-01-02"))
		assert.LessOrEqual(t, bucket.Week, 15, "date %s", d.Format("2006-01-02"))
		d = d.AddDate(0, 0, 1)
	}
}

func TestClassify_ZeroTime(t *testing.T) {
	_, err := Classify(time.Time{})
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestClassify_TimezoneNormalized(t *testing.T) {
	// 23:00 JST on October 5 is still October 5 in UTC terms only when the
	// instant itself falls on that UTC day. 2025-10-06T08:00+09:00 is
	// 2025-10-05T23:00Z, which belongs to week 1.
	jst := time.FixedZone("JST", 9*3600)
	bucket, err := Classify(time.Date(2025, time.October, 6, 8, 0, 0, 0, jst))
	require.NoError(t, err)
	assert.Equal(t, 1, bucket.Week)
}

func TestClassifyAirDate(t *testing.T) {
	bucket, err := ClassifyAirDate("2025-10-05T17:00:00+00:00")
	require.NoError(t, err)
	assert.Equal(t, models.WeekBucket{Season: Fall, Year: 2025, Week: 1}, bucket)

	_, err = ClassifyAirDate("")
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = ClassifyAirDate("october 5th")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestParseAirDate(t *testing.T) {
	parsed, err := ParseAirDate("2025-01-11T00:00:00+09:00")
	require.NoError(t, err)
	assert.Equal(t, 2025, parsed.Year())

	_, err = ParseAirDate("2025-01-11")
	assert.ErrorIs(t, err, ErrInvalidDate, "date without time should be rejected")
}

func TestSeasonStart(t *testing.T) {
	assert.Equal(t, date(2025, time.January, 1), SeasonStart(Winter, 2025))
	assert.Equal(t, date(2025, time.April, 1), SeasonStart(Spring, 2025))
	assert.Equal(t, date(2025, time.July, 1), SeasonStart(Summer, 2025))
	assert.Equal(t, date(2025, time.October, 1), SeasonStart(Fall, 2025))
}

func TestCurrent(t *testing.T) {
	name, year := Current(date(2025, time.August, 30))
	assert.Equal(t, Summer, name)
	assert.Equal(t, 2025, year)

	name, year = Current(date(2026, time.January, 1))
	assert.Equal(t, Winter, name)
	assert.Equal(t, 2026, year)
}
