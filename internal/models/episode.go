package models

import (
	"database/sql"
	"fmt"
	"time"
)

// WeekBucket identifies the ranking scope for episodes: one broadcast week
// within one season. Every episode belongs to exactly one bucket.
type WeekBucket struct {
	Season string
	Year   int
	Week   int
}

func (b WeekBucket) String() string {
	return fmt.Sprintf("%s-%d-w%d", b.Season, b.Year, b.Week)
}

// EpisodeKey is the natural key used for upsert conflict resolution.
type EpisodeKey struct {
	AnimeID       int
	EpisodeNumber int
	Week          int
}

// Episode represents one row of the weekly_episodes table
type Episode struct {
	ID int `db:"id"`

	AnimeID           int            `db:"anime_id"`
	AnimeTitle        string         `db:"anime_title"`
	AnimeTitleEnglish sql.NullString `db:"anime_title_english"`
	AnimeImageURL     string         `db:"anime_image_url"`
	TitleType         string         `db:"title_type"`
	TitleStatus       string         `db:"title_status"`
	Members           int            `db:"members"`

	EpisodeNumber int             `db:"episode_number"`
	EpisodeName   string          `db:"episode_name"`
	Score         sql.NullFloat64 `db:"episode_score"`
	AiredAt       sql.NullTime    `db:"aired_at"`

	Season string `db:"season"`
	Year   int    `db:"year"`
	Week   int    `db:"week_number"`
	// WeekEstimated marks rows whose bucket was approximated from the
	// episode ordinal because the upstream air-date was missing.
	WeekEstimated bool `db:"week_estimated"`

	PositionInWeek sql.NullInt32 `db:"position_in_week"`

	Genres       []string `db:"genres"`
	Themes       []string `db:"themes"`
	Demographics []string `db:"demographics"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Key returns the episode's natural key.
func (e *Episode) Key() EpisodeKey {
	return EpisodeKey{AnimeID: e.AnimeID, EpisodeNumber: e.EpisodeNumber, Week: e.Week}
}

// Bucket returns the week bucket the episode belongs to.
func (e *Episode) Bucket() WeekBucket {
	return WeekBucket{Season: e.Season, Year: e.Year, Week: e.Week}
}
