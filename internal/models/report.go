package models

import "time"

// IngestReport summarizes one season sync run for the caller to log or display.
type IngestReport struct {
	Season string `json:"season"`
	Year   int    `json:"year"`

	PagesFetched    int `json:"pages_fetched"`
	TitlesProcessed int `json:"titles_processed"`
	TitlesSkipped   int `json:"titles_skipped"` // below popularity threshold or wrong season/type
	EpisodesEmitted int `json:"episodes_emitted"`
	// EpisodesEstimated counts episodes whose week bucket came from the
	// ordinal fallback rather than an air-date.
	EpisodesEstimated int `json:"episodes_estimated"`

	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`

	WeeksRanked int `json:"weeks_ranked"`

	Errors   []string      `json:"errors"`
	Duration time.Duration `json:"duration_ms"`
}

// AddError records a contained per-title or per-page failure.
func (r *IngestReport) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// Empty reports whether the run produced nothing at all. Combined with a
// non-empty error list it flags a total upstream outage.
func (r *IngestReport) Empty() bool {
	return r.PagesFetched == 0 && r.EpisodesEmitted == 0
}

// SyncLog is one audit row describing a completed (or failed) sync run.
type SyncLog struct {
	ID             int       `db:"id"`
	SyncType       string    `db:"sync_type"`
	Status         string    `db:"status"`
	Season         string    `db:"season"`
	Year           int       `db:"year"`
	ItemsProcessed int       `db:"items_processed"`
	ItemsCreated   int       `db:"items_created"`
	ItemsUpdated   int       `db:"items_updated"`
	ErrorMessage   string    `db:"error_message"`
	DurationMS     int64     `db:"duration_ms"`
	CreatedAt      time.Time `db:"created_at"`
}
