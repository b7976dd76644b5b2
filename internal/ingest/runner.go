package ingest

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"animerank/ingestion/internal/metrics"
	"animerank/ingestion/internal/models"
)

// Ranker recomputes positions for one week bucket.
type Ranker interface {
	RecomputeWeek(ctx context.Context, bucket models.WeekBucket) (int, error)
}

// SyncLogStore records an audit row per run. Optional.
type SyncLogStore interface {
	Insert(ctx context.Context, entry *models.SyncLog) error
}

// Run statuses recorded in sync_logs and metrics.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusError   = "error"
)

// Runner drives one full sync: fetch and normalize, upsert, then recompute
// rankings for every week the batch touched.
type Runner struct {
	pipeline *Pipeline
	upserter *Upserter
	ranker   Ranker
	logs     SyncLogStore // may be nil
}

func NewRunner(pipeline *Pipeline, upserter *Upserter, ranker Ranker, logs SyncLogStore) *Runner {
	return &Runner{pipeline: pipeline, upserter: upserter, ranker: ranker, logs: logs}
}

// Run executes a season sync end to end and returns its report. Contained
// failures live in the report; the returned error is non-nil only for
// context cancellation.
func (r *Runner) Run(ctx context.Context, params Params) (*models.IngestReport, error) {
	params = params.Normalize()
	start := time.Now()

	episodes, report, err := r.pipeline.SyncSeason(ctx, params)
	if err != nil {
		r.finish(ctx, params, report, start)
		return report, err
	}

	res := r.upserter.Upsert(ctx, episodes)
	report.Inserted = res.Inserted
	report.Updated = res.Updated
	report.Errors = append(report.Errors, res.Errors...)

	for _, bucket := range affectedWeeks(episodes) {
		ranked, err := r.ranker.RecomputeWeek(ctx, bucket)
		if err != nil {
			report.AddError("rank " + bucket.String() + ": " + err.Error())
			metrics.RecordError("runner", "rank_week")
			continue
		}
		report.WeeksRanked++
		log.Debug().Str("bucket", bucket.String()).Int("ranked", ranked).Msg("Week ranking recomputed")
	}

	r.finish(ctx, params, report, start)
	return report, ctx.Err()
}

// finish stamps the duration, records metrics, and writes the audit row.
func (r *Runner) finish(ctx context.Context, params Params, report *models.IngestReport, start time.Time) {
	report.Duration = time.Since(start)

	status := runStatus(report)
	metrics.RecordSync(params.Season, status, report.Duration.Seconds())

	log.Info().
		Str("season", params.Season).
		Int("year", params.Year).
		Str("status", status).
		Int("inserted", report.Inserted).
		Int("updated", report.Updated).
		Int("weeks_ranked", report.WeeksRanked).
		Int("errors", len(report.Errors)).
		Dur("duration", report.Duration).
		Msg("Season sync finished")

	if r.logs == nil {
		return
	}

	entry := &models.SyncLog{
		SyncType:       "season_sync",
		Status:         status,
		Season:         params.Season,
		Year:           params.Year,
		ItemsProcessed: report.EpisodesEmitted,
		ItemsCreated:   report.Inserted,
		ItemsUpdated:   report.Updated,
		ErrorMessage:   strings.Join(report.Errors, "; "),
		DurationMS:     report.Duration.Milliseconds(),
	}
	if err := r.logs.Insert(ctx, entry); err != nil {
		log.Warn().Err(err).Msg("Failed to write sync log entry")
	}
}

func runStatus(report *models.IngestReport) string {
	switch {
	case len(report.Errors) == 0:
		return StatusSuccess
	case report.Empty():
		return StatusError
	default:
		return StatusPartial
	}
}

// affectedWeeks returns the distinct week buckets in the batch, ordered for
// deterministic recomputation.
func affectedWeeks(episodes []*models.Episode) []models.WeekBucket {
	seen := make(map[models.WeekBucket]bool)
	var buckets []models.WeekBucket
	for _, ep := range episodes {
		b := ep.Bucket()
		if !seen[b] {
			seen[b] = true
			buckets = append(buckets, b)
		}
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Year != buckets[j].Year {
			return buckets[i].Year < buckets[j].Year
		}
		if buckets[i].Season != buckets[j].Season {
			return buckets[i].Season < buckets[j].Season
		}
		return buckets[i].Week < buckets[j].Week
	})
	return buckets
}
