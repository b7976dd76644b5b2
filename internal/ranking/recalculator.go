// Package ranking recomputes the strict per-week ordering of episodes.
package ranking

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"animerank/ingestion/internal/metrics"
	"animerank/ingestion/internal/models"
)

// WeekStore is the slice of the storage layer the recalculator needs.
type WeekStore interface {
	ListByWeek(ctx context.Context, bucket models.WeekBucket) ([]*models.Episode, error)
	UpdatePosition(ctx context.Context, key models.EpisodeKey, position int) error
}

// InconsistencyError reports a post-recompute invariant violation: the
// persisted positions for a bucket do not form a contiguous 1..N sequence.
// It is fatal for that bucket only; other buckets are unaffected.
type InconsistencyError struct {
	Bucket models.WeekBucket
	Detail string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("ranking inconsistency in %s: %s", e.Bucket, e.Detail)
}

// Recalculator assigns position_in_week for every episode in a bucket.
// Recomputation is deterministic and idempotent: re-running against the same
// rows yields the same positions, so concurrent re-runs are safe.
type Recalculator struct {
	store WeekStore
}

// New creates a Recalculator backed by the given store.
func New(store WeekStore) *Recalculator {
	return &Recalculator{store: store}
}

// RecomputeWeek loads the bucket, orders it by score descending with null
// scores strictly last, and persists 1-based positions. Ties (including
// equal nulls) break by anime id, then episode number, so the ordering is a
// total order. Returns the number of episodes ranked.
func (r *Recalculator) RecomputeWeek(ctx context.Context, bucket models.WeekBucket) (int, error) {
	episodes, err := r.store.ListByWeek(ctx, bucket)
	if err != nil {
		return 0, fmt.Errorf("failed to load week %s: %w", bucket, err)
	}

	if len(episodes) == 0 {
		log.Debug().Stringer("bucket", bucket).Msg("No episodes in week, nothing to rank")
		return 0, nil
	}

	sort.SliceStable(episodes, func(i, j int) bool {
		return Less(episodes[i], episodes[j])
	})

	for i, ep := range episodes {
		position := i + 1
		if err := r.store.UpdatePosition(ctx, ep.Key(), position); err != nil {
			return 0, fmt.Errorf("failed to persist position %d in %s: %w", position, bucket, err)
		}
	}

	// Re-read the bucket and check the stored positions, not the loop's own
	// bookkeeping. Duplicate rows sharing a natural key collapse under the
	// keyed update and leave a gap that only the persisted state shows.
	persisted, err := r.store.ListByWeek(ctx, bucket)
	if err != nil {
		return 0, fmt.Errorf("failed to re-read week %s after recompute: %w", bucket, err)
	}
	if err := verifyContiguous(bucket, persisted, len(episodes)); err != nil {
		metrics.RecordError("ranking", "inconsistency")
		return 0, err
	}

	metrics.WeeksRanked.Inc()
	log.Info().
		Stringer("bucket", bucket).
		Int("ranked", len(episodes)).
		Msg("Week ranking recomputed")

	return len(episodes), nil
}

// Less is the ranking order: higher scores first, null scores strictly after
// every non-null score, ties broken by anime id then episode number.
func Less(a, b *models.Episode) bool {
	switch {
	case a.Score.Valid && !b.Score.Valid:
		return true
	case !a.Score.Valid && b.Score.Valid:
		return false
	case a.Score.Valid && b.Score.Valid && a.Score.Float64 != b.Score.Float64:
		return a.Score.Float64 > b.Score.Float64
	}

	if a.AnimeID != b.AnimeID {
		return a.AnimeID < b.AnimeID
	}
	return a.EpisodeNumber < b.EpisodeNumber
}

func verifyContiguous(bucket models.WeekBucket, persisted []*models.Episode, n int) error {
	if len(persisted) != n {
		return &InconsistencyError{Bucket: bucket, Detail: fmt.Sprintf("ranked %d episodes but %d persisted", n, len(persisted))}
	}

	positions := make(map[int]int, n)
	for _, ep := range persisted {
		if !ep.PositionInWeek.Valid {
			return &InconsistencyError{Bucket: bucket, Detail: fmt.Sprintf("episode %d/%d has no position after recompute", ep.AnimeID, ep.EpisodeNumber)}
		}
		positions[int(ep.PositionInWeek.Int32)]++
	}

	for want := 1; want <= n; want++ {
		switch positions[want] {
		case 1:
		case 0:
			return &InconsistencyError{Bucket: bucket, Detail: fmt.Sprintf("missing position %d of %d", want, n)}
		default:
			return &InconsistencyError{Bucket: bucket, Detail: fmt.Sprintf("duplicate position %d of %d", want, n)}
		}
	}
	return nil
}
