package ingest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"animerank/ingestion/internal/metrics"
	"animerank/ingestion/internal/models"
)

// EpisodeStore is the slice of the repository the upserter needs.
type EpisodeStore interface {
	UpsertBatch(ctx context.Context, episodes []*models.Episode) (inserted, updated int, err error)
}

// chunkSize bounds one database round trip. Large seasons split into
// multiple batches so a single failure cannot take down the whole write.
const chunkSize = 500

// UpsertResult summarizes one batch write.
type UpsertResult struct {
	Inserted int
	Updated  int
	Failed   int
	Errors   []string
}

// Upserter de-duplicates episode batches by natural key and writes them in
// chunks. A failed chunk is reported and skipped; the rest of the batch
// still lands.
type Upserter struct {
	store EpisodeStore
}

func NewUpserter(store EpisodeStore) *Upserter {
	return &Upserter{store: store}
}

// Upsert writes the batch. Refetching the same season converges to updates
// with no duplicate rows.
func (u *Upserter) Upsert(ctx context.Context, episodes []*models.Episode) UpsertResult {
	var res UpsertResult

	deduped := dedupe(episodes)
	if dropped := len(episodes) - len(deduped); dropped > 0 {
		log.Debug().Int("dropped", dropped).Msg("Collapsed duplicate episode keys in batch")
	}

	for start := 0; start < len(deduped); start += chunkSize {
		end := start + chunkSize
		if end > len(deduped) {
			end = len(deduped)
		}
		chunk := deduped[start:end]

		inserted, updated, err := u.store.UpsertBatch(ctx, chunk)
		res.Inserted += inserted
		res.Updated += updated
		if err != nil {
			failed := len(chunk) - inserted - updated
			res.Failed += failed
			res.Errors = append(res.Errors, fmt.Sprintf("upsert chunk %d-%d: %v", start, end-1, err))
			metrics.RecordError("upserter", "chunk_write")
			log.Error().Err(err).Int("start", start).Int("end", end-1).Msg("Upsert chunk failed")
		}
	}

	metrics.RecordUpserts(res.Inserted, res.Updated, res.Failed)
	return res
}

// dedupe collapses records sharing a natural key, keeping the last value at
// the first-seen position so catalog order is preserved.
func dedupe(episodes []*models.Episode) []*models.Episode {
	out := make([]*models.Episode, 0, len(episodes))
	index := make(map[models.EpisodeKey]int, len(episodes))

	for _, ep := range episodes {
		key := ep.Key()
		if i, ok := index[key]; ok {
			out[i] = ep
			continue
		}
		index[key] = len(out)
		out = append(out, ep)
	}

	return out
}
