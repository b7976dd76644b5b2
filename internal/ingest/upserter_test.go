package ingest

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"animerank/ingestion/internal/models"
)

// fakeStore records upserted batches and simulates existing rows.
type fakeStore struct {
	existing map[models.EpisodeKey]bool
	batches  [][]*models.Episode
	failOn   int // 1-based batch index to fail, 0 disables
}

func newFakeStore() *fakeStore {
	return &fakeStore{existing: make(map[models.EpisodeKey]bool)}
}

func (s *fakeStore) UpsertBatch(_ context.Context, eps []*models.Episode) (int, int, error) {
	s.batches = append(s.batches, eps)
	if s.failOn > 0 && len(s.batches) == s.failOn {
		return 0, 0, errors.New("connection lost")
	}

	inserted, updated := 0, 0
	for _, ep := range eps {
		if s.existing[ep.Key()] {
			updated++
		} else {
			s.existing[ep.Key()] = true
			inserted++
		}
	}
	return inserted, updated, nil
}

func storedEpisode(animeID, number, week int) *models.Episode {
	return &models.Episode{
		AnimeID:       animeID,
		AnimeTitle:    "Some Show",
		EpisodeNumber: number,
		Season:        "fall",
		Year:          2025,
		Week:          week,
	}
}

func TestUpsert_InsertThenUpdate(t *testing.T) {
	store := newFakeStore()
	u := NewUpserter(store)

	batch := []*models.Episode{
		storedEpisode(1, 1, 1),
		storedEpisode(1, 2, 2),
		storedEpisode(2, 1, 1),
	}

	res := u.Upsert(context.Background(), batch)
	assert.Equal(t, 3, res.Inserted)
	assert.Zero(t, res.Updated)

	// Refetching the same season converges to pure updates.
	res = u.Upsert(context.Background(), batch)
	assert.Zero(t, res.Inserted)
	assert.Equal(t, 3, res.Updated)
	assert.Zero(t, res.Failed)
	assert.Empty(t, res.Errors)
}

func TestUpsert_DedupByNaturalKey(t *testing.T) {
	store := newFakeStore()
	u := NewUpserter(store)

	first := storedEpisode(1, 1, 1)
	first.Score = sql.NullFloat64{Float64: 4.0, Valid: true}
	refreshed := storedEpisode(1, 1, 1)
	refreshed.Score = sql.NullFloat64{Float64: 4.4, Valid: true}
	// Same episode number, different week: a distinct row, not a duplicate.
	otherWeek := storedEpisode(1, 1, 2)

	res := u.Upsert(context.Background(), []*models.Episode{first, refreshed, otherWeek})
	assert.Equal(t, 2, res.Inserted)

	require.Len(t, store.batches, 1)
	require.Len(t, store.batches[0], 2)
	assert.InDelta(t, 4.4, store.batches[0][0].Score.Float64, 0.001, "later duplicate wins")
}

func TestUpsert_Chunking(t *testing.T) {
	store := newFakeStore()
	u := NewUpserter(store)

	var batch []*models.Episode
	for i := 0; i < chunkSize+200; i++ {
		batch = append(batch, storedEpisode(i+1, 1, 1))
	}

	res := u.Upsert(context.Background(), batch)
	assert.Equal(t, chunkSize+200, res.Inserted)

	require.Len(t, store.batches, 2)
	assert.Len(t, store.batches[0], chunkSize)
	assert.Len(t, store.batches[1], 200)
}

func TestUpsert_FailedChunkDoesNotStopOthers(t *testing.T) {
	store := newFakeStore()
	store.failOn = 1
	u := NewUpserter(store)

	var batch []*models.Episode
	for i := 0; i < chunkSize+50; i++ {
		batch = append(batch, storedEpisode(i+1, 1, 1))
	}

	res := u.Upsert(context.Background(), batch)
	assert.Equal(t, 50, res.Inserted, "second chunk still lands")
	assert.Equal(t, chunkSize, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "connection lost")
}

func TestUpsert_EmptyBatch(t *testing.T) {
	store := newFakeStore()
	res := NewUpserter(store).Upsert(context.Background(), nil)
	assert.Zero(t, res.Inserted)
	assert.Zero(t, res.Updated)
	assert.Empty(t, store.batches)
}
