package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"animerank/ingestion/internal/client"
	"animerank/ingestion/internal/models"
)

type fakeRanker struct {
	buckets []models.WeekBucket
	failOn  models.WeekBucket
}

func (r *fakeRanker) RecomputeWeek(_ context.Context, bucket models.WeekBucket) (int, error) {
	if bucket == r.failOn {
		return 0, errors.New("rank failed")
	}
	r.buckets = append(r.buckets, bucket)
	return 1, nil
}

type fakeSyncLogs struct {
	entries []*models.SyncLog
	err     error
}

func (l *fakeSyncLogs) Insert(_ context.Context, entry *models.SyncLog) error {
	if l.err != nil {
		return l.err
	}
	l.entries = append(l.entries, entry)
	return nil
}

func newTestRunner(catalog Catalog, store EpisodeStore, ranker Ranker, logs SyncLogStore) *Runner {
	return NewRunner(NewPipeline(catalog, nil), NewUpserter(store), ranker, logs)
}

func TestRunner_FullRun(t *testing.T) {
	catalog := newStubCatalog()
	catalog.pages[1] = &client.SeasonPage{Data: []client.Anime{tvAnime(1, "Show A", 8000)}}
	catalog.episodes[1] = []client.Episode{
		airedEpisode(1, "2025-10-03T00:00:00+00:00", 4.0),
		airedEpisode(2, "2025-10-10T00:00:00+00:00", 4.2),
	}

	store := newFakeStore()
	ranker := &fakeRanker{}
	logs := &fakeSyncLogs{}

	report, err := newTestRunner(catalog, store, ranker, logs).Run(context.Background(), fallParams())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Inserted)
	assert.Equal(t, 2, report.WeeksRanked)
	assert.Equal(t, []models.WeekBucket{
		{Season: "fall", Year: 2025, Week: 1},
		{Season: "fall", Year: 2025, Week: 2},
	}, ranker.buckets, "each touched week is recomputed exactly once")
	assert.Positive(t, report.Duration)

	require.Len(t, logs.entries, 1)
	entry := logs.entries[0]
	assert.Equal(t, "season_sync", entry.SyncType)
	assert.Equal(t, StatusSuccess, entry.Status)
	assert.Equal(t, "fall", entry.Season)
	assert.Equal(t, 2, entry.ItemsCreated)
	assert.Empty(t, entry.ErrorMessage)
}

func TestRunner_RerunRanksSameWeeksAgain(t *testing.T) {
	catalog := newStubCatalog()
	catalog.pages[1] = &client.SeasonPage{Data: []client.Anime{tvAnime(1, "Show A", 8000)}}
	catalog.episodes[1] = []client.Episode{airedEpisode(1, "2025-10-03T00:00:00+00:00", 4.0)}

	store := newFakeStore()
	ranker := &fakeRanker{}
	runner := newTestRunner(catalog, store, ranker, nil)

	report, err := runner.Run(context.Background(), fallParams())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted)

	report, err = runner.Run(context.Background(), fallParams())
	require.NoError(t, err)
	assert.Zero(t, report.Inserted)
	assert.Equal(t, 1, report.Updated)
	assert.Len(t, ranker.buckets, 2, "rankings recompute on every run, updates included")
}

func TestRunner_RankFailureIsContained(t *testing.T) {
	catalog := newStubCatalog()
	catalog.pages[1] = &client.SeasonPage{Data: []client.Anime{tvAnime(1, "Show A", 8000)}}
	catalog.episodes[1] = []client.Episode{
		airedEpisode(1, "2025-10-03T00:00:00+00:00", 4.0),
		airedEpisode(2, "2025-10-10T00:00:00+00:00", 4.2),
	}

	ranker := &fakeRanker{failOn: models.WeekBucket{Season: "fall", Year: 2025, Week: 1}}
	logs := &fakeSyncLogs{}

	report, err := newTestRunner(catalog, newFakeStore(), ranker, logs).Run(context.Background(), fallParams())
	require.NoError(t, err)

	assert.Equal(t, 1, report.WeeksRanked, "week 2 still ranked after week 1 failure")
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "fall-2025-w1")

	require.Len(t, logs.entries, 1)
	assert.Equal(t, StatusPartial, logs.entries[0].Status)
}

func TestRunner_TotalOutageIsError(t *testing.T) {
	catalog := newStubCatalog()
	catalog.pageErrs[1] = errors.New("service unavailable")
	logs := &fakeSyncLogs{}

	report, err := newTestRunner(catalog, newFakeStore(), &fakeRanker{}, logs).Run(context.Background(), fallParams())
	require.NoError(t, err)

	assert.True(t, report.Empty())
	require.Len(t, logs.entries, 1)
	assert.Equal(t, StatusError, logs.entries[0].Status)
	assert.Contains(t, logs.entries[0].ErrorMessage, "service unavailable")
}

func TestRunner_SyncLogFailureIsNonFatal(t *testing.T) {
	catalog := newStubCatalog()
	catalog.pages[1] = &client.SeasonPage{Data: []client.Anime{tvAnime(1, "Show A", 8000)}}
	catalog.episodes[1] = []client.Episode{airedEpisode(1, "2025-10-03T00:00:00+00:00", 4.0)}

	logs := &fakeSyncLogs{err: errors.New("audit table missing")}

	report, err := newTestRunner(catalog, newFakeStore(), &fakeRanker{}, logs).Run(context.Background(), fallParams())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted)
}

func TestRunner_NilSyncLogStore(t *testing.T) {
	catalog := newStubCatalog()
	catalog.pages[1] = &client.SeasonPage{Data: []client.Anime{tvAnime(1, "Show A", 8000)}}
	catalog.episodes[1] = []client.Episode{airedEpisode(1, "2025-10-03T00:00:00+00:00", 4.0)}

	report, err := newTestRunner(catalog, newFakeStore(), &fakeRanker{}, nil).Run(context.Background(), fallParams())
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, runStatus(report))
}
