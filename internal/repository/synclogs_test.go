package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"animerank/ingestion/internal/models"
)

func TestSyncLogRepository_Insert(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	entry := &models.SyncLog{
		SyncType:       "season_sync",
		Status:         "success",
		Season:         "fall",
		Year:           2025,
		ItemsProcessed: 120,
		ItemsCreated:   100,
		ItemsUpdated:   20,
		DurationMS:     4500,
	}

	err := db.SyncLogs.Insert(ctx, entry)
	require.NoError(t, err, "Should insert sync log")
	assert.Positive(t, entry.ID, "Insert should backfill the generated id")
	assert.WithinDuration(t, time.Now(), entry.CreatedAt, time.Minute)
}

func TestSyncLogRepository_ListRecent(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	entries := []*models.SyncLog{
		{SyncType: "season_sync", Status: "success", Season: "summer", Year: 2025, DurationMS: 100},
		{SyncType: "season_sync", Status: "partial", Season: "fall", Year: 2025,
			ErrorMessage: "episodes for anime 42: timeout", DurationMS: 200},
		{SyncType: "season_sync", Status: "error", Season: "fall", Year: 2025, DurationMS: 50},
	}
	for _, entry := range entries {
		require.NoError(t, db.SyncLogs.Insert(ctx, entry))
	}

	recent, err := db.SyncLogs.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2, "Limit should cap the result")

	// Newest first.
	assert.Equal(t, "error", recent[0].Status)
	assert.Equal(t, "partial", recent[1].Status)
	assert.Equal(t, "episodes for anime 42: timeout", recent[1].ErrorMessage)

	// The success row carried no error; COALESCE maps NULL back to "".
	all, err := db.SyncLogs.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Empty(t, all[2].ErrorMessage)
}
