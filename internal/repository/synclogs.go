package repository

import (
	"context"
	"fmt"

	"animerank/ingestion/internal/models"

	"github.com/rs/zerolog/log"
)

// SyncLogRepository handles sync audit log database operations
type SyncLogRepository struct {
	db *Database
}

// Insert records one sync run outcome.
func (r *SyncLogRepository) Insert(ctx context.Context, entry *models.SyncLog) error {
	query := `
		INSERT INTO sync_logs (
			sync_type, status, season, year,
			items_processed, items_created, items_updated,
			error_message, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
		RETURNING id, created_at
	`

	err := r.db.Pool.QueryRow(
		ctx, query,
		entry.SyncType, entry.Status, entry.Season, entry.Year,
		entry.ItemsProcessed, entry.ItemsCreated, entry.ItemsUpdated,
		entry.ErrorMessage, entry.DurationMS,
	).Scan(&entry.ID, &entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert sync log: %w", err)
	}

	log.Debug().
		Str("sync_type", entry.SyncType).
		Str("status", entry.Status).
		Int("id", entry.ID).
		Msg("Sync log recorded")

	return nil
}

// ListRecent retrieves the most recent sync runs, newest first.
func (r *SyncLogRepository) ListRecent(ctx context.Context, limit int) ([]*models.SyncLog, error) {
	query := `
		SELECT id, sync_type, status, season, year,
		       items_processed, items_created, items_updated,
		       COALESCE(error_message, ''), duration_ms, created_at
		FROM sync_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.SyncLog
	for rows.Next() {
		var entry models.SyncLog
		err := rows.Scan(
			&entry.ID, &entry.SyncType, &entry.Status, &entry.Season, &entry.Year,
			&entry.ItemsProcessed, &entry.ItemsCreated, &entry.ItemsUpdated,
			&entry.ErrorMessage, &entry.DurationMS, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync logs: %w", err)
	}

	return entries, nil
}
