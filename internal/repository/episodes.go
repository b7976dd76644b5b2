package repository

import (
	"context"
	"fmt"

	"animerank/ingestion/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// EpisodeRepository handles weekly episode database operations
type EpisodeRepository struct {
	db *Database
}

const upsertEpisodeQuery = `
	INSERT INTO weekly_episodes (
		anime_id, anime_title, anime_title_english, anime_image_url,
		title_type, title_status, members,
		episode_number, episode_name, episode_score, aired_at,
		season, year, week_number, week_estimated,
		genres, themes, demographics
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	ON CONFLICT (anime_id, episode_number, week_number) DO UPDATE SET
		anime_title = EXCLUDED.anime_title,
		anime_title_english = EXCLUDED.anime_title_english,
		anime_image_url = EXCLUDED.anime_image_url,
		title_type = EXCLUDED.title_type,
		title_status = EXCLUDED.title_status,
		members = EXCLUDED.members,
		episode_name = EXCLUDED.episode_name,
		episode_score = EXCLUDED.episode_score,
		aired_at = EXCLUDED.aired_at,
		season = EXCLUDED.season,
		year = EXCLUDED.year,
		week_estimated = EXCLUDED.week_estimated,
		genres = EXCLUDED.genres,
		themes = EXCLUDED.themes,
		demographics = EXCLUDED.demographics,
		updated_at = NOW()
	RETURNING (xmax = 0) AS inserted
`

// Upsert inserts or updates a single episode keyed by its natural key.
// Returns true when the row was newly inserted.
func (r *EpisodeRepository) Upsert(ctx context.Context, ep *models.Episode) (bool, error) {
	var inserted bool
	err := r.db.Pool.QueryRow(ctx, upsertEpisodeQuery, upsertArgs(ep)...).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("failed to upsert episode: %w", err)
	}
	return inserted, nil
}

// UpsertBatch writes a chunk of episodes in one round trip using a pipelined
// batch. All statements share the chunk's fate: a failed statement fails the
// remainder of the batch.
func (r *EpisodeRepository) UpsertBatch(ctx context.Context, eps []*models.Episode) (inserted, updated int, err error) {
	if len(eps) == 0 {
		return 0, 0, nil
	}

	batch := &pgx.Batch{}
	for _, ep := range eps {
		batch.Queue(upsertEpisodeQuery, upsertArgs(ep)...)
	}

	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range eps {
		var wasInsert bool
		if scanErr := br.QueryRow().Scan(&wasInsert); scanErr != nil {
			return inserted, updated, fmt.Errorf("failed to upsert episode %d/%d (anime_id=%d ep=%d week=%d): %w",
				i+1, len(eps), eps[i].AnimeID, eps[i].EpisodeNumber, eps[i].Week, scanErr)
		}
		if wasInsert {
			inserted++
		} else {
			updated++
		}
	}

	log.Debug().
		Int("inserted", inserted).
		Int("updated", updated).
		Msg("Episode chunk written")

	return inserted, updated, nil
}

func upsertArgs(ep *models.Episode) []interface{} {
	return []interface{}{
		ep.AnimeID, ep.AnimeTitle, ep.AnimeTitleEnglish, ep.AnimeImageURL,
		ep.TitleType, ep.TitleStatus, ep.Members,
		ep.EpisodeNumber, ep.EpisodeName, ep.Score, ep.AiredAt,
		ep.Season, ep.Year, ep.Week, ep.WeekEstimated,
		ep.Genres, ep.Themes, ep.Demographics,
	}
}

const selectEpisodeColumns = `
	id, anime_id, anime_title, anime_title_english, anime_image_url,
	title_type, title_status, members,
	episode_number, episode_name, episode_score, aired_at,
	season, year, week_number, week_estimated,
	position_in_week, genres, themes, demographics,
	created_at, updated_at
`

func scanEpisode(row pgx.Row) (*models.Episode, error) {
	var ep models.Episode
	err := row.Scan(
		&ep.ID, &ep.AnimeID, &ep.AnimeTitle, &ep.AnimeTitleEnglish, &ep.AnimeImageURL,
		&ep.TitleType, &ep.TitleStatus, &ep.Members,
		&ep.EpisodeNumber, &ep.EpisodeName, &ep.Score, &ep.AiredAt,
		&ep.Season, &ep.Year, &ep.Week, &ep.WeekEstimated,
		&ep.PositionInWeek, &ep.Genres, &ep.Themes, &ep.Demographics,
		&ep.CreatedAt, &ep.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ep, nil
}

// ListByWeek retrieves every episode in a week bucket, ordered by score
// descending with nulls last, then by anime id and episode number so that
// equal scores rank deterministically.
func (r *EpisodeRepository) ListByWeek(ctx context.Context, bucket models.WeekBucket) ([]*models.Episode, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM weekly_episodes
		WHERE season = $1 AND year = $2 AND week_number = $3
		ORDER BY episode_score DESC NULLS LAST, anime_id, episode_number
	`, selectEpisodeColumns)

	rows, err := r.db.Pool.Query(ctx, query, bucket.Season, bucket.Year, bucket.Week)
	if err != nil {
		return nil, fmt.Errorf("failed to list week episodes: %w", err)
	}
	defer rows.Close()

	var episodes []*models.Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan episode: %w", err)
		}
		episodes = append(episodes, ep)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating episodes: %w", err)
	}

	return episodes, nil
}

// GetByKey retrieves one episode by its natural key.
func (r *EpisodeRepository) GetByKey(ctx context.Context, key models.EpisodeKey) (*models.Episode, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM weekly_episodes
		WHERE anime_id = $1 AND episode_number = $2 AND week_number = $3
	`, selectEpisodeColumns)

	ep, err := scanEpisode(r.db.Pool.QueryRow(ctx, query, key.AnimeID, key.EpisodeNumber, key.Week))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("episode not found: anime_id=%d ep=%d week=%d", key.AnimeID, key.EpisodeNumber, key.Week)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get episode: %w", err)
	}

	return ep, nil
}

// UpdatePosition persists an episode's rank position, keyed by natural key.
func (r *EpisodeRepository) UpdatePosition(ctx context.Context, key models.EpisodeKey, position int) error {
	query := `
		UPDATE weekly_episodes SET
			position_in_week = $1,
			updated_at = NOW()
		WHERE anime_id = $2 AND episode_number = $3 AND week_number = $4
	`

	result, err := r.db.Pool.Exec(ctx, query, position, key.AnimeID, key.EpisodeNumber, key.Week)
	if err != nil {
		return fmt.Errorf("failed to update position: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("episode not found: anime_id=%d ep=%d week=%d", key.AnimeID, key.EpisodeNumber, key.Week)
	}

	return nil
}

// DistinctWeeks returns every week bucket for a season that holds at least
// one episode.
func (r *EpisodeRepository) DistinctWeeks(ctx context.Context, seasonName string, year int) ([]models.WeekBucket, error) {
	query := `
		SELECT DISTINCT week_number
		FROM weekly_episodes
		WHERE season = $1 AND year = $2
		ORDER BY week_number
	`

	rows, err := r.db.Pool.Query(ctx, query, seasonName, year)
	if err != nil {
		return nil, fmt.Errorf("failed to list distinct weeks: %w", err)
	}
	defer rows.Close()

	var buckets []models.WeekBucket
	for rows.Next() {
		var week int
		if err := rows.Scan(&week); err != nil {
			return nil, fmt.Errorf("failed to scan week: %w", err)
		}
		buckets = append(buckets, models.WeekBucket{Season: seasonName, Year: year, Week: week})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating weeks: %w", err)
	}

	return buckets, nil
}

// Count returns the total number of episode rows
func (r *EpisodeRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM weekly_episodes`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count episodes: %w", err)
	}
	return count, nil
}
