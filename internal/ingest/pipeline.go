// Package ingest pulls a season's catalog from the upstream API, normalizes
// episodes into week buckets, and writes them through the storage layer.
package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"animerank/ingestion/internal/cache"
	"animerank/ingestion/internal/client"
	"animerank/ingestion/internal/metrics"
	"animerank/ingestion/internal/models"
	"animerank/ingestion/internal/season"
)

// Catalog is the slice of the API client the pipeline needs.
type Catalog interface {
	FetchSeasonPage(ctx context.Context, seasonName string, year, page int) (*client.SeasonPage, error)
	FetchEpisodes(ctx context.Context, animeID int) ([]client.Episode, error)
}

// Params configures one season sync run.
type Params struct {
	Season        string
	Year          int
	MaxPages      int
	MinPopularity int
}

const (
	// DefaultMinPopularity drops titles too small to rank meaningfully.
	DefaultMinPopularity = 5000
	DefaultMaxPages      = 10

	// episodeFanout bounds concurrent per-title episode fetches. The client's
	// limiter still paces individual requests.
	episodeFanout = 2

	// ordinalWeekCap clamps the air-date-less fallback. The ordinal is only a
	// coincidental proxy for the week, so it never exceeds a standard cour.
	ordinalWeekCap = 13
)

// Normalize fills defaults for zero-valued parameters.
func (p Params) Normalize() Params {
	if p.MaxPages <= 0 {
		p.MaxPages = DefaultMaxPages
	}
	if p.MinPopularity <= 0 {
		p.MinPopularity = DefaultMinPopularity
	}
	return p
}

// Pipeline pages through a season listing, filters and de-duplicates titles,
// fetches each surviving title's episodes, and emits normalized episode
// records carrying their week bucket.
type Pipeline struct {
	catalog Catalog
	pages   *cache.RedisCache // optional; nil disables caching
}

// NewPipeline creates an ingestion pipeline. pages may be nil.
func NewPipeline(catalog Catalog, pages *cache.RedisCache) *Pipeline {
	return &Pipeline{catalog: catalog, pages: pages}
}

// SyncSeason runs the ingestion for one season and returns the normalized
// episode batch plus a report. Per-title and per-page failures are contained
// in the report's error list; only context cancellation is returned as an
// error.
func (p *Pipeline) SyncSeason(ctx context.Context, params Params) ([]*models.Episode, *models.IngestReport, error) {
	params = params.Normalize()
	report := &models.IngestReport{Season: params.Season, Year: params.Year}

	log.Info().
		Str("season", params.Season).
		Int("year", params.Year).
		Int("max_pages", params.MaxPages).
		Int("min_popularity", params.MinPopularity).
		Msg("Starting season sync")

	titles, err := p.collectTitles(ctx, params, report)
	if err != nil {
		return nil, report, err
	}

	episodes, err := p.collectEpisodes(ctx, params, titles, report)
	if err != nil {
		return nil, report, err
	}

	log.Info().
		Int("pages", report.PagesFetched).
		Int("titles", report.TitlesProcessed).
		Int("skipped", report.TitlesSkipped).
		Int("episodes", report.EpisodesEmitted).
		Int("errors", len(report.Errors)).
		Msg("Season sync pipeline complete")

	return episodes, report, nil
}

// collectTitles pages through the season listing and returns the filtered,
// de-duplicated title set in catalog order.
func (p *Pipeline) collectTitles(ctx context.Context, params Params, report *models.IngestReport) ([]client.Anime, error) {
	var titles []client.Anime
	seen := make(map[int]bool)

	for page := 1; page <= params.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sp, err := p.fetchPage(ctx, params, page)
		if err != nil {
			// Earlier pages stay valid; the run continues with what it has.
			report.AddError(fmt.Sprintf("season page %d: %v", page, err))
			metrics.RecordError("pipeline", "page_fetch")
			log.Error().Err(err).Int("page", page).Msg("Failed to fetch season page, stopping pagination")
			break
		}

		report.PagesFetched++
		if len(sp.Data) == 0 {
			break
		}

		for _, anime := range sp.Data {
			if seen[anime.MalID] {
				// Upstream pagination can overlap; never fetch a title twice.
				continue
			}
			seen[anime.MalID] = true

			if skip, reason := p.shouldSkip(&anime, params); skip {
				report.TitlesSkipped++
				log.Debug().
					Int("anime_id", anime.MalID).
					Str("title", anime.Title).
					Str("reason", reason).
					Msg("Title skipped")
				continue
			}

			titles = append(titles, anime)
		}

		if !sp.Pagination.HasNextPage {
			break
		}
	}

	return titles, nil
}

// shouldSkip applies the popularity threshold, the TV/ONA type filter, and
// the season mismatch guard for titles that have not yet aired.
func (p *Pipeline) shouldSkip(anime *client.Anime, params Params) (bool, string) {
	if anime.Members < params.MinPopularity {
		return true, "below popularity threshold"
	}

	if anime.Type != "TV" && anime.Type != "ONA" {
		return true, "unranked title type"
	}

	// A not-yet-aired title listed under the wrong season would pollute the
	// requested season's buckets once its date is known.
	if anime.Status == "Not yet aired" && anime.Aired.From != nil {
		bucket, err := season.ClassifyAirDate(*anime.Aired.From)
		if err == nil && (bucket.Season != params.Season || bucket.Year != params.Year) {
			return true, "aired date outside requested season"
		}
	}

	return false, ""
}

// collectEpisodes fans out per-title episode fetches through a bounded
// worker pool, preserving catalog order in the emitted batch.
func (p *Pipeline) collectEpisodes(ctx context.Context, params Params, titles []client.Anime, report *models.IngestReport) ([]*models.Episode, error) {
	results := make([][]*models.Episode, len(titles))
	fetchErrs := make([]error, len(titles))

	sem := make(chan struct{}, episodeFanout)
	var wg sync.WaitGroup

	for i := range titles {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			anime := &titles[i]
			raw, err := p.catalog.FetchEpisodes(ctx, anime.MalID)
			if err != nil {
				fetchErrs[i] = err
				return
			}
			results[i] = p.normalizeEpisodes(params, anime, raw)
		}(i)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var episodes []*models.Episode
	for i := range titles {
		if fetchErrs[i] != nil {
			report.AddError(fmt.Sprintf("episodes for anime %d (%s): %v", titles[i].MalID, titles[i].Title, fetchErrs[i]))
			metrics.RecordError("pipeline", "episode_fetch")
			continue
		}

		report.TitlesProcessed++
		metrics.TitlesProcessed.Inc()
		for _, ep := range results[i] {
			episodes = append(episodes, ep)
			report.EpisodesEmitted++
			if ep.WeekEstimated {
				report.EpisodesEstimated++
			}
		}
	}

	return episodes, nil
}

// normalizeEpisodes converts raw catalog episodes into storage rows carrying
// their week bucket.
func (p *Pipeline) normalizeEpisodes(params Params, anime *client.Anime, raw []client.Episode) []*models.Episode {
	episodes := make([]*models.Episode, 0, len(raw))

	for _, re := range raw {
		if re.MalID <= 0 {
			continue
		}

		ep := &models.Episode{
			AnimeID:       anime.MalID,
			AnimeTitle:    anime.Title,
			AnimeImageURL: anime.CoverURL(),
			TitleType:     anime.Type,
			TitleStatus:   anime.Status,
			Members:       anime.Members,
			EpisodeNumber: re.MalID,
			EpisodeName:   re.Title,
			Genres:        refNames(anime.Genres),
			Themes:        refNames(anime.Themes),
			Demographics:  refNames(anime.Demographics),
		}

		if anime.TitleEnglish != nil && *anime.TitleEnglish != "" {
			ep.AnimeTitleEnglish = sql.NullString{String: *anime.TitleEnglish, Valid: true}
		}
		if ep.EpisodeName == "" {
			ep.EpisodeName = fmt.Sprintf("Episode %d", re.MalID)
		}
		if re.Score != nil {
			ep.Score = sql.NullFloat64{Float64: *re.Score, Valid: true}
		}

		p.assignBucket(params, &re, ep)
		episodes = append(episodes, ep)
	}

	return episodes
}

// assignBucket places the episode in its week bucket: classified from the
// air-date when one exists, otherwise approximated from the episode ordinal.
func (p *Pipeline) assignBucket(params Params, re *client.Episode, ep *models.Episode) {
	if re.Aired != nil {
		if aired, err := season.ParseAirDate(*re.Aired); err == nil {
			bucket, _ := season.Classify(aired)
			ep.AiredAt = sql.NullTime{Time: aired, Valid: true}
			ep.Season = bucket.Season
			ep.Year = bucket.Year
			ep.Week = bucket.Week
			return
		}
	}

	// No usable air-date: treat the ordinal as a proxy for the week. This is
	// a known approximation, flagged on the row rather than trusted.
	week := re.MalID
	if week > ordinalWeekCap {
		week = ordinalWeekCap
	}
	if week < 1 {
		week = 1
	}
	ep.Season = params.Season
	ep.Year = params.Year
	ep.Week = week
	ep.WeekEstimated = true
}

// fetchPage returns a season listing page, consulting the Redis cache first.
func (p *Pipeline) fetchPage(ctx context.Context, params Params, page int) (*client.SeasonPage, error) {
	if data, ok := p.pages.GetSeasonPage(ctx, params.Season, params.Year, page); ok {
		var sp client.SeasonPage
		if err := json.Unmarshal(data, &sp); err == nil {
			return &sp, nil
		}
		log.Warn().Int("page", page).Msg("Discarding undecodable cached page")
	}

	sp, err := p.catalog.FetchSeasonPage(ctx, params.Season, params.Year, page)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(sp); err == nil {
		p.pages.SetSeasonPage(ctx, params.Season, params.Year, page, data)
	}

	return sp, nil
}

func refNames(refs []client.NamedRef) []string {
	names := make([]string, 0, len(refs))
	for _, r := range refs {
		names = append(names, r.Name)
	}
	return names
}
