// Command manualfetch runs one season sync from the command line. Useful for
// backfilling past seasons or re-running a season after an upstream outage.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"animerank/ingestion/internal/cache"
	"animerank/ingestion/internal/client"
	"animerank/ingestion/internal/config"
	"animerank/ingestion/internal/ingest"
	"animerank/ingestion/internal/ranking"
	"animerank/ingestion/internal/repository"
	"animerank/ingestion/internal/season"
)

func main() {
	var (
		seasonFlag  = flag.String("season", "", "season name (winter/spring/summer/fall); defaults to the current one")
		yearFlag    = flag.Int("year", 0, "season year; defaults to the current one")
		pagesFlag   = flag.Int("pages", 0, "max listing pages to fetch (0 uses SYNC_MAX_PAGES)")
		membersFlag = flag.Int("min-members", 0, "popularity threshold (0 uses SYNC_MIN_POPULARITY)")
		noCacheFlag = flag.Bool("no-cache", false, "bypass the Redis page cache")
		refreshFlag = flag.Bool("refresh", false, "drop cached pages for the season before syncing")
		rerankFlag  = flag.Bool("rerank-only", false, "skip fetching; recompute rankings for every stored week of the season")
	)
	flag.Parse()

	ctx := context.Background()
	cfg := config.MustLoad()

	name, year := season.Current(time.Now())
	if *seasonFlag != "" {
		name = strings.ToLower(*seasonFlag)
	}
	if *yearFlag != 0 {
		year = *yearFlag
	}
	if !validSeason(name) {
		log.Fatal().Str("season", name).Msg("Unknown season name")
	}

	db, err := repository.NewDatabase(ctx, repository.Config{
		Host:     cfg.DatabaseHost,
		Port:     fmt.Sprintf("%d", cfg.DatabasePort),
		User:     cfg.DatabaseUser,
		Password: cfg.DatabasePassword,
		Database: cfg.DatabaseName,
		SSLMode:  cfg.DatabaseSSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Health(ctx); err != nil {
		log.Fatal().Err(err).Msg("Database health check failed")
	}

	var pageCache *cache.RedisCache
	if !*noCacheFlag {
		pageCache, err = cache.NewRedisCache(cache.Config{
			Host:     cfg.RedisHost,
			Port:     fmt.Sprintf("%d", cfg.RedisPort),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cfg.PageCacheTTL)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, fetching without page cache")
			pageCache = nil
		} else {
			defer pageCache.Close()
		}
	}
	if *refreshFlag {
		pageCache.InvalidateSeason(ctx, name, year)
	}

	if *rerankFlag {
		rerankSeason(ctx, db, name, year)
		return
	}

	jikan := client.NewClient(cfg.JikanBaseURL, cfg.JikanTimeout)
	runner := ingest.NewRunner(
		ingest.NewPipeline(jikan, pageCache),
		ingest.NewUpserter(db.Episodes),
		ranking.New(db.Episodes),
		db.SyncLogs,
	)

	params := ingest.Params{
		Season:        name,
		Year:          year,
		MaxPages:      *pagesFlag,
		MinPopularity: *membersFlag,
	}
	if params.MaxPages == 0 {
		params.MaxPages = cfg.MaxPages
	}
	if params.MinPopularity == 0 {
		params.MinPopularity = cfg.MinPopularity
	}

	log.Info().
		Str("season", params.Season).
		Int("year", params.Year).
		Msg("Starting manual season sync")

	report, err := runner.Run(ctx, params)
	if err != nil {
		log.Fatal().Err(err).Msg("Season sync aborted")
	}

	fmt.Printf("Season sync %s %d\n", report.Season, report.Year)
	fmt.Printf("  pages fetched:     %d\n", report.PagesFetched)
	fmt.Printf("  titles processed:  %d (skipped %d)\n", report.TitlesProcessed, report.TitlesSkipped)
	fmt.Printf("  episodes emitted:  %d (%d estimated weeks)\n", report.EpisodesEmitted, report.EpisodesEstimated)
	fmt.Printf("  inserted/updated:  %d/%d\n", report.Inserted, report.Updated)
	fmt.Printf("  weeks ranked:      %d\n", report.WeeksRanked)
	fmt.Printf("  duration:          %s\n", report.Duration.Round(time.Millisecond))
	for _, msg := range report.Errors {
		fmt.Printf("  error: %s\n", msg)
	}

	// Partial results are a success for this tool; only a run that produced
	// nothing at all exits non-zero.
	if report.Empty() && len(report.Errors) > 0 {
		os.Exit(1)
	}
}

// rerankSeason recomputes positions for every week of a season that already
// holds episodes, without touching the upstream API.
func rerankSeason(ctx context.Context, db *repository.Database, name string, year int) {
	buckets, err := db.Episodes.DistinctWeeks(ctx, name, year)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list season weeks")
	}
	if len(buckets) == 0 {
		fmt.Printf("No stored episodes for %s %d\n", name, year)
		return
	}

	recalc := ranking.New(db.Episodes)
	failed := 0
	for _, bucket := range buckets {
		ranked, err := recalc.RecomputeWeek(ctx, bucket)
		if err != nil {
			log.Error().Err(err).Stringer("bucket", bucket).Msg("Week recompute failed")
			failed++
			continue
		}
		fmt.Printf("  %s: %d episodes ranked\n", bucket, ranked)
	}

	fmt.Printf("Reranked %d/%d weeks of %s %d\n", len(buckets)-failed, len(buckets), name, year)
	if failed == len(buckets) {
		os.Exit(1)
	}
}

func validSeason(name string) bool {
	for _, s := range season.Names {
		if name == s {
			return true
		}
	}
	return false
}
