// Command jobs runs the tracker's batch jobs once and exits, for cron or
// manual operation:
//
//	jobs poll                                    poll and score every character
//	jobs digest [--send] [--snapshot-date=DATE]  preview or deliver the digest
//	jobs rebuild                                 re-score the latest snapshot day
//	jobs daily [--dry-run]                       poll then digest
//
// Results are printed as JSON on stdout; a non-zero exit means the job
// failed.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"wow-tracker/internal/api"
	"wow-tracker/internal/config"
	"wow-tracker/internal/database"
	"wow-tracker/internal/logger"
	"wow-tracker/internal/repository"
	"wow-tracker/internal/service"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	log := logger.New()
	cfg, err := config.Load(log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := database.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	characters := repository.NewTrackedCharacterRepository(db, log)
	snapshots := repository.NewSnapshotRepository(db, log)
	deltas := repository.NewMetricDeltaRepository(db, log)
	profiles := repository.NewScoreProfileRepository(db, log)
	scores := repository.NewLeaderboardScoreRepository(db, log)
	jobs := repository.NewJobRunRepository(db, log)
	deliveries := repository.NewTelegramDeliveryRepository(db, log)

	blizzard := api.NewBlizzardClient(cfg)
	telegram := api.NewTelegramClient()

	poll := service.NewPollService(cfg, blizzard, characters, snapshots, deltas, profiles, scores, jobs, log)
	digest := service.NewDigestService(cfg, telegram, profiles, scores, deltas, jobs, deliveries, log)
	rebuild := service.NewRebuildService(cfg, snapshots, profiles, scores, jobs, log)
	daily := service.NewDailyService(poll, digest, log)

	ctx := context.Background()

	switch os.Args[1] {
	case "poll":
		if err := cfg.RequireBlizzardCredentials(); err != nil {
			log.Fatal().Err(err).Msg("poll job cannot run")
		}
		result, err := poll.Run(ctx)
		exit(log, result, err)

	case "digest":
		flags := flag.NewFlagSet("digest", flag.ExitOnError)
		send := flags.Bool("send", false, "send the digest to Telegram (default is preview-only)")
		rawDate := flags.String("snapshot-date", "", "use a specific UTC snapshot date (YYYY-MM-DD)")
		flags.Parse(os.Args[2:])

		var snapshotDate time.Time
		if *rawDate != "" {
			snapshotDate, err = service.ParseSnapshotDate(*rawDate)
			if err != nil {
				log.Fatal().Err(err).Msg("invalid --snapshot-date")
			}
		}
		result, err := digest.Run(ctx, service.DigestOptions{Send: *send, SnapshotDate: snapshotDate})
		exit(log, result, err)

	case "rebuild":
		result, err := rebuild.Run(ctx)
		exit(log, result, err)

	case "daily":
		flags := flag.NewFlagSet("daily", flag.ExitOnError)
		dryRun := flags.Bool("dry-run", false, "poll normally but only preview the digest")
		flags.Parse(os.Args[2:])

		result := daily.Run(ctx, *dryRun)
		printJSON(result)
		if !result.OK {
			os.Exit(1)
		}

	default:
		usage()
		os.Exit(2)
	}
}

func exit(log zerolog.Logger, result any, err error) {
	if err != nil {
		log.Error().Err(err).Msg("job failed")
		printJSON(map[string]string{"error": err.Error()})
		os.Exit(1)
	}
	printJSON(result)
}

func printJSON(value any) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(value)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: jobs <poll|digest|rebuild|daily> [flags]")
}
