package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"wow-tracker/internal/config"
	"wow-tracker/internal/domain"
	"wow-tracker/internal/repository"
	"wow-tracker/internal/scoring"
)

// RebuildService re-scores the latest snapshot day under the current score
// profile without refetching anything, for when weights or caps change.
type RebuildService struct {
	cfg       *config.Config
	snapshots *repository.SnapshotRepository
	profiles  *repository.ScoreProfileRepository
	scores    *repository.LeaderboardScoreRepository
	jobs      *repository.JobRunRepository
	logger    zerolog.Logger
}

func NewRebuildService(
	cfg *config.Config,
	snapshots *repository.SnapshotRepository,
	profiles *repository.ScoreProfileRepository,
	scores *repository.LeaderboardScoreRepository,
	jobs *repository.JobRunRepository,
	logger zerolog.Logger,
) *RebuildService {
	return &RebuildService{
		cfg:       cfg,
		snapshots: snapshots,
		profiles:  profiles,
		scores:    scores,
		jobs:      jobs,
		logger:    logger,
	}
}

type RebuildResult struct {
	Rebuilt        int    `json:"rebuilt"`
	SnapshotDate   string `json:"snapshotDate,omitempty"`
	ScoreProfileID string `json:"scoreProfileId,omitempty"`
}

func (s *RebuildService) Run(ctx context.Context) (*RebuildResult, error) {
	jobRun, err := s.jobs.Create(ctx, domain.JobTypeRebuildLeaderboard, time.Time{})
	if err != nil {
		return nil, err
	}

	result, err := s.rebuild(ctx)
	if err != nil {
		if finishErr := s.jobs.Finish(ctx, jobRun.ID, domain.JobStatusFailed, map[string]string{
			"message": err.Error(),
		}); finishErr != nil {
			s.logger.Error().Err(finishErr).Str("jobRunId", jobRun.ID).Msg("failed to finalize rebuild job run")
		}
		return nil, err
	}

	var details any = result
	if result.Rebuilt == 0 && result.SnapshotDate == "" {
		details = map[string]string{"message": "No snapshots found. Nothing to rebuild."}
	}
	if err := s.jobs.Finish(ctx, jobRun.ID, domain.JobStatusSuccess, details); err != nil {
		return nil, err
	}

	s.logger.Info().
		Int("rebuilt", result.Rebuilt).
		Str("snapshotDate", result.SnapshotDate).
		Msg("leaderboard rebuild finished")
	return result, nil
}

func (s *RebuildService) rebuild(ctx context.Context) (*RebuildResult, error) {
	profileCfg, err := config.LoadScoreProfile(s.cfg.ConfigDir)
	if err != nil {
		return nil, err
	}
	activeProfile, err := ensureActiveScoreProfile(ctx, s.profiles, profileCfg)
	if err != nil {
		return nil, err
	}

	latestDate, found, err := s.snapshots.LatestDate(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		return &RebuildResult{}, nil
	}

	snapshots, err := s.snapshots.ListActiveByDate(ctx, latestDate)
	if err != nil {
		return nil, err
	}

	for _, snap := range snapshots {
		breakdown := scoring.ScoreCharacter(&snap.NormalizedMetrics, profileCfg)

		var previousScore float64
		previousSnapshot, err := s.snapshots.GetPrevious(ctx, snap.TrackedCharacterID, latestDate)
		if err != nil {
			return nil, err
		}
		if previousSnapshot != nil {
			previousScore, _, err = s.scores.GetTotalScore(ctx, snap.TrackedCharacterID, previousSnapshot.ID, activeProfile.ID)
			if err != nil {
				return nil, err
			}
		}

		breakdownJSON, err := json.Marshal(breakdown)
		if err != nil {
			return nil, fmt.Errorf("marshal score breakdown: %w", err)
		}

		if err := s.scores.Upsert(ctx, &domain.LeaderboardScore{
			TrackedCharacterID: snap.TrackedCharacterID,
			SnapshotID:         snap.ID,
			ScoreProfileID:     activeProfile.ID,
			TotalScore:         breakdown.TotalScore,
			DailyDelta:         round2(breakdown.TotalScore - previousScore),
			BreakdownJSON:      string(breakdownJSON),
		}); err != nil {
			return nil, err
		}
	}

	if err := s.scores.AssignRanks(ctx, activeProfile.ID, latestDate); err != nil {
		return nil, err
	}

	return &RebuildResult{
		Rebuilt:        len(snapshots),
		SnapshotDate:   repository.FormatDate(latestDate),
		ScoreProfileID: activeProfile.ID,
	}, nil
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
