package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wow-tracker/internal/api"
	"wow-tracker/internal/config"
	"wow-tracker/internal/constants"
	"wow-tracker/internal/domain"
	"wow-tracker/internal/repository"
	"wow-tracker/internal/scoring"
	"wow-tracker/internal/snapshot"
)

// PollService runs the daily poll: sync the roster from config, fetch every
// active character's progress, normalize, diff, score, and rank the board
// for the day.
type PollService struct {
	cfg        *config.Config
	provider   api.CharacterProvider
	characters *repository.TrackedCharacterRepository
	snapshots  *repository.SnapshotRepository
	deltas     *repository.MetricDeltaRepository
	profiles   *repository.ScoreProfileRepository
	scores     *repository.LeaderboardScoreRepository
	jobs       *repository.JobRunRepository
	logger     zerolog.Logger
}

func NewPollService(
	cfg *config.Config,
	provider api.CharacterProvider,
	characters *repository.TrackedCharacterRepository,
	snapshots *repository.SnapshotRepository,
	deltas *repository.MetricDeltaRepository,
	profiles *repository.ScoreProfileRepository,
	scores *repository.LeaderboardScoreRepository,
	jobs *repository.JobRunRepository,
	logger zerolog.Logger,
) *PollService {
	return &PollService{
		cfg:        cfg,
		provider:   provider,
		characters: characters,
		snapshots:  snapshots,
		deltas:     deltas,
		profiles:   profiles,
		scores:     scores,
		jobs:       jobs,
		logger:     logger,
	}
}

// Run polls for today's UTC snapshot date.
func (s *PollService) Run(ctx context.Context) (*domain.PollJobResult, error) {
	return s.RunForDate(ctx, startOfUTCDay(time.Now()))
}

// RunForDate polls for a specific snapshot date. Re-running the same date
// overwrites that day's snapshots and scores in place.
func (s *PollService) RunForDate(ctx context.Context, snapshotDate time.Time) (*domain.PollJobResult, error) {
	jobRun, err := s.jobs.Create(ctx, domain.JobTypePoll, snapshotDate)
	if err != nil {
		return nil, err
	}

	result, err := s.poll(ctx, snapshotDate)
	if err != nil {
		if finishErr := s.jobs.Finish(ctx, jobRun.ID, domain.JobStatusFailed, map[string]string{
			"message": err.Error(),
		}); finishErr != nil {
			s.logger.Error().Err(finishErr).Str("jobRunId", jobRun.ID).Msg("failed to finalize poll job run")
		}
		return nil, err
	}

	status := domain.JobStatusSuccess
	if result.ErrorCount > 0 {
		status = domain.JobStatusPartialFailure
		if result.SuccessCount == 0 {
			status = domain.JobStatusFailed
		}
	}
	if err := s.jobs.Finish(ctx, jobRun.ID, status, result); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("snapshotDate", repository.FormatDate(snapshotDate)).
		Int("processed", result.Processed).
		Int("errors", result.ErrorCount).
		Str("status", string(status)).
		Msg("poll job finished")
	return result, nil
}

func (s *PollService) poll(ctx context.Context, snapshotDate time.Time) (*domain.PollJobResult, error) {
	roster, err := config.LoadTrackedCharacters(s.cfg.ConfigDir)
	if err != nil {
		return nil, err
	}
	profileCfg, err := config.LoadScoreProfile(s.cfg.ConfigDir)
	if err != nil {
		return nil, err
	}

	activeProfile, err := ensureActiveScoreProfile(ctx, s.profiles, profileCfg)
	if err != nil {
		return nil, err
	}

	trackedIDs, err := s.syncRoster(ctx, roster.Characters)
	if err != nil {
		return nil, err
	}

	results := make([]domain.PollCharacterResult, 0, len(roster.Characters))
	for _, character := range roster.Characters {
		if !character.IsActive() {
			continue
		}

		charResult := s.pollCharacter(ctx, character, trackedIDs[config.CharacterKey(character)], snapshotDate, profileCfg, activeProfile)
		results = append(results, charResult)

		if !charResult.OK {
			s.logger.Warn().
				Str("character", character.CharacterName).
				Str("realm", character.RealmSlug).
				Str("error", charResult.Error).
				Msg("character poll failed")
		}
	}

	if err := s.scores.AssignRanks(ctx, activeProfile.ID, snapshotDate); err != nil {
		return nil, err
	}

	successCount := 0
	warningCount := 0
	for _, r := range results {
		if r.OK {
			successCount++
		}
		warningCount += len(r.Warnings)
	}

	return &domain.PollJobResult{
		SnapshotDate: snapshotDate.UTC().Format(time.RFC3339),
		Processed:    len(results),
		SuccessCount: successCount,
		WarningCount: warningCount,
		ErrorCount:   len(results) - successCount,
		Results:      results,
	}, nil
}

// syncRoster upserts every config entry and soft-deletes rows that fell out
// of the config. Returns the DB ID per roster key.
func (s *PollService) syncRoster(ctx context.Context, characters []domain.TrackedCharacterConfig) (map[string]string, error) {
	trackedIDs := make(map[string]string, len(characters))
	keep := make([]string, 0, len(characters))

	for _, character := range characters {
		id, err := s.characters.UpsertFromConfig(ctx, character)
		if err != nil {
			return nil, fmt.Errorf("sync roster entry %s: %w", config.CharacterKey(character), err)
		}
		trackedIDs[config.CharacterKey(character)] = id
		keep = append(keep, id)
	}

	deactivated, err := s.characters.DeactivateExcept(ctx, keep)
	if err != nil {
		return nil, err
	}
	if deactivated > 0 {
		s.logger.Info().Int64("count", deactivated).Msg("deactivated characters removed from roster")
	}
	return trackedIDs, nil
}

func (s *PollService) pollCharacter(
	ctx context.Context,
	character domain.TrackedCharacterConfig,
	trackedID string,
	snapshotDate time.Time,
	profileCfg *domain.ScoreProfileConfig,
	activeProfile *domain.ScoreProfile,
) domain.PollCharacterResult {
	warnings := []string{}
	fail := func(err error) domain.PollCharacterResult {
		return domain.PollCharacterResult{
			Character: character,
			OK:        false,
			Warnings:  warnings,
			Error:     err.Error(),
		}
	}

	if trackedID == "" {
		return fail(fmt.Errorf("tracked character sync failed to return an ID"))
	}

	ctx, cancel := context.WithTimeout(ctx, constants.PollEntityTimeout)
	defer cancel()

	bundle, err := s.provider.FetchProgressBundle(ctx, character, profileCfg)
	if err != nil {
		return fail(err)
	}
	if bundle.ProfileSummary == nil {
		return fail(fmt.Errorf(
			"missing profile summary (character may be private/invalid). Endpoint errors: %s",
			joinEndpointErrors(bundle.EndpointErrors),
		))
	}

	if portraitURL := snapshot.ExtractPortraitURL(bundle.CharacterMedia); portraitURL != "" {
		if err := s.characters.SetPortraitURL(ctx, trackedID, portraitURL); err != nil {
			return fail(err)
		}
	}

	normalized := snapshot.Normalize(bundle, character, profileCfg)
	warnings = append(warnings, normalized.Warnings...)

	rawProfileJSON, err := json.Marshal(bundle.ProfileSummary)
	if err != nil {
		return fail(fmt.Errorf("marshal raw profile: %w", err))
	}
	rawProgressJSON, err := json.Marshal(map[string]any{
		"characterMedia":        bundle.CharacterMedia,
		"equipmentSummary":      bundle.EquipmentSummary,
		"achievementsSummary":   bundle.AchievementsSummary,
		"statisticsSummary":     bundle.StatisticsSummary,
		"reputationsSummary":    bundle.ReputationsSummary,
		"questsCompleted":       bundle.QuestsCompleted,
		"encountersSummary":     bundle.EncountersSummary,
		"mythicKeystoneProfile": bundle.MythicKeystoneProfile,
		"mythicKeystoneSeason":  bundle.MythicKeystoneSeason,
		"endpointErrors":        bundle.EndpointErrors,
	})
	if err != nil {
		return fail(fmt.Errorf("marshal raw progress: %w", err))
	}

	snapshotID, err := s.snapshots.Upsert(ctx, &domain.CharacterSnapshot{
		TrackedCharacterID: trackedID,
		SnapshotDate:       snapshotDate,
		PolledAt:           time.Now().UTC(),
		RawProfileJSON:     string(rawProfileJSON),
		RawProgressJSON:    string(rawProgressJSON),
		NormalizedMetrics:  normalized,
		SourceVersion:      normalized.SchemaVersion,
	})
	if err != nil {
		return fail(err)
	}

	previousSnapshot, err := s.snapshots.GetPrevious(ctx, trackedID, snapshotDate)
	if err != nil {
		return fail(err)
	}
	var previousMetrics *domain.NormalizedCharacterMetrics
	var previousSnapshotID string
	if previousSnapshot != nil {
		previousMetrics = &previousSnapshot.NormalizedMetrics
		previousSnapshotID = previousSnapshot.ID
	}

	delta := snapshot.BuildMetricDelta(previousMetrics, &normalized)
	if err := s.deltas.Upsert(ctx, &domain.CharacterMetricDelta{
		TrackedCharacterID: trackedID,
		FromSnapshotID:     previousSnapshotID,
		ToSnapshotID:       snapshotID,
		Deltas:             delta.Deltas,
		Milestones:         delta.Milestones,
	}); err != nil {
		return fail(err)
	}

	breakdown := scoring.ScoreCharacter(&normalized, profileCfg)
	warnings = append(warnings, breakdown.Warnings...)

	var previousScore float64
	if previousSnapshot != nil {
		previousScore, _, err = s.scores.GetTotalScore(ctx, trackedID, previousSnapshot.ID, activeProfile.ID)
		if err != nil {
			return fail(err)
		}
	}
	dailyDelta := round2(breakdown.TotalScore - previousScore)

	breakdownJSON, err := json.Marshal(struct {
		domain.ScoreBreakdown
		MetricDelta domain.MetricDelta `json:"metricDelta"`
		Warnings    []string           `json:"warnings"`
	}{
		ScoreBreakdown: breakdown,
		MetricDelta:    delta,
		Warnings:       warnings,
	})
	if err != nil {
		return fail(fmt.Errorf("marshal score breakdown: %w", err))
	}

	if err := s.scores.Upsert(ctx, &domain.LeaderboardScore{
		TrackedCharacterID: trackedID,
		SnapshotID:         snapshotID,
		ScoreProfileID:     activeProfile.ID,
		TotalScore:         breakdown.TotalScore,
		DailyDelta:         dailyDelta,
		BreakdownJSON:      string(breakdownJSON),
	}); err != nil {
		return fail(err)
	}

	return domain.PollCharacterResult{
		Character:  character,
		OK:         true,
		SnapshotID: snapshotID,
		Score:      breakdown.TotalScore,
		Warnings:   warnings,
	}
}

func joinEndpointErrors(endpointErrors map[string]string) string {
	keys := make([]string, 0, len(endpointErrors))
	for key := range endpointErrors {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	messages := make([]string, 0, len(keys))
	for _, key := range keys {
		messages = append(messages, endpointErrors[key])
	}
	return strings.Join(messages, "; ")
}
