package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"wow-tracker/internal/domain"
	"wow-tracker/internal/repository"
)

// LeaderboardService serves the read-only latest standings view.
type LeaderboardService struct {
	snapshots *repository.SnapshotRepository
	profiles  *repository.ScoreProfileRepository
	scores    *repository.LeaderboardScoreRepository
	deltas    *repository.MetricDeltaRepository
	jobs      *repository.JobRunRepository
	logger    zerolog.Logger
}

func NewLeaderboardService(
	snapshots *repository.SnapshotRepository,
	profiles *repository.ScoreProfileRepository,
	scores *repository.LeaderboardScoreRepository,
	deltas *repository.MetricDeltaRepository,
	jobs *repository.JobRunRepository,
	logger zerolog.Logger,
) *LeaderboardService {
	return &LeaderboardService{
		snapshots: snapshots,
		profiles:  profiles,
		scores:    scores,
		deltas:    deltas,
		jobs:      jobs,
		logger:    logger,
	}
}

// LeaderboardRowView is one board row. RankChange is the previous rank minus
// the current one, the string "NEW" for a character with no prior ranking,
// or null when either rank is missing.
type LeaderboardRowView struct {
	TrackedCharacterID      string         `json:"trackedCharacterId"`
	Rank                    *int           `json:"rank"`
	CharacterName           string         `json:"characterName"`
	PortraitURL             string         `json:"portraitUrl,omitempty"`
	Faction                 domain.Faction `json:"faction"`
	RealmSlug               string         `json:"realmSlug"`
	Region                  domain.Region  `json:"region"`
	Level                   float64        `json:"level"`
	ItemLevel               float64        `json:"itemLevel"`
	MythicPlusRating        float64        `json:"mythicPlusRating"`
	BestKeyLevel            float64        `json:"bestKeyLevel"`
	CompletedQuestCount     float64        `json:"completedQuestCount"`
	ReputationProgressTotal float64        `json:"reputationProgressTotal"`
	TotalScore              float64        `json:"totalScore"`
	RankChange              any            `json:"rankChange"`
	DailyDelta              float64        `json:"dailyDelta"`
	QuestDelta              *float64       `json:"questDelta"`
	ReputationDelta         *float64       `json:"reputationDelta"`
	PolledAt                time.Time      `json:"polledAt"`
}

type LeaderboardJobView struct {
	Status     string `json:"status"`
	FinishedAt string `json:"finishedAt,omitempty"`
}

type LeaderboardProfileView struct {
	Name              string                        `json:"name"`
	Version           int                           `json:"version"`
	Weights           domain.ScoreWeights           `json:"weights"`
	NormalizationCaps domain.ScoreNormalizationCaps `json:"normalizationCaps"`
}

type LatestLeaderboardView struct {
	SnapshotDate string                  `json:"snapshotDate,omitempty"`
	Rows         []LeaderboardRowView    `json:"rows"`
	LastJob      *LeaderboardJobView     `json:"lastJob"`
	ScoreProfile *LeaderboardProfileView `json:"scoreProfile"`
}

// Latest returns the board for the most recent snapshot date under the
// active profile, with per-row rank movement against the previous date.
func (s *LeaderboardService) Latest(ctx context.Context) (*LatestLeaderboardView, error) {
	view := &LatestLeaderboardView{Rows: []LeaderboardRowView{}}

	lastPoll, err := s.jobs.LatestByType(ctx, domain.JobTypePoll)
	if err != nil {
		return nil, err
	}
	if lastPoll != nil {
		jobView := &LeaderboardJobView{Status: string(lastPoll.Status)}
		if !lastPoll.FinishedAt.IsZero() {
			jobView.FinishedAt = lastPoll.FinishedAt.UTC().Format(time.RFC3339)
		}
		view.LastJob = jobView
	}

	latestDate, found, err := s.snapshots.LatestDate(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		return view, nil
	}
	view.SnapshotDate = repository.FormatDate(latestDate)

	activeProfile, err := s.profiles.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	if activeProfile == nil {
		return view, nil
	}
	view.ScoreProfile = &LeaderboardProfileView{
		Name:              activeProfile.Name,
		Version:           activeProfile.Version,
		Weights:           activeProfile.Weights,
		NormalizationCaps: activeProfile.NormalizationCaps,
	}

	entries, err := s.scores.ListForDate(ctx, activeProfile.ID, latestDate)
	if err != nil {
		return nil, err
	}

	snapshotIDs := make([]string, 0, len(entries))
	for _, entry := range entries {
		snapshotIDs = append(snapshotIDs, entry.SnapshotID)
	}
	deltasBySnapshot, err := s.deltas.ListDeltasBySnapshotIDs(ctx, snapshotIDs)
	if err != nil {
		return nil, err
	}

	previousDate, hasPrevious, err := s.snapshots.PreviousDate(ctx, latestDate)
	if err != nil {
		return nil, err
	}
	previousRanks := map[string]int{}
	if hasPrevious {
		previousEntries, err := s.scores.ListForDate(ctx, activeProfile.ID, previousDate)
		if err != nil {
			return nil, err
		}
		for _, entry := range previousEntries {
			previousRanks[entry.TrackedCharacterID] = entry.Rank
		}
	}

	for _, entry := range entries {
		row := LeaderboardRowView{
			TrackedCharacterID:      entry.TrackedCharacterID,
			CharacterName:           entry.CharacterName,
			PortraitURL:             entry.PortraitURL,
			Faction:                 entry.Faction,
			RealmSlug:               entry.RealmSlug,
			Region:                  entry.Region,
			Level:                   entry.Metrics.Level,
			ItemLevel:               entry.Metrics.AverageItemLevel,
			MythicPlusRating:        entry.Metrics.MythicPlusSeasonScore,
			BestKeyLevel:            entry.Metrics.MythicPlusBestRunLevel,
			CompletedQuestCount:     entry.Metrics.CompletedQuestCount,
			ReputationProgressTotal: entry.Metrics.ReputationProgressTotal,
			TotalScore:              entry.TotalScore,
			RankChange:              "NEW",
			DailyDelta:              entry.DailyDelta,
			PolledAt:                entry.PolledAt,
		}
		if entry.Rank != 0 {
			rank := entry.Rank
			row.Rank = &rank
		}
		if deltas, ok := deltasBySnapshot[entry.SnapshotID]; ok {
			quest := deltas.CompletedQuestCount
			reputation := deltas.ReputationProgressTotal
			row.QuestDelta = &quest
			row.ReputationDelta = &reputation
		}
		if hasPrevious {
			if previousRank, seen := previousRanks[entry.TrackedCharacterID]; !seen {
				row.RankChange = "NEW"
			} else if previousRank != 0 && entry.Rank != 0 {
				row.RankChange = previousRank - entry.Rank
			} else {
				row.RankChange = nil
			}
		}
		view.Rows = append(view.Rows, row)
	}

	return view, nil
}
