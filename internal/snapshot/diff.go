package snapshot

import (
	"fmt"
	"math"
	"strconv"

	"wow-tracker/internal/domain"
)

// Milestone thresholds. A delta below its threshold is ordinary day-to-day
// noise; at or above it, the digest calls it out.
const (
	milestoneItemLevelGain  = 5
	milestoneQuestGain      = 10
	milestoneReputationGain = 1000
	milestoneEncounterGain  = 1
	milestoneBestKeyGain    = 1
	milestoneRatingGain     = 50
	milestoneAchievGain     = 5
)

// BuildMetricDelta compares a snapshot against the previous one for the same
// character. A nil previous means a first-ever observation and diffs against
// an all-zero baseline, so every starting value reads as a gain.
func BuildMetricDelta(previous, current *domain.NormalizedCharacterMetrics) domain.MetricDelta {
	base := domain.NormalizedCharacterMetrics{}
	if previous != nil {
		base = *previous
	}

	deltas := domain.MetricDeltas{
		Level:                    round2(current.Level - base.Level),
		AverageItemLevel:         round2(current.AverageItemLevel - base.AverageItemLevel),
		AchievementPoints:        round2(current.AchievementPoints - base.AchievementPoints),
		StatisticsCompositeValue: round2(current.StatisticsCompositeValue - base.StatisticsCompositeValue),
		CompletedQuestCount:      round2(current.CompletedQuestCount - base.CompletedQuestCount),
		ReputationProgressTotal:  round2(current.ReputationProgressTotal - base.ReputationProgressTotal),
		EncounterKillScore:       round2(current.EncounterKillScore - base.EncounterKillScore),
		MythicPlusRunsCount:      round2(current.MythicPlusRunsCount - base.MythicPlusRunsCount),
		MythicPlusBestRunLevel:   round2(current.MythicPlusBestRunLevel - base.MythicPlusBestRunLevel),
		MythicPlusSeasonScore:    round2(current.MythicPlusSeasonScore - base.MythicPlusSeasonScore),
	}

	milestones := []string{}
	if deltas.Level > 0 {
		milestones = append(milestones, "Level +"+formatNumber(deltas.Level))
	}
	if deltas.AverageItemLevel >= milestoneItemLevelGain {
		milestones = append(milestones, fmt.Sprintf("Item level +%.1f", deltas.AverageItemLevel))
	}
	if deltas.CompletedQuestCount >= milestoneQuestGain {
		milestones = append(milestones, "Completed quests +"+formatNumber(deltas.CompletedQuestCount))
	}
	if deltas.ReputationProgressTotal >= milestoneReputationGain {
		milestones = append(milestones, "Reputation progress +"+formatNumber(math.Round(deltas.ReputationProgressTotal)))
	}
	if deltas.EncounterKillScore >= milestoneEncounterGain {
		milestones = append(milestones, "Encounter progress +"+formatNumber(deltas.EncounterKillScore))
	}
	if deltas.MythicPlusBestRunLevel >= milestoneBestKeyGain {
		milestones = append(milestones, "Mythic+ best key +"+formatNumber(deltas.MythicPlusBestRunLevel))
	}
	if deltas.MythicPlusSeasonScore >= milestoneRatingGain {
		milestones = append(milestones, "Mythic+ rating +"+formatNumber(math.Round(deltas.MythicPlusSeasonScore)))
	}
	if deltas.AchievementPoints >= milestoneAchievGain {
		milestones = append(milestones, "Achievement points +"+formatNumber(deltas.AchievementPoints))
	}

	delta := domain.MetricDelta{
		ToFetchedAt: current.FetchedAt,
		Deltas:      deltas,
		Milestones:  milestones,
	}
	if previous != nil {
		delta.FromFetchedAt = previous.FetchedAt
	}
	return delta
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

// formatNumber renders without a trailing ".0" so whole-number gains read as
// integers ("Level +2") while fractional ones keep their digits.
func formatNumber(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
