// Package scoring turns normalized character metrics into a single 0-100
// progression score using a weighted-category model.
package scoring

import (
	"math"

	"wow-tracker/internal/domain"
)

// ScoreCharacter scores one character's metrics against a score profile.
// Each category is normalized to a 0-100 percent of its cap, weighted, and
// the weighted sum is rescaled so a character at every cap scores 100.
func ScoreCharacter(
	metrics *domain.NormalizedCharacterMetrics,
	profile *domain.ScoreProfileConfig,
) domain.ScoreBreakdown {
	warnings := append([]string{}, metrics.Warnings...)
	caps := profile.NormalizationCaps
	weights := profile.Weights

	achievementsPct := normalizedPercent(metrics.AchievementPoints, caps.AchievementPoints)
	statsPct := normalizedPercent(metrics.StatisticsCompositeValue, caps.StatisticsCompositeValue)

	categories := domain.ScoreBreakdownCategories{
		Level:                  normalizedPercent(metrics.Level, caps.Level),
		ItemLevel:              normalizedPercent(metrics.AverageItemLevel, caps.AverageItemLevel),
		MythicPlusRating:       normalizedPercent(metrics.MythicPlusSeasonScore, caps.MythicPlusSeasonScore),
		BestKey:                normalizedPercent(metrics.MythicPlusBestRunLevel, caps.MythicPlusBestRunLevel),
		Quests:                 normalizedPercent(metrics.CompletedQuestCount, caps.CompletedQuestCount),
		Reputations:            normalizedPercent(metrics.ReputationProgressTotal, caps.ReputationProgressTotal),
		Encounters:             normalizedPercent(metrics.EncounterKillScore, caps.EncounterKillScore),
		AchievementsStatistics: clamp((achievementsPct+statsPct)/2, 0, 100),
	}

	totalWeight := weights.Total()
	if totalWeight <= 0 {
		warnings = append(warnings, "Score profile total weight is zero. Returning zero score.")
	}

	contributions := domain.ScoreBreakdownCategories{
		Level:                  categories.Level / 100 * weights.Level,
		ItemLevel:              categories.ItemLevel / 100 * weights.ItemLevel,
		MythicPlusRating:       categories.MythicPlusRating / 100 * weights.MythicPlusRating,
		BestKey:                categories.BestKey / 100 * weights.BestKey,
		Quests:                 categories.Quests / 100 * weights.Quests,
		Reputations:            categories.Reputations / 100 * weights.Reputations,
		Encounters:             categories.Encounters / 100 * weights.Encounters,
		AchievementsStatistics: categories.AchievementsStatistics / 100 * weights.AchievementsStatistics,
	}

	weightedTotal := contributions.Level + contributions.ItemLevel +
		contributions.MythicPlusRating + contributions.BestKey +
		contributions.Quests + contributions.Reputations +
		contributions.Encounters + contributions.AchievementsStatistics

	var totalScore float64
	if totalWeight > 0 {
		totalScore = round2(weightedTotal / totalWeight * 100)
	}

	return domain.ScoreBreakdown{
		TotalScore:            totalScore,
		TotalWeight:           totalWeight,
		NormalizedCategories:  categories,
		WeightedContributions: contributions,
		Warnings:              warnings,
	}
}

// normalizedPercent maps value onto a 0-100 scale against cap. A non-finite
// input or a non-positive cap scores zero rather than poisoning the total.
func normalizedPercent(value, cap float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) || math.IsNaN(cap) || math.IsInf(cap, 0) || cap <= 0 {
		return 0
	}
	return clamp(value/cap*100, 0, 100)
}

func clamp(value, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, value))
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
