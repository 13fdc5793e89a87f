package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wow-tracker/internal/domain"
)

func evenProfile() *domain.ScoreProfileConfig {
	return &domain.ScoreProfileConfig{
		Name:    "test",
		Version: 1,
		Weights: domain.ScoreWeights{
			Level: 1, ItemLevel: 1, MythicPlusRating: 1, BestKey: 1,
			Quests: 1, Reputations: 1, Encounters: 1, AchievementsStatistics: 1,
		},
		NormalizationCaps: domain.ScoreNormalizationCaps{
			Level:                    80,
			AverageItemLevel:         500,
			MythicPlusSeasonScore:    3000,
			MythicPlusBestRunLevel:   20,
			CompletedQuestCount:      200,
			ReputationProgressTotal:  10000,
			EncounterKillScore:       50,
			AchievementPoints:        10000,
			StatisticsCompositeValue: 100000,
		},
	}
}

func TestScoreCharacterAtEveryCapScores100(t *testing.T) {
	profile := evenProfile()
	metrics := &domain.NormalizedCharacterMetrics{
		Level:                    80,
		AverageItemLevel:         500,
		MythicPlusSeasonScore:    3000,
		MythicPlusBestRunLevel:   20,
		CompletedQuestCount:      200,
		ReputationProgressTotal:  10000,
		EncounterKillScore:       50,
		AchievementPoints:        10000,
		StatisticsCompositeValue: 100000,
	}

	breakdown := ScoreCharacter(metrics, profile)

	assert.Equal(t, 100.0, breakdown.TotalScore)
	assert.Equal(t, 8.0, breakdown.TotalWeight)
	assert.Equal(t, 100.0, breakdown.NormalizedCategories.Level)
	assert.Equal(t, 100.0, breakdown.NormalizedCategories.AchievementsStatistics)
	assert.Empty(t, breakdown.Warnings)
}

func TestScoreCharacterValuesAboveCapClampTo100(t *testing.T) {
	profile := evenProfile()
	metrics := &domain.NormalizedCharacterMetrics{Level: 999}

	breakdown := ScoreCharacter(metrics, profile)
	assert.Equal(t, 100.0, breakdown.NormalizedCategories.Level)
}

func TestScoreCharacterHalfwayMetrics(t *testing.T) {
	profile := evenProfile()
	metrics := &domain.NormalizedCharacterMetrics{
		Level:            40,
		AverageItemLevel: 250,
	}

	breakdown := ScoreCharacter(metrics, profile)

	assert.Equal(t, 50.0, breakdown.NormalizedCategories.Level)
	assert.Equal(t, 50.0, breakdown.NormalizedCategories.ItemLevel)
	// Two categories at 50% each against 8 equal weights.
	assert.Equal(t, 12.5, breakdown.TotalScore)
}

func TestScoreCharacterAchievementsStatisticsAverages(t *testing.T) {
	profile := evenProfile()
	metrics := &domain.NormalizedCharacterMetrics{
		AchievementPoints:        10000,
		StatisticsCompositeValue: 0,
	}

	breakdown := ScoreCharacter(metrics, profile)
	assert.Equal(t, 50.0, breakdown.NormalizedCategories.AchievementsStatistics)
}

func TestScoreCharacterZeroOrInvalidCapScoresZero(t *testing.T) {
	profile := evenProfile()
	profile.NormalizationCaps.Level = 0
	profile.NormalizationCaps.AverageItemLevel = math.Inf(1)

	metrics := &domain.NormalizedCharacterMetrics{Level: 80, AverageItemLevel: 450}
	breakdown := ScoreCharacter(metrics, profile)

	assert.Zero(t, breakdown.NormalizedCategories.Level)
	assert.Zero(t, breakdown.NormalizedCategories.ItemLevel)
}

func TestScoreCharacterZeroTotalWeight(t *testing.T) {
	profile := evenProfile()
	profile.Weights = domain.ScoreWeights{}

	metrics := &domain.NormalizedCharacterMetrics{Level: 80}
	breakdown := ScoreCharacter(metrics, profile)

	assert.Zero(t, breakdown.TotalScore)
	assert.Zero(t, breakdown.TotalWeight)
	require.Len(t, breakdown.Warnings, 1)
	assert.Equal(t, "Score profile total weight is zero. Returning zero score.", breakdown.Warnings[0])
}

func TestScoreCharacterCarriesMetricWarnings(t *testing.T) {
	profile := evenProfile()
	metrics := &domain.NormalizedCharacterMetrics{
		Warnings: []string{"equipment: upstream 500"},
	}

	breakdown := ScoreCharacter(metrics, profile)
	assert.Equal(t, []string{"equipment: upstream 500"}, breakdown.Warnings)
}

func TestScoreCharacterRoundsTotalToTwoDecimals(t *testing.T) {
	profile := evenProfile()
	metrics := &domain.NormalizedCharacterMetrics{Level: 27}

	breakdown := ScoreCharacter(metrics, profile)
	// 27/80 = 33.75% for one of eight equal weights.
	assert.Equal(t, 4.22, breakdown.TotalScore)
}
