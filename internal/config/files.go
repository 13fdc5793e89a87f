package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"wow-tracker/internal/domain"
)

const (
	trackedCharactersFile = "tracked-characters.json"
	scoreProfileFile      = "score-profile.json"
)

// LoadTrackedCharacters reads and validates the roster config. Duplicate
// identity keys and malformed entries are fatal for the calling job.
func LoadTrackedCharacters(configDir string) (*domain.TrackedCharactersConfig, error) {
	var parsed domain.TrackedCharactersConfig
	if err := readJSONFile(configDir, trackedCharactersFile, &parsed); err != nil {
		return nil, err
	}

	if parsed.Version <= 0 {
		parsed.Version = 1
	}

	seen := make(map[string]struct{}, len(parsed.Characters))
	for i := range parsed.Characters {
		character := &parsed.Characters[i]
		character.RealmSlug = strings.ToLower(strings.TrimSpace(character.RealmSlug))
		character.CharacterName = strings.TrimSpace(character.CharacterName)

		if err := validateCharacter(*character); err != nil {
			return nil, fmt.Errorf("tracked character %d: %w", i, err)
		}

		key := CharacterKey(*character)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate tracked character entry: %s", key)
		}
		seen[key] = struct{}{}
	}

	return &parsed, nil
}

// LoadScoreProfile reads and validates the score profile config: weights must
// be non-negative and every normalization cap positive.
func LoadScoreProfile(configDir string) (*domain.ScoreProfileConfig, error) {
	var parsed domain.ScoreProfileConfig
	if err := readJSONFile(configDir, scoreProfileFile, &parsed); err != nil {
		return nil, err
	}

	if parsed.Name == "" {
		return nil, fmt.Errorf("score profile name must not be empty")
	}
	if parsed.Version <= 0 {
		parsed.Version = 1
	}

	weights := map[string]float64{
		"level":                  parsed.Weights.Level,
		"itemLevel":              parsed.Weights.ItemLevel,
		"mythicPlusRating":       parsed.Weights.MythicPlusRating,
		"bestKey":                parsed.Weights.BestKey,
		"quests":                 parsed.Weights.Quests,
		"reputations":            parsed.Weights.Reputations,
		"encounters":             parsed.Weights.Encounters,
		"achievementsStatistics": parsed.Weights.AchievementsStatistics,
	}
	for name, weight := range weights {
		if weight < 0 {
			return nil, fmt.Errorf("score profile weight %q must be non-negative, got %v", name, weight)
		}
	}

	caps := map[string]float64{
		"level":                    parsed.NormalizationCaps.Level,
		"completedQuestCount":      parsed.NormalizationCaps.CompletedQuestCount,
		"reputationProgressTotal":  parsed.NormalizationCaps.ReputationProgressTotal,
		"averageItemLevel":         parsed.NormalizationCaps.AverageItemLevel,
		"encounterKillScore":       parsed.NormalizationCaps.EncounterKillScore,
		"mythicPlusSeasonScore":    parsed.NormalizationCaps.MythicPlusSeasonScore,
		"mythicPlusBestRunLevel":   parsed.NormalizationCaps.MythicPlusBestRunLevel,
		"achievementPoints":        parsed.NormalizationCaps.AchievementPoints,
		"statisticsCompositeValue": parsed.NormalizationCaps.StatisticsCompositeValue,
	}
	for name, capValue := range caps {
		if capValue <= 0 {
			return nil, fmt.Errorf("score profile normalization cap %q must be positive, got %v", name, capValue)
		}
	}

	return &parsed, nil
}

// CharacterKey is the roster identity key: region:realm:name-lowercase.
func CharacterKey(character domain.TrackedCharacterConfig) string {
	return fmt.Sprintf("%s:%s:%s",
		character.Region,
		strings.ToLower(character.RealmSlug),
		strings.ToLower(character.CharacterName))
}

func validateCharacter(character domain.TrackedCharacterConfig) error {
	if character.Region != domain.RegionUS && character.Region != domain.RegionEU {
		return fmt.Errorf("invalid region %q", character.Region)
	}
	if character.Faction != domain.FactionHorde && character.Faction != domain.FactionAlliance {
		return fmt.Errorf("invalid faction %q", character.Faction)
	}
	if character.RealmSlug == "" {
		return fmt.Errorf("realmSlug must not be empty")
	}
	if character.CharacterName == "" {
		return fmt.Errorf("characterName must not be empty")
	}
	if len(character.Notes) > 500 {
		return fmt.Errorf("notes must be at most 500 characters")
	}
	return nil
}

func readJSONFile(configDir, fileName string, out any) error {
	fullPath := filepath.Join(configDir, fileName)
	contents, err := os.ReadFile(fullPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", fullPath, err)
	}
	if err := json.Unmarshal(contents, out); err != nil {
		return fmt.Errorf("invalid JSON in %s: %w", fullPath, err)
	}
	return nil
}
