package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wow-tracker/internal/domain"
)

func writeConfigFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
}

func TestLoadTrackedCharacters(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "tracked-characters.json", `{
		"version": 1,
		"characters": [
			{"region": "EU", "realmSlug": " Silvermoon ", "characterName": " Thrall ", "faction": "HORDE"},
			{"region": "US", "realmSlug": "stormrage", "characterName": "Jaina", "faction": "ALLIANCE", "active": false, "notes": "alt"}
		]
	}`)

	roster, err := LoadTrackedCharacters(dir)
	require.NoError(t, err)
	require.Len(t, roster.Characters, 2)

	// Realm slugs normalize to lowercase and names are trimmed.
	assert.Equal(t, "silvermoon", roster.Characters[0].RealmSlug)
	assert.Equal(t, "Thrall", roster.Characters[0].CharacterName)
	assert.True(t, roster.Characters[0].IsActive())
	assert.False(t, roster.Characters[1].IsActive())
}

func TestLoadTrackedCharactersValidation(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr string
	}{
		{
			name:    "missing file",
			json:    "",
			wantErr: "failed to read",
		},
		{
			name:    "invalid json",
			json:    `{"characters": [`,
			wantErr: "invalid JSON",
		},
		{
			name: "invalid region",
			json: `{"characters": [
				{"region": "KR", "realmSlug": "a", "characterName": "B", "faction": "HORDE"}
			]}`,
			wantErr: `invalid region "KR"`,
		},
		{
			name: "invalid faction",
			json: `{"characters": [
				{"region": "EU", "realmSlug": "a", "characterName": "B", "faction": "NEUTRAL"}
			]}`,
			wantErr: `invalid faction "NEUTRAL"`,
		},
		{
			name: "blank name",
			json: `{"characters": [
				{"region": "EU", "realmSlug": "a", "characterName": "   ", "faction": "HORDE"}
			]}`,
			wantErr: "characterName must not be empty",
		},
		{
			name: "duplicate identity key casing",
			json: `{"characters": [
				{"region": "EU", "realmSlug": "silvermoon", "characterName": "Thrall", "faction": "HORDE"},
				{"region": "EU", "realmSlug": "SILVERMOON", "characterName": "THRALL", "faction": "HORDE"}
			]}`,
			wantErr: "duplicate tracked character entry: EU:silvermoon:thrall",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.json != "" {
				writeConfigFile(t, dir, "tracked-characters.json", tt.json)
			}
			_, err := LoadTrackedCharacters(dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

const validScoreProfileJSON = `{
	"name": "default",
	"version": 2,
	"weights": {
		"level": 1, "itemLevel": 1, "mythicPlusRating": 1, "bestKey": 1,
		"quests": 1, "reputations": 1, "encounters": 1, "achievementsStatistics": 1
	},
	"normalizationCaps": {
		"level": 80, "completedQuestCount": 200, "reputationProgressTotal": 10000,
		"averageItemLevel": 500, "encounterKillScore": 50, "mythicPlusSeasonScore": 3000,
		"mythicPlusBestRunLevel": 20, "achievementPoints": 10000, "statisticsCompositeValue": 100000
	},
	"filters": {"encounterIds": [2500], "factionIds": [], "questIds": [], "mythicSeasonIds": [13], "statisticIds": []}
}`

func TestLoadScoreProfile(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "score-profile.json", validScoreProfileJSON)

	profile, err := LoadScoreProfile(dir)
	require.NoError(t, err)
	assert.Equal(t, "default", profile.Name)
	assert.Equal(t, 2, profile.Version)
	assert.Equal(t, []int{2500}, profile.Filters.EncounterIDs)
	assert.Equal(t, []int{13}, profile.Filters.MythicSeasonIDs)
}

func TestLoadScoreProfileValidation(t *testing.T) {
	t.Run("missing name", func(t *testing.T) {
		dir := t.TempDir()
		writeConfigFile(t, dir, "score-profile.json", `{"version": 1}`)
		_, err := LoadScoreProfile(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "name must not be empty")
	})

	t.Run("negative weight", func(t *testing.T) {
		dir := t.TempDir()
		writeConfigFile(t, dir, "score-profile.json", `{
			"name": "x",
			"weights": {"level": -1},
			"normalizationCaps": {
				"level": 1, "completedQuestCount": 1, "reputationProgressTotal": 1,
				"averageItemLevel": 1, "encounterKillScore": 1, "mythicPlusSeasonScore": 1,
				"mythicPlusBestRunLevel": 1, "achievementPoints": 1, "statisticsCompositeValue": 1
			}
		}`)
		_, err := LoadScoreProfile(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `weight "level" must be non-negative`)
	})

	t.Run("zero cap", func(t *testing.T) {
		dir := t.TempDir()
		writeConfigFile(t, dir, "score-profile.json", `{
			"name": "x",
			"normalizationCaps": {
				"level": 80, "completedQuestCount": 200, "reputationProgressTotal": 10000,
				"averageItemLevel": 500, "encounterKillScore": 50, "mythicPlusSeasonScore": 3000,
				"mythicPlusBestRunLevel": 20, "achievementPoints": 10000, "statisticsCompositeValue": 0
			}
		}`)
		_, err := LoadScoreProfile(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `cap "statisticsCompositeValue" must be positive`)
	})
}

func TestCharacterKey(t *testing.T) {
	key := CharacterKey(domain.TrackedCharacterConfig{
		Region:        domain.RegionEU,
		RealmSlug:     "Silvermoon",
		CharacterName: "Thrall",
	})
	assert.Equal(t, "EU:silvermoon:thrall", key)
}

func TestRequireBlizzardCredentials(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.RequireBlizzardCredentials())

	cfg.BlizzardClientID = "id"
	assert.Error(t, cfg.RequireBlizzardCredentials())

	cfg.BlizzardClientSecret = "secret"
	assert.NoError(t, cfg.RequireBlizzardCredentials())
}

func TestRequireTelegramSend(t *testing.T) {
	cfg := &Config{TelegramBotToken: "t"}
	assert.Error(t, cfg.RequireTelegramSend())

	cfg.TelegramChatID = "-100"
	assert.NoError(t, cfg.RequireTelegramSend())
}
