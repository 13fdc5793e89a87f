package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"wow-tracker/internal/config"
	"wow-tracker/internal/database"
	"wow-tracker/internal/domain"
	"wow-tracker/internal/repository"
)

// testEnv wires every repository against a throwaway SQLite file plus a
// config dir with a two-character roster.
type testEnv struct {
	cfg        *config.Config
	db         *sql.DB
	characters *repository.TrackedCharacterRepository
	snapshots  *repository.SnapshotRepository
	deltas     *repository.MetricDeltaRepository
	profiles   *repository.ScoreProfileRepository
	scores     *repository.LeaderboardScoreRepository
	jobs       *repository.JobRunRepository
	deliveries *repository.TelegramDeliveryRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.Nop()

	dir := t.TempDir()
	db, err := database.Open(filepath.Join(dir, "tracker.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	configDir := filepath.Join(dir, "config")
	require.NoError(t, os.Mkdir(configDir, 0o755))
	writeRosterConfig(t, configDir, testRoster())
	writeScoreProfileConfig(t, configDir, testScoreProfile())

	cfg := &config.Config{
		TelegramBotToken:   "bot-token",
		TelegramChatID:     "-100123",
		TelegramLeagueName: "Test League",
		ConfigDir:          configDir,
		DBPath:             filepath.Join(dir, "tracker.db"),
	}

	return &testEnv{
		cfg:        cfg,
		db:         db,
		characters: repository.NewTrackedCharacterRepository(db, logger),
		snapshots:  repository.NewSnapshotRepository(db, logger),
		deltas:     repository.NewMetricDeltaRepository(db, logger),
		profiles:   repository.NewScoreProfileRepository(db, logger),
		scores:     repository.NewLeaderboardScoreRepository(db, logger),
		jobs:       repository.NewJobRunRepository(db, logger),
		deliveries: repository.NewTelegramDeliveryRepository(db, logger),
	}
}

func (e *testEnv) newPollService(provider *fakeProvider) *PollService {
	return NewPollService(e.cfg, provider, e.characters, e.snapshots, e.deltas, e.profiles, e.scores, e.jobs, zerolog.Nop())
}

func (e *testEnv) newDigestService(sender *fakeSender) *DigestService {
	return NewDigestService(e.cfg, sender, e.profiles, e.scores, e.deltas, e.jobs, e.deliveries, zerolog.Nop())
}

func (e *testEnv) newRebuildService() *RebuildService {
	return NewRebuildService(e.cfg, e.snapshots, e.profiles, e.scores, e.jobs, zerolog.Nop())
}

func testRoster() *domain.TrackedCharactersConfig {
	return &domain.TrackedCharactersConfig{
		Version: 1,
		Characters: []domain.TrackedCharacterConfig{
			{Region: domain.RegionEU, RealmSlug: "silvermoon", CharacterName: "Thrall", Faction: domain.FactionHorde},
			{Region: domain.RegionUS, RealmSlug: "stormrage", CharacterName: "Jaina", Faction: domain.FactionAlliance},
		},
	}
}

func testScoreProfile() *domain.ScoreProfileConfig {
	return &domain.ScoreProfileConfig{
		Name:    "test-profile",
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

func writeRosterConfig(t *testing.T, configDir string, roster *domain.TrackedCharactersConfig) {
	t.Helper()
	writeJSONFile(t, filepath.Join(configDir, "tracked-characters.json"), roster)
}

func writeScoreProfileConfig(t *testing.T, configDir string, profile *domain.ScoreProfileConfig) {
	t.Helper()
	writeJSONFile(t, filepath.Join(configDir, "score-profile.json"), profile)
}

func writeJSONFile(t *testing.T, path string, value any) {
	t.Helper()
	contents, err := json.Marshal(value)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, contents, 0o644))
}

// fakeProvider serves canned bundles keyed by character name.
type fakeProvider struct {
	bundles map[string]*domain.RawProgressBundle
	errs    map[string]error
	calls   int
}

func (f *fakeProvider) FetchProgressBundle(
	_ context.Context,
	character domain.TrackedCharacterConfig,
	_ *domain.ScoreProfileConfig,
) (*domain.RawProgressBundle, error) {
	f.calls++
	if err := f.errs[character.CharacterName]; err != nil {
		return nil, err
	}
	bundle, ok := f.bundles[character.CharacterName]
	if !ok {
		bundle = &domain.RawProgressBundle{
			FetchedAt:      time.Now().UTC(),
			EndpointErrors: map[string]string{},
		}
	}
	return bundle, nil
}

// simpleBundle builds a bundle whose only signal is the character level, so
// scores order by level.
func simpleBundle(level float64) *domain.RawProgressBundle {
	return &domain.RawProgressBundle{
		FetchedAt:      time.Now().UTC(),
		ProfileSummary: map[string]any{"level": level},
		EndpointErrors: map[string]string{},
	}
}

type sentMessage struct {
	BotToken string
	ChatID   string
	Text     string
}

// fakeSender records Telegram sends and can fail on demand.
type fakeSender struct {
	messages  []sentMessage
	err       error
	nextID    int
	messageID string
}

func (f *fakeSender) SendMessage(_ context.Context, botToken, chatID, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.messages = append(f.messages, sentMessage{BotToken: botToken, ChatID: chatID, Text: text})
	if f.messageID != "" {
		return f.messageID, nil
	}
	f.nextID++
	return fmt.Sprintf("msg-%d", f.nextID), nil
}

func testDate(day int) time.Time {
	return time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC)
}
