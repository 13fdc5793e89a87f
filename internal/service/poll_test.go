package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wow-tracker/internal/domain"
)

func TestPollRunForDateSuccess(t *testing.T) {
	env := newTestEnv(t)
	provider := &fakeProvider{
		bundles: map[string]*domain.RawProgressBundle{
			"Thrall": simpleBundle(80),
			"Jaina":  simpleBundle(40),
		},
	}
	poll := env.newPollService(provider)
	ctx := context.Background()

	result, err := poll.RunForDate(ctx, testDate(1))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Zero(t, result.ErrorCount)
	assert.Equal(t, "2026-03-01T00:00:00Z", result.SnapshotDate)
	require.Len(t, result.Results, 2)
	for _, r := range result.Results {
		assert.True(t, r.OK)
		assert.NotEmpty(t, r.SnapshotID)
	}

	profile, err := env.profiles.GetActive(ctx)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "test-profile", profile.Name)

	entries, err := env.scores.ListForDate(ctx, profile.ID, testDate(1))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Level 80 hits its cap; level 40 is halfway, for one of eight weights.
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "Thrall", entries[0].CharacterName)
	assert.Equal(t, 12.5, entries[0].TotalScore)
	assert.Equal(t, 2, entries[1].Rank)
	assert.Equal(t, "Jaina", entries[1].CharacterName)
	assert.Equal(t, 6.25, entries[1].TotalScore)

	job, err := env.jobs.LatestCompletedPoll(ctx, testDate(1))
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, domain.JobStatusSuccess, job.Status)
	assert.Contains(t, job.DetailsJSON, `"successCount":2`)
}

func TestPollFirstObservationDeltaFromZero(t *testing.T) {
	env := newTestEnv(t)
	provider := &fakeProvider{
		bundles: map[string]*domain.RawProgressBundle{
			"Thrall": simpleBundle(80),
			"Jaina":  simpleBundle(40),
		},
	}
	poll := env.newPollService(provider)
	ctx := context.Background()

	_, err := poll.RunForDate(ctx, testDate(1))
	require.NoError(t, err)

	profile, err := env.profiles.GetActive(ctx)
	require.NoError(t, err)
	entries, err := env.scores.ListForDate(ctx, profile.ID, testDate(1))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// No previous snapshot means the daily delta equals the full score.
	assert.Equal(t, entries[0].TotalScore, entries[0].DailyDelta)

	deltas, err := env.deltas.ListDeltasBySnapshotIDs(ctx, []string{entries[0].SnapshotID})
	require.NoError(t, err)
	require.Len(t, deltas, 1)
	assert.Equal(t, 80.0, deltas[entries[0].SnapshotID].Level)
}

func TestPollDayOverDayDelta(t *testing.T) {
	env := newTestEnv(t)
	provider := &fakeProvider{
		bundles: map[string]*domain.RawProgressBundle{
			"Thrall": simpleBundle(40),
			"Jaina":  simpleBundle(40),
		},
	}
	poll := env.newPollService(provider)
	ctx := context.Background()

	_, err := poll.RunForDate(ctx, testDate(1))
	require.NoError(t, err)

	provider.bundles["Thrall"] = simpleBundle(80)
	_, err = poll.RunForDate(ctx, testDate(2))
	require.NoError(t, err)

	profile, err := env.profiles.GetActive(ctx)
	require.NoError(t, err)
	entries, err := env.scores.ListForDate(ctx, profile.ID, testDate(2))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "Thrall", entries[0].CharacterName)
	assert.Equal(t, 12.5, entries[0].TotalScore)
	assert.Equal(t, 6.25, entries[0].DailyDelta)
	assert.Equal(t, "Jaina", entries[1].CharacterName)
	assert.Zero(t, entries[1].DailyDelta)

	deltas, err := env.deltas.ListDeltasBySnapshotIDs(ctx, []string{entries[0].SnapshotID})
	require.NoError(t, err)
	assert.Equal(t, 40.0, deltas[entries[0].SnapshotID].Level)
}

func TestPollRepollSameDayOverwrites(t *testing.T) {
	env := newTestEnv(t)
	provider := &fakeProvider{
		bundles: map[string]*domain.RawProgressBundle{
			"Thrall": simpleBundle(40),
			"Jaina":  simpleBundle(40),
		},
	}
	poll := env.newPollService(provider)
	ctx := context.Background()

	_, err := poll.RunForDate(ctx, testDate(1))
	require.NoError(t, err)

	provider.bundles["Thrall"] = simpleBundle(80)
	_, err = poll.RunForDate(ctx, testDate(1))
	require.NoError(t, err)

	snapshots, err := env.snapshots.ListActiveByDate(ctx, testDate(1))
	require.NoError(t, err)
	// One snapshot per character per day, updated in place.
	require.Len(t, snapshots, 2)

	profile, err := env.profiles.GetActive(ctx)
	require.NoError(t, err)
	entries, err := env.scores.ListForDate(ctx, profile.ID, testDate(1))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Thrall", entries[0].CharacterName)
	assert.Equal(t, 12.5, entries[0].TotalScore)
}

func TestPollMissingProfileSummary(t *testing.T) {
	env := newTestEnv(t)
	provider := &fakeProvider{
		bundles: map[string]*domain.RawProgressBundle{
			"Thrall": simpleBundle(80),
			"Jaina": {
				EndpointErrors: map[string]string{
					"profileSummary": "profileSummary: upstream 404",
				},
			},
		},
	}
	poll := env.newPollService(provider)
	ctx := context.Background()

	result, err := poll.RunForDate(ctx, testDate(1))
	require.NoError(t, err)

	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 1, result.ErrorCount)

	var failed *domain.PollCharacterResult
	for i := range result.Results {
		if !result.Results[i].OK {
			failed = &result.Results[i]
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, "Jaina", failed.Character.CharacterName)
	assert.Equal(t,
		"missing profile summary (character may be private/invalid). Endpoint errors: profileSummary: upstream 404",
		failed.Error)

	job, err := env.jobs.LatestCompletedPoll(ctx, testDate(1))
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPartialFailure, job.Status)
}

func TestPollAllCharactersFailing(t *testing.T) {
	env := newTestEnv(t)
	provider := &fakeProvider{
		errs: map[string]error{
			"Thrall": fmt.Errorf("blizzard request failed"),
			"Jaina":  fmt.Errorf("blizzard request failed"),
		},
	}
	poll := env.newPollService(provider)
	ctx := context.Background()

	result, err := poll.RunForDate(ctx, testDate(1))
	require.NoError(t, err)
	assert.Zero(t, result.SuccessCount)
	assert.Equal(t, 2, result.ErrorCount)

	job, err := env.jobs.LatestCompletedPoll(ctx, testDate(1))
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
}

func TestPollRosterSoftDelete(t *testing.T) {
	env := newTestEnv(t)
	provider := &fakeProvider{
		bundles: map[string]*domain.RawProgressBundle{
			"Thrall": simpleBundle(80),
			"Jaina":  simpleBundle(40),
		},
	}
	poll := env.newPollService(provider)
	ctx := context.Background()

	_, err := poll.RunForDate(ctx, testDate(1))
	require.NoError(t, err)

	active, err := env.characters.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)

	roster := testRoster()
	roster.Characters = roster.Characters[:1]
	writeRosterConfig(t, env.cfg.ConfigDir, roster)

	result, err := poll.RunForDate(ctx, testDate(2))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	active, err = env.characters.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Thrall", active[0].CharacterName)

	// Historical snapshots survive the soft delete.
	snapshots, err := env.snapshots.ListActiveByDate(ctx, testDate(1))
	require.NoError(t, err)
	assert.Len(t, snapshots, 1)
}

func TestPollInvalidRosterConfigFailsJob(t *testing.T) {
	env := newTestEnv(t)
	roster := testRoster()
	roster.Characters = append(roster.Characters, roster.Characters[0])
	writeRosterConfig(t, env.cfg.ConfigDir, roster)

	poll := env.newPollService(&fakeProvider{})
	ctx := context.Background()

	_, err := poll.RunForDate(ctx, testDate(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate tracked character entry")

	job, err := env.jobs.LatestCompletedPoll(ctx, testDate(1))
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
}

func TestPollSetsPortraitURL(t *testing.T) {
	env := newTestEnv(t)
	bundle := simpleBundle(80)
	bundle.CharacterMedia = map[string]any{
		"assets": []any{
			map[string]any{"key": "avatar", "value": "https://render.example.test/thrall.jpg"},
		},
	}
	provider := &fakeProvider{
		bundles: map[string]*domain.RawProgressBundle{
			"Thrall": bundle,
			"Jaina":  simpleBundle(40),
		},
	}
	poll := env.newPollService(provider)
	ctx := context.Background()

	_, err := poll.RunForDate(ctx, testDate(1))
	require.NoError(t, err)

	active, err := env.characters.ListActive(ctx)
	require.NoError(t, err)
	for _, character := range active {
		if character.CharacterName == "Thrall" {
			assert.Equal(t, "https://render.example.test/thrall.jpg", character.PortraitURL)
		} else {
			assert.Empty(t, character.PortraitURL)
		}
	}
}
