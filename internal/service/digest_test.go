package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wow-tracker/internal/domain"
)

// pollForDigest seeds a completed poll run so the digest has data to render.
func pollForDigest(t *testing.T, env *testEnv, date time.Time) {
	t.Helper()
	provider := &fakeProvider{
		bundles: map[string]*domain.RawProgressBundle{
			"Thrall": simpleBundle(80),
			"Jaina":  simpleBundle(40),
		},
	}
	_, err := env.newPollService(provider).RunForDate(context.Background(), date)
	require.NoError(t, err)
}

func TestDigestPreviewHasNoSideEffects(t *testing.T) {
	env := newTestEnv(t)
	pollForDigest(t, env, testDate(1))
	sender := &fakeSender{}
	digest := env.newDigestService(sender)
	ctx := context.Background()

	result, err := digest.Run(ctx, DigestOptions{SnapshotDate: testDate(1)})
	require.NoError(t, err)

	assert.Equal(t, DigestStatusPreview, result.Status)
	assert.Equal(t, DigestVariantStandings, result.Variant)
	assert.Equal(t, "2026-03-01", result.SnapshotDate)
	assert.Contains(t, result.Text, "Test League")
	assert.Contains(t, result.Text, "1. Thrall (EU/silvermoon)")
	assert.Empty(t, sender.messages)

	delivery, err := env.deliveries.GetByKey(ctx, env.cfg.TelegramChatID, domain.MessageTypeDailyDigest, testDate(1))
	require.NoError(t, err)
	assert.Nil(t, delivery)
}

func TestDigestRequiresCompletedPoll(t *testing.T) {
	env := newTestEnv(t)
	digest := env.newDigestService(&fakeSender{})

	_, err := digest.Run(context.Background(), DigestOptions{SnapshotDate: testDate(1)})
	require.Error(t, err)
	assert.EqualError(t, err, "no completed poll job found for 2026-03-01")
}

func TestDigestSend(t *testing.T) {
	env := newTestEnv(t)
	pollForDigest(t, env, testDate(1))
	sender := &fakeSender{messageID: "42"}
	digest := env.newDigestService(sender)
	ctx := context.Background()

	result, err := digest.Run(ctx, DigestOptions{Send: true, SnapshotDate: testDate(1)})
	require.NoError(t, err)

	assert.Equal(t, DigestStatusSent, result.Status)
	assert.Equal(t, "42", result.TelegramMessageID)
	assert.NotEmpty(t, result.DeliveryID)
	require.Len(t, sender.messages, 1)
	assert.Equal(t, "bot-token", sender.messages[0].BotToken)
	assert.Equal(t, "-100123", sender.messages[0].ChatID)
	assert.Equal(t, result.Text, sender.messages[0].Text)

	delivery, err := env.deliveries.GetByKey(ctx, env.cfg.TelegramChatID, domain.MessageTypeDailyDigest, testDate(1))
	require.NoError(t, err)
	require.NotNil(t, delivery)
	assert.Equal(t, domain.DeliveryStatusSent, delivery.Status)
	assert.Equal(t, "42", delivery.TelegramMessageID)
	assert.Equal(t, result.Text, delivery.MessageText)
	assert.False(t, delivery.SentAt.IsZero())
}

func TestDigestSendRequiresTelegramConfig(t *testing.T) {
	env := newTestEnv(t)
	pollForDigest(t, env, testDate(1))
	env.cfg.TelegramBotToken = ""
	digest := env.newDigestService(&fakeSender{})

	_, err := digest.Run(context.Background(), DigestOptions{Send: true, SnapshotDate: testDate(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN")
}

func TestDigestSecondSendSkipsDuplicate(t *testing.T) {
	env := newTestEnv(t)
	pollForDigest(t, env, testDate(1))
	sender := &fakeSender{messageID: "42"}
	digest := env.newDigestService(sender)
	ctx := context.Background()

	first, err := digest.Run(ctx, DigestOptions{Send: true, SnapshotDate: testDate(1)})
	require.NoError(t, err)

	second, err := digest.Run(ctx, DigestOptions{Send: true, SnapshotDate: testDate(1)})
	require.NoError(t, err)

	assert.Equal(t, DigestStatusSkippedDuplicate, second.Status)
	assert.Equal(t, first.DeliveryID, second.DeliveryID)
	assert.Equal(t, "42", second.TelegramMessageID)
	// Exactly one Telegram call across both runs.
	assert.Len(t, sender.messages, 1)
}

func TestDigestPendingDeliveryBlocksSend(t *testing.T) {
	env := newTestEnv(t)
	pollForDigest(t, env, testDate(1))
	sender := &fakeSender{}
	digest := env.newDigestService(sender)
	ctx := context.Background()

	jobRun, err := env.jobs.Create(ctx, domain.JobTypeDigest, testDate(1))
	require.NoError(t, err)
	_, err = env.deliveries.CreatePending(ctx, jobRun.ID, env.cfg.TelegramChatID, domain.MessageTypeDailyDigest, testDate(1), "in flight")
	require.NoError(t, err)

	_, err = digest.Run(ctx, DigestOptions{Send: true, SnapshotDate: testDate(1)})
	require.Error(t, err)
	assert.EqualError(t, err, "another digest delivery is already in progress for 2026-03-01")
	assert.Empty(t, sender.messages)
}

func TestDigestReclaimsFailedDelivery(t *testing.T) {
	env := newTestEnv(t)
	pollForDigest(t, env, testDate(1))
	ctx := context.Background()

	failing := &fakeSender{err: fmt.Errorf("telegram sendMessage failed (502): bad gateway")}
	_, err := env.newDigestService(failing).Run(ctx, DigestOptions{Send: true, SnapshotDate: testDate(1)})
	require.Error(t, err)

	delivery, err := env.deliveries.GetByKey(ctx, env.cfg.TelegramChatID, domain.MessageTypeDailyDigest, testDate(1))
	require.NoError(t, err)
	require.NotNil(t, delivery)
	assert.Equal(t, domain.DeliveryStatusFailed, delivery.Status)
	assert.Contains(t, delivery.ErrorJSON, "bad gateway")

	sender := &fakeSender{messageID: "77"}
	result, err := env.newDigestService(sender).Run(ctx, DigestOptions{Send: true, SnapshotDate: testDate(1)})
	require.NoError(t, err)

	// The failed row is re-claimed rather than duplicated.
	assert.Equal(t, DigestStatusSent, result.Status)
	assert.Equal(t, delivery.ID, result.DeliveryID)
	assert.Len(t, sender.messages, 1)

	reclaimed, err := env.deliveries.GetByKey(ctx, env.cfg.TelegramChatID, domain.MessageTypeDailyDigest, testDate(1))
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusSent, reclaimed.Status)
	assert.Equal(t, "77", reclaimed.TelegramMessageID)
	assert.Empty(t, reclaimed.ErrorJSON)
}

func TestDigestFailedReclaimRace(t *testing.T) {
	env := newTestEnv(t)
	pollForDigest(t, env, testDate(1))
	ctx := context.Background()

	failing := &fakeSender{err: fmt.Errorf("telegram sendMessage failed (502): bad gateway")}
	_, err := env.newDigestService(failing).Run(ctx, DigestOptions{Send: true, SnapshotDate: testDate(1)})
	require.Error(t, err)

	failed, err := env.deliveries.GetByKey(ctx, env.cfg.TelegramChatID, domain.MessageTypeDailyDigest, testDate(1))
	require.NoError(t, err)
	require.Equal(t, domain.DeliveryStatusFailed, failed.Status)

	// Two claimers read the row as FAILED. The first reclaim wins the slot.
	runA, err := env.jobs.Create(ctx, domain.JobTypeDigest, testDate(1))
	require.NoError(t, err)
	won, err := env.deliveries.Reclaim(ctx, failed.ID, runA.ID, "claimer A text")
	require.NoError(t, err)
	assert.True(t, won)

	// The second reclaim works from the same stale FAILED read and must lose
	// without touching the winner's claim.
	runB, err := env.jobs.Create(ctx, domain.JobTypeDigest, testDate(1))
	require.NoError(t, err)
	won, err = env.deliveries.Reclaim(ctx, failed.ID, runB.ID, "claimer B text")
	require.NoError(t, err)
	assert.False(t, won)

	claimed, err := env.deliveries.GetByKey(ctx, env.cfg.TelegramChatID, domain.MessageTypeDailyDigest, testDate(1))
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusPending, claimed.Status)
	assert.Equal(t, runA.ID, claimed.JobRunID)
	assert.Equal(t, "claimer A text", claimed.MessageText)

	// A loser that re-reads the row now sees PENDING and backs off, so the
	// slot produces exactly one ready outcome.
	sender := &fakeSender{}
	_, err = env.newDigestService(sender).Run(ctx, DigestOptions{Send: true, SnapshotDate: testDate(1)})
	require.Error(t, err)
	assert.EqualError(t, err, "another digest delivery is already in progress for 2026-03-01")
	assert.Empty(t, sender.messages)
}

func TestDigestSendFailureMarksJobFailed(t *testing.T) {
	env := newTestEnv(t)
	pollForDigest(t, env, testDate(1))
	sender := &fakeSender{err: fmt.Errorf("telegram sendMessage failed (429): flood control")}
	digest := env.newDigestService(sender)
	ctx := context.Background()

	_, err := digest.Run(ctx, DigestOptions{Send: true, SnapshotDate: testDate(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flood control")

	job, err := env.jobs.LatestByType(ctx, domain.JobTypeDigest)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Contains(t, job.DetailsJSON, "flood control")
}

func TestDigestPollFailureVariant(t *testing.T) {
	env := newTestEnv(t)
	provider := &fakeProvider{
		errs: map[string]error{
			"Thrall": fmt.Errorf("blizzard request failed"),
			"Jaina":  fmt.Errorf("blizzard request failed"),
		},
	}
	_, err := env.newPollService(provider).RunForDate(context.Background(), testDate(1))
	require.NoError(t, err)

	digest := env.newDigestService(&fakeSender{})
	result, err := digest.Run(context.Background(), DigestOptions{SnapshotDate: testDate(1)})
	require.NoError(t, err)

	assert.Equal(t, DigestVariantPollFailure, result.Variant)
	assert.Contains(t, result.Text, "Failure Summary")
	require.NotNil(t, result.PollSummary)
	assert.Equal(t, domain.JobStatusFailed, result.PollSummary.Status)
}

func TestDigestWarningsAndMovers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	bundle := simpleBundle(80)
	bundle.EndpointErrors = map[string]string{"equipment": "equipment: upstream 500"}
	provider := &fakeProvider{
		bundles: map[string]*domain.RawProgressBundle{
			"Thrall": bundle,
			"Jaina":  simpleBundle(40),
		},
	}
	_, err := env.newPollService(provider).RunForDate(ctx, testDate(1))
	require.NoError(t, err)

	result, err := env.newDigestService(&fakeSender{}).Run(ctx, DigestOptions{SnapshotDate: testDate(1)})
	require.NoError(t, err)

	assert.Contains(t, result.Text, "WARN Thrall (EU/silvermoon): equipment: upstream 500")
	// First-day deltas are positive, so both characters count as movers.
	assert.Contains(t, result.Text, "Top Movers")
	// A level-80 first observation is a level milestone.
	assert.Contains(t, result.Text, "Notable Milestones")
	assert.Contains(t, result.Text, "Level +80")
}
