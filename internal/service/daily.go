package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"wow-tracker/internal/domain"
	"wow-tracker/internal/repository"
)

// DailyService chains the poll and the digest into one automation run. The
// two stages are independent: a failed poll still produces a digest attempt,
// which then reports the failure to the chat.
type DailyService struct {
	poll   *PollService
	digest *DigestService
	logger zerolog.Logger
}

func NewDailyService(poll *PollService, digest *DigestService, logger zerolog.Logger) *DailyService {
	return &DailyService{poll: poll, digest: digest, logger: logger}
}

type DailyPollOutcome struct {
	Status  string                `json:"status"`
	Summary *domain.PollJobResult `json:"summary,omitempty"`
	Error   string                `json:"error,omitempty"`
}

type DailyDigestOutcome struct {
	Attempted         bool   `json:"attempted"`
	Mode              string `json:"mode"`
	Status            string `json:"status,omitempty"`
	Variant           string `json:"variant,omitempty"`
	DeliveryID        string `json:"deliveryId,omitempty"`
	TelegramMessageID string `json:"telegramMessageId,omitempty"`
	WarningCount      *int   `json:"warningCount,omitempty"`
	Error             string `json:"error,omitempty"`
}

// DailyResult summarizes one automation run. OK tracks only the digest
// stage: a partially failed poll with a delivered digest still counts as a
// successful run, since the digest is the run's observable output.
type DailyResult struct {
	OK           bool               `json:"ok"`
	Mode         string             `json:"mode"`
	SnapshotDate string             `json:"snapshotDate"`
	StartedAt    string             `json:"startedAt"`
	FinishedAt   string             `json:"finishedAt"`
	Poll         DailyPollOutcome   `json:"poll"`
	Digest       DailyDigestOutcome `json:"digest"`
}

func (s *DailyService) Run(ctx context.Context, dryRun bool) *DailyResult {
	startedAt := time.Now().UTC()
	snapshotDate := startOfUTCDay(startedAt)

	mode := "send"
	digestMode := "send"
	if dryRun {
		mode = "dry_run"
		digestMode = "preview"
	}

	poll := DailyPollOutcome{Status: "ERROR"}
	pollResult, err := s.poll.RunForDate(ctx, snapshotDate)
	if err != nil {
		poll.Error = err.Error()
		s.logger.Error().Err(err).Msg("daily automation poll stage failed")
	} else {
		poll.Summary = pollResult
		switch {
		case pollResult.ErrorCount == 0:
			poll.Status = string(domain.JobStatusSuccess)
		case pollResult.SuccessCount > 0:
			poll.Status = string(domain.JobStatusPartialFailure)
		default:
			poll.Status = string(domain.JobStatusFailed)
		}
	}

	digest := DailyDigestOutcome{Attempted: true, Mode: digestMode}
	digestResult, err := s.digest.Run(ctx, DigestOptions{
		Send:         !dryRun,
		SnapshotDate: snapshotDate,
	})
	if err != nil {
		digest.Error = err.Error()
		s.logger.Error().Err(err).Msg("daily automation digest stage failed")
	} else {
		digest.Status = digestResult.Status
		digest.Variant = digestResult.Variant
		digest.DeliveryID = digestResult.DeliveryID
		digest.TelegramMessageID = digestResult.TelegramMessageID
		warningCount := len(digestResult.Warnings)
		digest.WarningCount = &warningCount
	}

	dateLabel := repository.FormatDate(snapshotDate)
	if digestResult != nil {
		dateLabel = digestResult.SnapshotDate
	}

	return &DailyResult{
		OK:           digest.Error == "",
		Mode:         mode,
		SnapshotDate: dateLabel,
		StartedAt:    startedAt.Format(time.RFC3339),
		FinishedAt:   time.Now().UTC().Format(time.RFC3339),
		Poll:         poll,
		Digest:       digest,
	}
}
