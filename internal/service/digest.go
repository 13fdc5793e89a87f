package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"wow-tracker/internal/api"
	"wow-tracker/internal/config"
	"wow-tracker/internal/constants"
	"wow-tracker/internal/domain"
	"wow-tracker/internal/jsonval"
	"wow-tracker/internal/repository"
)

const (
	DigestStatusPreview          = "PREVIEW"
	DigestStatusSent             = "SENT"
	DigestStatusSkippedDuplicate = "SKIPPED_DUPLICATE"
)

// DigestService builds the daily Telegram digest from the day's poll results
// and delivers it at most once per chat and day.
type DigestService struct {
	cfg        *config.Config
	sender     api.TelegramSender
	profiles   *repository.ScoreProfileRepository
	scores     *repository.LeaderboardScoreRepository
	deltas     *repository.MetricDeltaRepository
	jobs       *repository.JobRunRepository
	deliveries *repository.TelegramDeliveryRepository
	logger     zerolog.Logger
}

func NewDigestService(
	cfg *config.Config,
	sender api.TelegramSender,
	profiles *repository.ScoreProfileRepository,
	scores *repository.LeaderboardScoreRepository,
	deltas *repository.MetricDeltaRepository,
	jobs *repository.JobRunRepository,
	deliveries *repository.TelegramDeliveryRepository,
	logger zerolog.Logger,
) *DigestService {
	return &DigestService{
		cfg:        cfg,
		sender:     sender,
		profiles:   profiles,
		scores:     scores,
		deltas:     deltas,
		jobs:       jobs,
		deliveries: deliveries,
		logger:     logger,
	}
}

type DigestOptions struct {
	// Send delivers to Telegram; the default renders a preview without side
	// effects.
	Send bool
	// SnapshotDate overrides the digest date; zero means today (UTC).
	SnapshotDate time.Time
}

type DigestResult struct {
	SnapshotDate      string             `json:"snapshotDate"`
	Variant           string             `json:"variant"`
	Status            string             `json:"status"`
	DeliveryID        string             `json:"deliveryId,omitempty"`
	TelegramMessageID string             `json:"telegramMessageId,omitempty"`
	Text              string             `json:"text"`
	Warnings          []string           `json:"warnings"`
	PollSummary       *DigestPollSummary `json:"pollSummary,omitempty"`
}

// Run builds the digest for the requested date and, in send mode, delivers
// it exactly once per (chat, date).
func (s *DigestService) Run(ctx context.Context, opts DigestOptions) (*DigestResult, error) {
	snapshotDate := opts.SnapshotDate
	if snapshotDate.IsZero() {
		snapshotDate = startOfUTCDay(time.Now())
	} else {
		snapshotDate = startOfUTCDay(snapshotDate)
	}
	dateLabel := repository.FormatDate(snapshotDate)

	if !opts.Send {
		data, err := s.queryDigestData(ctx, snapshotDate)
		if err != nil {
			return nil, err
		}
		return &DigestResult{
			SnapshotDate: dateLabel,
			Variant:      data.Variant,
			Status:       DigestStatusPreview,
			Text:         formatDigest(data, s.cfg.TelegramLeagueName),
			Warnings:     data.Warnings,
			PollSummary:  &data.PollSummary,
		}, nil
	}

	if err := s.cfg.RequireTelegramSend(); err != nil {
		return nil, err
	}

	jobRun, err := s.jobs.Create(ctx, domain.JobTypeDigest, snapshotDate)
	if err != nil {
		return nil, err
	}

	result, deliveryID, err := s.send(ctx, jobRun.ID, snapshotDate, dateLabel)
	if err != nil {
		if deliveryID != "" {
			errorJSON, marshalErr := json.Marshal(map[string]string{"message": err.Error()})
			if marshalErr == nil {
				if failErr := s.deliveries.MarkFailed(ctx, deliveryID, string(errorJSON)); failErr != nil {
					s.logger.Error().Err(failErr).Str("deliveryId", deliveryID).Msg("failed to mark delivery failed")
				}
			}
		}
		if finishErr := s.jobs.Finish(ctx, jobRun.ID, domain.JobStatusFailed, map[string]any{
			"snapshotDate": dateLabel,
			"outcome":      "FAILED",
			"deliveryId":   deliveryID,
			"error":        err.Error(),
		}); finishErr != nil {
			s.logger.Error().Err(finishErr).Str("jobRunId", jobRun.ID).Msg("failed to finalize digest job run")
		}
		return nil, err
	}

	details := map[string]any{
		"snapshotDate":      result.SnapshotDate,
		"variant":           result.Variant,
		"outcome":           result.Status,
		"deliveryId":        result.DeliveryID,
		"telegramMessageId": result.TelegramMessageID,
		"messageLength":     len([]rune(result.Text)),
	}
	if result.PollSummary != nil {
		details["pollStatus"] = result.PollSummary.Status
		if result.PollSummary.WarningCount != nil {
			details["warningCount"] = *result.PollSummary.WarningCount
		}
		if result.PollSummary.ErrorCount != nil {
			details["errorCount"] = *result.PollSummary.ErrorCount
		}
	}
	if err := s.jobs.Finish(ctx, jobRun.ID, domain.JobStatusSuccess, details); err != nil {
		return nil, err
	}
	return result, nil
}

// send runs the claim-then-deliver sequence. It returns the delivery ID it
// claimed (if any) so the caller can mark it failed on error.
func (s *DigestService) send(ctx context.Context, jobRunID string, snapshotDate time.Time, dateLabel string) (*DigestResult, string, error) {
	data, err := s.queryDigestData(ctx, snapshotDate)
	if err != nil {
		return nil, "", err
	}
	messageText := formatDigest(data, s.cfg.TelegramLeagueName)

	claim, err := s.claimDeliverySlot(ctx, jobRunID, snapshotDate, messageText)
	if err != nil {
		return nil, "", err
	}

	switch claim.kind {
	case claimRunning:
		return nil, "", fmt.Errorf("another digest delivery is already in progress for %s", dateLabel)
	case claimDuplicate:
		s.logger.Info().Str("deliveryId", claim.deliveryID).Str("snapshotDate", dateLabel).Msg("digest already sent, skipping")
		return &DigestResult{
			SnapshotDate:      dateLabel,
			Variant:           data.Variant,
			Status:            DigestStatusSkippedDuplicate,
			DeliveryID:        claim.deliveryID,
			TelegramMessageID: claim.telegramMessageID,
			Text:              claim.messageText,
			Warnings:          data.Warnings,
			PollSummary:       &data.PollSummary,
		}, "", nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, constants.SendTimeout)
	defer cancel()

	telegramMessageID, err := s.sender.SendMessage(sendCtx, s.cfg.TelegramBotToken, s.cfg.TelegramChatID, messageText)
	if err != nil {
		return nil, claim.deliveryID, err
	}

	if err := s.deliveries.MarkSent(ctx, claim.deliveryID, telegramMessageID, messageText); err != nil {
		return nil, claim.deliveryID, err
	}

	s.logger.Info().
		Str("deliveryId", claim.deliveryID).
		Str("telegramMessageId", telegramMessageID).
		Str("snapshotDate", dateLabel).
		Msg("digest sent")

	return &DigestResult{
		SnapshotDate:      dateLabel,
		Variant:           data.Variant,
		Status:            DigestStatusSent,
		DeliveryID:        claim.deliveryID,
		TelegramMessageID: telegramMessageID,
		Text:              messageText,
		Warnings:          data.Warnings,
		PollSummary:       &data.PollSummary,
	}, claim.deliveryID, nil
}

const (
	claimReady     = "ready"
	claimDuplicate = "duplicate"
	claimRunning   = "running"
)

type deliveryClaim struct {
	kind              string
	deliveryID        string
	messageText       string
	telegramMessageID string
}

// claimDeliverySlot reserves the (chat, message type, date) slot. SENT rows
// are terminal, PENDING rows mean a concurrent run owns the slot, FAILED
// rows are re-claimed. A lost race on insert or reclaim re-reads the row.
func (s *DigestService) claimDeliverySlot(ctx context.Context, jobRunID string, deliveryDate time.Time, messageText string) (*deliveryClaim, error) {
	for {
		existing, err := s.deliveries.GetByKey(ctx, s.cfg.TelegramChatID, domain.MessageTypeDailyDigest, deliveryDate)
		if err != nil {
			return nil, err
		}

		if existing != nil {
			switch existing.Status {
			case domain.DeliveryStatusSent:
				return &deliveryClaim{
					kind:              claimDuplicate,
					deliveryID:        existing.ID,
					messageText:       existing.MessageText,
					telegramMessageID: existing.TelegramMessageID,
				}, nil
			case domain.DeliveryStatusPending:
				return &deliveryClaim{kind: claimRunning, deliveryID: existing.ID}, nil
			}
			won, err := s.deliveries.Reclaim(ctx, existing.ID, jobRunID, messageText)
			if err != nil {
				return nil, err
			}
			if !won {
				// A concurrent claimer moved the row off FAILED first.
				continue
			}
			return &deliveryClaim{kind: claimReady, deliveryID: existing.ID}, nil
		}

		id, err := s.deliveries.CreatePending(ctx, jobRunID, s.cfg.TelegramChatID, domain.MessageTypeDailyDigest, deliveryDate, messageText)
		if err != nil {
			if repository.IsUniqueConstraint(err) {
				continue
			}
			return nil, err
		}
		return &deliveryClaim{kind: claimReady, deliveryID: id}, nil
	}
}

type parsedPollResult struct {
	CharacterName string
	RealmSlug     string
	Region        domain.Region
	OK            bool
	Warnings      []string
	Error         string
}

func (s *DigestService) queryDigestData(ctx context.Context, snapshotDate time.Time) (*digestData, error) {
	dateLabel := repository.FormatDate(snapshotDate)

	pollJob, err := s.jobs.LatestCompletedPoll(ctx, snapshotDate)
	if err != nil {
		return nil, err
	}
	if pollJob == nil {
		return nil, fmt.Errorf("no completed poll job found for %s", dateLabel)
	}

	details := parsePollJobDetails(pollJob.DetailsJSON)
	summary := DigestPollSummary{
		Status:       pollJob.Status,
		WarningCount: details.warningCount,
		ErrorCount:   details.errorCount,
	}

	if pollJob.Status == domain.JobStatusFailed {
		failureMessage := details.message
		if failureMessage == "" {
			failureMessage = "Poll job failed with no error details."
		}
		return &digestData{
			Variant:        DigestVariantPollFailure,
			SnapshotDate:   dateLabel,
			PollJobRunID:   pollJob.ID,
			PollSummary:    summary,
			FailureMessage: failureMessage,
			Warnings:       []string{},
		}, nil
	}

	activeProfile, err := s.profiles.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	if activeProfile == nil {
		return nil, fmt.Errorf("no active score profile found for digest generation")
	}

	entries, err := s.scores.ListForDate(ctx, activeProfile.ID, snapshotDate)
	if err != nil {
		return nil, err
	}

	rows := make([]digestRow, 0, len(entries))
	snapshotIDs := make([]string, 0, len(entries))
	metaBySnapshotID := make(map[string]digestRow, len(entries))
	for _, entry := range entries {
		row := digestRow{
			Rank:          entry.Rank,
			CharacterName: entry.CharacterName,
			Region:        entry.Region,
			RealmSlug:     entry.RealmSlug,
			TotalScore:    entry.TotalScore,
			DailyDelta:    entry.DailyDelta,
		}
		rows = append(rows, row)
		snapshotIDs = append(snapshotIDs, entry.SnapshotID)
		metaBySnapshotID[entry.SnapshotID] = row
	}

	milestoneRows, err := s.deltas.ListMilestonesBySnapshotIDs(ctx, snapshotIDs)
	if err != nil {
		return nil, err
	}

	milestones := []digestMilestone{}
	for _, row := range milestoneRows {
		meta, ok := metaBySnapshotID[row.ToSnapshotID]
		if !ok {
			continue
		}
		for _, text := range row.Milestones {
			milestones = append(milestones, digestMilestone{
				Rank:          meta.Rank,
				CharacterName: row.CharacterName,
				Region:        row.Region,
				RealmSlug:     row.RealmSlug,
				DailyDelta:    meta.DailyDelta,
				Text:          text,
			})
		}
	}
	sort.SliceStable(milestones, func(i, j int) bool {
		a, b := milestones[i], milestones[j]
		if a.DailyDelta != b.DailyDelta {
			return a.DailyDelta > b.DailyDelta
		}
		if rankSortValue(a.Rank) != rankSortValue(b.Rank) {
			return rankSortValue(a.Rank) < rankSortValue(b.Rank)
		}
		return a.CharacterName < b.CharacterName
	})

	topMovers := []digestRow{}
	for _, row := range rows {
		if row.DailyDelta > 0 {
			topMovers = append(topMovers, row)
		}
	}
	sort.SliceStable(topMovers, func(i, j int) bool {
		a, b := topMovers[i], topMovers[j]
		if a.DailyDelta != b.DailyDelta {
			return a.DailyDelta > b.DailyDelta
		}
		if rankSortValue(a.Rank) != rankSortValue(b.Rank) {
			return rankSortValue(a.Rank) < rankSortValue(b.Rank)
		}
		return a.CharacterName < b.CharacterName
	})

	warnings := buildPollWarnings(details.results)
	if summary.WarningCount == nil {
		count := len(warnings)
		summary.WarningCount = &count
	}
	if summary.ErrorCount == nil {
		count := 0
		for _, result := range details.results {
			if !result.OK || result.Error != "" {
				count++
			}
		}
		summary.ErrorCount = &count
	}

	return &digestData{
		Variant:        DigestVariantStandings,
		SnapshotDate:   dateLabel,
		PollJobRunID:   pollJob.ID,
		PollSummary:    summary,
		ProfileName:    activeProfile.Name,
		ProfileVersion: activeProfile.Version,
		Rows:           rows,
		TopMovers:      topMovers,
		Milestones:     milestones,
		Warnings:       warnings,
	}, nil
}

func rankSortValue(rank int) int {
	if rank == 0 {
		return math.MaxInt
	}
	return rank
}

type pollJobDetails struct {
	warningCount *int
	errorCount   *int
	message      string
	results      []parsedPollResult
}

// parsePollJobDetails tolerates missing or malformed details since old rows
// may predate the current payload shape.
func parsePollJobDetails(detailsJSON string) pollJobDetails {
	var raw any
	if detailsJSON != "" {
		if err := json.Unmarshal([]byte(detailsJSON), &raw); err != nil {
			raw = nil
		}
	}
	record := jsonval.Record(raw)

	parsed := pollJobDetails{
		message: jsonval.String(record["message"]),
	}
	if n, ok := jsonval.Number(record["warningCount"]); ok {
		count := int(n)
		parsed.warningCount = &count
	}
	if n, ok := jsonval.Number(record["errorCount"]); ok {
		count := int(n)
		parsed.errorCount = &count
	}

	for _, item := range jsonval.Array(record["results"]) {
		result := jsonval.Record(item)
		character := jsonval.Record(result["character"])

		name := jsonval.String(character["characterName"])
		realm := jsonval.String(character["realmSlug"])
		region := domain.Region(jsonval.String(character["region"]))
		if name == "" || realm == "" || (region != domain.RegionUS && region != domain.RegionEU) {
			continue
		}

		ok, _ := result["ok"].(bool)
		parsed.results = append(parsed.results, parsedPollResult{
			CharacterName: name,
			RealmSlug:     realm,
			Region:        region,
			OK:            ok,
			Warnings:      jsonval.StringArray(result["warnings"]),
			Error:         jsonval.String(result["error"]),
		})
	}
	return parsed
}

func buildPollWarnings(results []parsedPollResult) []string {
	warnings := []string{}
	for _, result := range results {
		label := fmt.Sprintf("%s (%s/%s)", result.CharacterName, result.Region, result.RealmSlug)
		if !result.OK && result.Error != "" {
			warnings = append(warnings, fmt.Sprintf("ERROR %s: %s", label, result.Error))
		}
		for _, warning := range result.Warnings {
			warnings = append(warnings, fmt.Sprintf("WARN %s: %s", label, warning))
		}
	}
	return warnings
}
