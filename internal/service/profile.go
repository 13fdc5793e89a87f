package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"wow-tracker/internal/domain"
	"wow-tracker/internal/repository"
)

// ensureActiveScoreProfile persists the config-defined score profile if its
// content hash is new and makes it the single active profile. Editing the
// config therefore creates a new profile row while old scores keep pointing
// at the profile they were computed under.
func ensureActiveScoreProfile(
	ctx context.Context,
	profiles *repository.ScoreProfileRepository,
	cfg *domain.ScoreProfileConfig,
) (*domain.ScoreProfile, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("hash score profile: %w", err)
	}
	digest := sha256.Sum256(raw)
	sourceHash := hex.EncodeToString(digest[:])

	profile, err := profiles.GetBySourceHash(ctx, sourceHash)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		candidate := &domain.ScoreProfile{
			Name:              cfg.Name,
			Version:           cfg.Version,
			SourceHash:        sourceHash,
			Weights:           cfg.Weights,
			NormalizationCaps: cfg.NormalizationCaps,
			Filters:           cfg.Filters,
			IsActive:          true,
		}
		if _, err := profiles.Insert(ctx, candidate); err != nil {
			return nil, err
		}
		if profile, err = profiles.GetBySourceHash(ctx, sourceHash); err != nil {
			return nil, err
		}
		if profile == nil {
			return nil, fmt.Errorf("score profile vanished after insert")
		}
	}

	if err := profiles.ActivateExclusive(ctx, profile.ID); err != nil {
		return nil, err
	}
	profile.IsActive = true
	return profile, nil
}

// startOfUTCDay truncates a timestamp to UTC midnight, the granularity every
// snapshot and delivery is keyed on.
func startOfUTCDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

var snapshotDatePattern = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)

// ParseSnapshotDate parses a YYYY-MM-DD argument into UTC midnight,
// rejecting impossible calendar dates.
func ParseSnapshotDate(raw string) (time.Time, error) {
	match := snapshotDatePattern.FindStringSubmatch(raw)
	if match == nil {
		return time.Time{}, fmt.Errorf("invalid snapshot date %q, expected YYYY-MM-DD", raw)
	}
	year, _ := strconv.Atoi(match[1])
	month, _ := strconv.Atoi(match[2])
	day, _ := strconv.Atoi(match[3])

	parsed := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if parsed.Year() != year || parsed.Month() != time.Month(month) || parsed.Day() != day {
		return time.Time{}, fmt.Errorf("invalid snapshot date %q, not a real calendar date", raw)
	}
	return parsed, nil
}
