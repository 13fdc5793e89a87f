package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"wow-tracker/internal/domain"
)

type SnapshotRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewSnapshotRepository(db *sql.DB, logger zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{db: db, logger: logger}
}

// Upsert writes one character/day snapshot and returns its ID. Re-polling
// the same day replaces the payloads in place, keeping the snapshot row and
// anything referencing it stable.
func (r *SnapshotRepository) Upsert(ctx context.Context, snapshot *domain.CharacterSnapshot) (string, error) {
	metricsJSON, err := json.Marshal(snapshot.NormalizedMetrics)
	if err != nil {
		return "", fmt.Errorf("marshal normalized metrics: %w", err)
	}

	id, err := gonanoid.New()
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO character_snapshots (
			id, tracked_character_id, snapshot_date, polled_at,
			raw_profile_json, raw_progress_json, normalized_metrics_json,
			source_version, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tracked_character_id, snapshot_date) DO UPDATE SET
			polled_at = excluded.polled_at,
			raw_profile_json = excluded.raw_profile_json,
			raw_progress_json = excluded.raw_progress_json,
			normalized_metrics_json = excluded.normalized_metrics_json,
			source_version = excluded.source_version`,
		id, snapshot.TrackedCharacterID, FormatDate(snapshot.SnapshotDate), snapshot.PolledAt,
		snapshot.RawProfileJSON, snapshot.RawProgressJSON, string(metricsJSON),
		snapshot.SourceVersion, now,
	)
	if err != nil {
		return "", fmt.Errorf("upsert snapshot: %w", err)
	}

	var existingID string
	err = r.db.QueryRowContext(ctx, `
		SELECT id FROM character_snapshots
		WHERE tracked_character_id = ? AND snapshot_date = ?`,
		snapshot.TrackedCharacterID, FormatDate(snapshot.SnapshotDate),
	).Scan(&existingID)
	if err != nil {
		return "", fmt.Errorf("resolve snapshot id: %w", err)
	}
	return existingID, nil
}

// GetPrevious returns the most recent snapshot for a character strictly
// before the given date, or nil when this is the first observation.
func (r *SnapshotRepository) GetPrevious(ctx context.Context, trackedCharacterID string, before time.Time) (*domain.CharacterSnapshot, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, tracked_character_id, snapshot_date, polled_at,
		       raw_profile_json, raw_progress_json, normalized_metrics_json,
		       source_version, created_at
		FROM character_snapshots
		WHERE tracked_character_id = ? AND snapshot_date < ?
		ORDER BY snapshot_date DESC
		LIMIT 1`,
		trackedCharacterID, FormatDate(before))

	snapshot, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return snapshot, err
}

// LatestDate returns the most recent snapshot date across all characters.
// ok is false when no snapshots exist at all.
func (r *SnapshotRepository) LatestDate(ctx context.Context) (time.Time, bool, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `
		SELECT snapshot_date FROM character_snapshots
		ORDER BY snapshot_date DESC LIMIT 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	date, err := ParseDate(raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return date, true, nil
}

// PreviousDate returns the most recent snapshot date strictly before the
// given one, across all characters. ok is false when none exists.
func (r *SnapshotRepository) PreviousDate(ctx context.Context, before time.Time) (time.Time, bool, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `
		SELECT snapshot_date FROM character_snapshots
		WHERE snapshot_date < ?
		ORDER BY snapshot_date DESC LIMIT 1`,
		FormatDate(before)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	date, err := ParseDate(raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return date, true, nil
}

// ListActiveByDate returns every snapshot on a date whose character is still
// active on the roster.
func (r *SnapshotRepository) ListActiveByDate(ctx context.Context, date time.Time) ([]domain.CharacterSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT cs.id, cs.tracked_character_id, cs.snapshot_date, cs.polled_at,
		       cs.raw_profile_json, cs.raw_progress_json, cs.normalized_metrics_json,
		       cs.source_version, cs.created_at
		FROM character_snapshots cs
		JOIN tracked_characters tc ON tc.id = cs.tracked_character_id
		WHERE cs.snapshot_date = ? AND tc.active = 1`,
		FormatDate(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []domain.CharacterSnapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *snapshot)
	}
	return snapshots, rows.Err()
}

func scanSnapshot(row rowScanner) (*domain.CharacterSnapshot, error) {
	var s domain.CharacterSnapshot
	var rawDate, metricsJSON string
	err := row.Scan(
		&s.ID, &s.TrackedCharacterID, &rawDate, &s.PolledAt,
		&s.RawProfileJSON, &s.RawProgressJSON, &metricsJSON,
		&s.SourceVersion, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if s.SnapshotDate, err = ParseDate(rawDate); err != nil {
		return nil, fmt.Errorf("parse snapshot date %q: %w", rawDate, err)
	}
	if err := json.Unmarshal([]byte(metricsJSON), &s.NormalizedMetrics); err != nil {
		return nil, fmt.Errorf("unmarshal normalized metrics: %w", err)
	}
	return &s, nil
}
