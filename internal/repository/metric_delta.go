package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"wow-tracker/internal/domain"
)

type MetricDeltaRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewMetricDeltaRepository(db *sql.DB, logger zerolog.Logger) *MetricDeltaRepository {
	return &MetricDeltaRepository{db: db, logger: logger}
}

// Upsert writes the delta row keyed by destination snapshot, replacing it
// when the same day is re-polled.
func (r *MetricDeltaRepository) Upsert(ctx context.Context, delta *domain.CharacterMetricDelta) error {
	deltaJSON, err := json.Marshal(delta.Deltas)
	if err != nil {
		return fmt.Errorf("marshal metric deltas: %w", err)
	}
	milestonesJSON, err := json.Marshal(delta.Milestones)
	if err != nil {
		return fmt.Errorf("marshal milestones: %w", err)
	}

	id, err := gonanoid.New()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO character_metric_deltas (
			id, tracked_character_id, from_snapshot_id, to_snapshot_id,
			delta_json, milestones_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (to_snapshot_id) DO UPDATE SET
			from_snapshot_id = excluded.from_snapshot_id,
			delta_json = excluded.delta_json,
			milestones_json = excluded.milestones_json,
			updated_at = excluded.updated_at`,
		id, delta.TrackedCharacterID, nullString(delta.FromSnapshotID), delta.ToSnapshotID,
		string(deltaJSON), string(milestonesJSON), now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert metric delta: %w", err)
	}
	return nil
}

// ListDeltasBySnapshotIDs returns the stored metric deltas keyed by
// destination snapshot ID.
func (r *MetricDeltaRepository) ListDeltasBySnapshotIDs(ctx context.Context, snapshotIDs []string) (map[string]domain.MetricDeltas, error) {
	if len(snapshotIDs) == 0 {
		return map[string]domain.MetricDeltas{}, nil
	}

	placeholders := strings.Repeat("?,", len(snapshotIDs))
	args := make([]any, len(snapshotIDs))
	for i, id := range snapshotIDs {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT to_snapshot_id, delta_json
		FROM character_metric_deltas
		WHERE to_snapshot_id IN (%s)`, placeholders[:len(placeholders)-1]), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := map[string]domain.MetricDeltas{}
	for rows.Next() {
		var toSnapshotID, deltaJSON string
		if err := rows.Scan(&toSnapshotID, &deltaJSON); err != nil {
			return nil, err
		}
		var deltas domain.MetricDeltas
		if err := json.Unmarshal([]byte(deltaJSON), &deltas); err != nil {
			return nil, fmt.Errorf("unmarshal metric deltas: %w", err)
		}
		result[toSnapshotID] = deltas
	}
	return result, rows.Err()
}

// MilestoneRow is one delta row joined with its character, used to build the
// milestones section of the digest.
type MilestoneRow struct {
	ToSnapshotID  string
	CharacterName string
	Region        domain.Region
	RealmSlug     string
	Milestones    []string
}

// ListMilestonesBySnapshotIDs returns milestone rows for the given
// destination snapshots.
func (r *MetricDeltaRepository) ListMilestonesBySnapshotIDs(ctx context.Context, snapshotIDs []string) ([]MilestoneRow, error) {
	if len(snapshotIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(snapshotIDs))
	args := make([]any, len(snapshotIDs))
	for i, id := range snapshotIDs {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT cmd.to_snapshot_id, tc.character_name, tc.region, tc.realm_slug, cmd.milestones_json
		FROM character_metric_deltas cmd
		JOIN tracked_characters tc ON tc.id = cmd.tracked_character_id
		WHERE cmd.to_snapshot_id IN (%s)`, placeholders[:len(placeholders)-1]), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []MilestoneRow
	for rows.Next() {
		var row MilestoneRow
		var milestonesJSON string
		if err := rows.Scan(&row.ToSnapshotID, &row.CharacterName, &row.Region, &row.RealmSlug, &milestonesJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(milestonesJSON), &row.Milestones); err != nil {
			return nil, fmt.Errorf("unmarshal milestones: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
