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

type LeaderboardScoreRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewLeaderboardScoreRepository(db *sql.DB, logger zerolog.Logger) *LeaderboardScoreRepository {
	return &LeaderboardScoreRepository{db: db, logger: logger}
}

// GetTotalScore returns a character's total score for one snapshot under one
// profile. ok is false when no score row exists.
func (r *LeaderboardScoreRepository) GetTotalScore(ctx context.Context, trackedCharacterID, snapshotID, scoreProfileID string) (float64, bool, error) {
	var total float64
	err := r.db.QueryRowContext(ctx, `
		SELECT total_score FROM leaderboard_scores
		WHERE tracked_character_id = ? AND snapshot_id = ? AND score_profile_id = ?`,
		trackedCharacterID, snapshotID, scoreProfileID,
	).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return total, true, nil
}

// Upsert writes one score row; re-scoring the same character/snapshot/profile
// replaces the totals and breakdown but clears no rank, which the next
// ranking pass rewrites anyway.
func (r *LeaderboardScoreRepository) Upsert(ctx context.Context, score *domain.LeaderboardScore) error {
	id, err := gonanoid.New()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO leaderboard_scores (
			id, tracked_character_id, snapshot_id, score_profile_id,
			total_score, daily_delta, breakdown_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tracked_character_id, snapshot_id, score_profile_id) DO UPDATE SET
			total_score = excluded.total_score,
			daily_delta = excluded.daily_delta,
			breakdown_json = excluded.breakdown_json,
			updated_at = excluded.updated_at`,
		id, score.TrackedCharacterID, score.SnapshotID, score.ScoreProfileID,
		score.TotalScore, score.DailyDelta, score.BreakdownJSON, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert leaderboard score: %w", err)
	}
	return nil
}

// AssignRanks recomputes dense 1-based ranks for every active character's
// score on one date under one profile. Ordering is total score descending,
// then daily delta descending, then character name ascending, all applied in
// a single transaction so readers never see a half-ranked board.
func (r *LeaderboardScoreRepository) AssignRanks(ctx context.Context, scoreProfileID string, snapshotDate time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT ls.id
		FROM leaderboard_scores ls
		JOIN character_snapshots cs ON cs.id = ls.snapshot_id
		JOIN tracked_characters tc ON tc.id = ls.tracked_character_id
		WHERE ls.score_profile_id = ? AND cs.snapshot_date = ? AND tc.active = 1
		ORDER BY ls.total_score DESC, ls.daily_delta DESC, tc.character_name ASC`,
		scoreProfileID, FormatDate(snapshotDate))
	if err != nil {
		return err
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	now := time.Now().UTC()
	for i, id := range ids {
		if _, err := tx.ExecContext(ctx, `
			UPDATE leaderboard_scores SET rank = ?, updated_at = ? WHERE id = ?`,
			i+1, now, id); err != nil {
			return fmt.Errorf("assign rank: %w", err)
		}
	}
	return tx.Commit()
}

// LeaderboardEntry is one ranked row joined with its character and snapshot,
// shared by the digest and the read API. Rank 0 means the row was never
// ranked.
type LeaderboardEntry struct {
	Rank               int
	TrackedCharacterID string
	SnapshotID         string
	CharacterName      string
	Region             domain.Region
	RealmSlug          string
	Faction            domain.Faction
	PortraitURL        string
	TotalScore         float64
	DailyDelta         float64
	PolledAt           time.Time
	Metrics            domain.NormalizedCharacterMetrics
}

// ListForDate returns the board for one date under one profile, ranked rows
// first in rank order, unranked rows after by score.
func (r *LeaderboardScoreRepository) ListForDate(ctx context.Context, scoreProfileID string, snapshotDate time.Time) ([]LeaderboardEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ls.rank, ls.tracked_character_id, ls.snapshot_id,
		       tc.character_name, tc.region, tc.realm_slug, tc.faction, tc.portrait_url,
		       ls.total_score, ls.daily_delta, cs.polled_at, cs.normalized_metrics_json
		FROM leaderboard_scores ls
		JOIN character_snapshots cs ON cs.id = ls.snapshot_id
		JOIN tracked_characters tc ON tc.id = ls.tracked_character_id
		WHERE ls.score_profile_id = ? AND cs.snapshot_date = ? AND tc.active = 1
		ORDER BY ls.rank IS NULL, ls.rank ASC, ls.total_score DESC, tc.character_name ASC`,
		scoreProfileID, FormatDate(snapshotDate))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		var rank sql.NullInt64
		var metricsJSON string
		err := rows.Scan(
			&rank, &e.TrackedCharacterID, &e.SnapshotID,
			&e.CharacterName, &e.Region, &e.RealmSlug, &e.Faction, &e.PortraitURL,
			&e.TotalScore, &e.DailyDelta, &e.PolledAt, &metricsJSON,
		)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(metricsJSON), &e.Metrics); err != nil {
			return nil, fmt.Errorf("unmarshal normalized metrics: %w", err)
		}
		e.Rank = int(rank.Int64)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
