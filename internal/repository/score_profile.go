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

type ScoreProfileRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewScoreProfileRepository(db *sql.DB, logger zerolog.Logger) *ScoreProfileRepository {
	return &ScoreProfileRepository{db: db, logger: logger}
}

// GetBySourceHash looks a profile up by its content hash, returning nil when
// this exact config has never been persisted.
func (r *ScoreProfileRepository) GetBySourceHash(ctx context.Context, sourceHash string) (*domain.ScoreProfile, error) {
	row := r.db.QueryRowContext(ctx, scoreProfileSelect+` WHERE source_hash = ?`, sourceHash)
	profile, err := scanScoreProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return profile, err
}

// GetActive returns the currently active profile, newest first if several
// are flagged, or nil when none is.
func (r *ScoreProfileRepository) GetActive(ctx context.Context) (*domain.ScoreProfile, error) {
	row := r.db.QueryRowContext(ctx, scoreProfileSelect+`
		WHERE is_active = 1 ORDER BY updated_at DESC LIMIT 1`)
	profile, err := scanScoreProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return profile, err
}

func (r *ScoreProfileRepository) Insert(ctx context.Context, profile *domain.ScoreProfile) (string, error) {
	weightsJSON, err := json.Marshal(profile.Weights)
	if err != nil {
		return "", fmt.Errorf("marshal weights: %w", err)
	}
	capsJSON, err := json.Marshal(profile.NormalizationCaps)
	if err != nil {
		return "", fmt.Errorf("marshal normalization caps: %w", err)
	}
	filtersJSON, err := json.Marshal(profile.Filters)
	if err != nil {
		return "", fmt.Errorf("marshal filters: %w", err)
	}

	id, err := gonanoid.New()
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO score_profiles (
			id, name, version, source_hash, weights_json,
			normalization_caps_json, filters_json, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, profile.Name, profile.Version, profile.SourceHash, string(weightsJSON),
		string(capsJSON), string(filtersJSON), profile.IsActive, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("insert score profile: %w", err)
	}
	return id, nil
}

// ActivateExclusive flips the given profile active and every other profile
// inactive in one transaction, so exactly one profile is active afterwards.
func (r *ScoreProfileRepository) ActivateExclusive(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE score_profiles SET is_active = 0, updated_at = ?
		WHERE is_active = 1 AND id != ?`, now, id); err != nil {
		return fmt.Errorf("deactivate score profiles: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE score_profiles SET is_active = 1, updated_at = ? WHERE id = ?`, now, id); err != nil {
		return fmt.Errorf("activate score profile: %w", err)
	}
	return tx.Commit()
}

const scoreProfileSelect = `
	SELECT id, name, version, source_hash, weights_json,
	       normalization_caps_json, filters_json, is_active, created_at, updated_at
	FROM score_profiles`

func scanScoreProfile(row rowScanner) (*domain.ScoreProfile, error) {
	var p domain.ScoreProfile
	var weightsJSON, capsJSON, filtersJSON string
	err := row.Scan(
		&p.ID, &p.Name, &p.Version, &p.SourceHash, &weightsJSON,
		&capsJSON, &filtersJSON, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(weightsJSON), &p.Weights); err != nil {
		return nil, fmt.Errorf("unmarshal weights: %w", err)
	}
	if err := json.Unmarshal([]byte(capsJSON), &p.NormalizationCaps); err != nil {
		return nil, fmt.Errorf("unmarshal normalization caps: %w", err)
	}
	if err := json.Unmarshal([]byte(filtersJSON), &p.Filters); err != nil {
		return nil, fmt.Errorf("unmarshal filters: %w", err)
	}
	return &p, nil
}
