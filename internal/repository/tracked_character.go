package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"wow-tracker/internal/domain"
)

type TrackedCharacterRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewTrackedCharacterRepository(db *sql.DB, logger zerolog.Logger) *TrackedCharacterRepository {
	return &TrackedCharacterRepository{db: db, logger: logger}
}

// UpsertFromConfig inserts or refreshes one roster entry and returns its ID.
// Identity is (region, realm_slug, character_name_lower); display name,
// faction, active flag and notes follow the config on every sync.
func (r *TrackedCharacterRepository) UpsertFromConfig(ctx context.Context, character domain.TrackedCharacterConfig) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	nameLower := strings.ToLower(character.CharacterName)

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tracked_characters (
			id, region, realm_slug, character_name, character_name_lower,
			faction, active, notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (region, realm_slug, character_name_lower) DO UPDATE SET
			character_name = excluded.character_name,
			faction = excluded.faction,
			active = excluded.active,
			notes = excluded.notes,
			updated_at = excluded.updated_at`,
		id, character.Region, character.RealmSlug, character.CharacterName, nameLower,
		character.Faction, character.IsActive(), character.Notes, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("upsert tracked character: %w", err)
	}

	var existingID string
	err = r.db.QueryRowContext(ctx, `
		SELECT id FROM tracked_characters
		WHERE region = ? AND realm_slug = ? AND character_name_lower = ?`,
		character.Region, character.RealmSlug, nameLower,
	).Scan(&existingID)
	if err != nil {
		return "", fmt.Errorf("resolve tracked character id: %w", err)
	}
	return existingID, nil
}

// DeactivateExcept soft-deletes every roster entry whose ID is not in keep.
// Rows are never hard-deleted so historical snapshots stay attached.
func (r *TrackedCharacterRepository) DeactivateExcept(ctx context.Context, keep []string) (int64, error) {
	query := `UPDATE tracked_characters SET active = 0, updated_at = ? WHERE active = 1`
	args := []any{time.Now().UTC()}

	if len(keep) > 0 {
		placeholders := strings.Repeat("?,", len(keep))
		query += fmt.Sprintf(" AND id NOT IN (%s)", placeholders[:len(placeholders)-1])
		for _, id := range keep {
			args = append(args, id)
		}
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deactivate tracked characters: %w", err)
	}
	return result.RowsAffected()
}

func (r *TrackedCharacterRepository) SetPortraitURL(ctx context.Context, id, portraitURL string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tracked_characters SET portrait_url = ?, updated_at = ? WHERE id = ?`,
		portraitURL, time.Now().UTC(), id,
	)
	return err
}

func (r *TrackedCharacterRepository) GetByID(ctx context.Context, id string) (*domain.TrackedCharacter, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, region, realm_slug, character_name, character_name_lower,
		       faction, active, portrait_url, notes, created_at, updated_at
		FROM tracked_characters WHERE id = ?`, id)
	return scanTrackedCharacter(row)
}

func (r *TrackedCharacterRepository) ListActive(ctx context.Context) ([]domain.TrackedCharacter, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, region, realm_slug, character_name, character_name_lower,
		       faction, active, portrait_url, notes, created_at, updated_at
		FROM tracked_characters WHERE active = 1
		ORDER BY character_name_lower`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var characters []domain.TrackedCharacter
	for rows.Next() {
		character, err := scanTrackedCharacter(rows)
		if err != nil {
			return nil, err
		}
		characters = append(characters, *character)
	}
	return characters, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrackedCharacter(row rowScanner) (*domain.TrackedCharacter, error) {
	var c domain.TrackedCharacter
	err := row.Scan(
		&c.ID, &c.Region, &c.RealmSlug, &c.CharacterName, &c.CharacterNameLower,
		&c.Faction, &c.Active, &c.PortraitURL, &c.Notes, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
