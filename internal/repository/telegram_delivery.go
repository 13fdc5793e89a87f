package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"wow-tracker/internal/domain"
)

type TelegramDeliveryRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewTelegramDeliveryRepository(db *sql.DB, logger zerolog.Logger) *TelegramDeliveryRepository {
	return &TelegramDeliveryRepository{db: db, logger: logger}
}

// GetByKey loads the delivery row for one chat, message type and date, or
// nil when no attempt has been recorded yet.
func (r *TelegramDeliveryRepository) GetByKey(ctx context.Context, chatID, messageType string, deliveryDate time.Time) (*domain.TelegramDelivery, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, job_run_id, chat_id, message_type, delivery_date, status,
		       message_text, telegram_message_id, sent_at, error_json, created_at, updated_at
		FROM telegram_deliveries
		WHERE chat_id = ? AND message_type = ? AND delivery_date = ?`,
		chatID, messageType, FormatDate(deliveryDate))

	delivery, err := scanTelegramDelivery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return delivery, err
}

// CreatePending inserts a fresh PENDING claim and returns its ID. A unique
// constraint error here means a concurrent claimer won the insert; callers
// detect that with IsUniqueConstraint and re-read the row.
func (r *TelegramDeliveryRepository) CreatePending(ctx context.Context, jobRunID, chatID, messageType string, deliveryDate time.Time, messageText string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO telegram_deliveries (
			id, job_run_id, chat_id, message_type, delivery_date,
			status, message_text, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, jobRunID, chatID, messageType, FormatDate(deliveryDate),
		domain.DeliveryStatusPending, messageText, now, now,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Reclaim resets a FAILED row back to PENDING under a new job run, clearing
// every trace of the previous attempt. The update is guarded on the FAILED
// status so only one of several concurrent claimers wins; the losers get
// false and must re-read the row.
func (r *TelegramDeliveryRepository) Reclaim(ctx context.Context, id, jobRunID, messageText string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE telegram_deliveries SET
			job_run_id = ?, status = ?, message_text = ?,
			telegram_message_id = NULL, sent_at = NULL, error_json = NULL, updated_at = ?
		WHERE id = ? AND status = ?`,
		jobRunID, domain.DeliveryStatusPending, messageText, time.Now().UTC(),
		id, domain.DeliveryStatusFailed,
	)
	if err != nil {
		return false, fmt.Errorf("reclaim delivery: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reclaim delivery: %w", err)
	}
	return affected == 1, nil
}

// MarkSent records a successful send. SENT is terminal.
func (r *TelegramDeliveryRepository) MarkSent(ctx context.Context, id, telegramMessageID, messageText string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE telegram_deliveries SET
			status = ?, telegram_message_id = ?, sent_at = ?, message_text = ?,
			error_json = NULL, updated_at = ?
		WHERE id = ?`,
		domain.DeliveryStatusSent, telegramMessageID, now, messageText, now, id,
	)
	if err != nil {
		return fmt.Errorf("mark delivery sent: %w", err)
	}
	return nil
}

// MarkFailed records a failed send so a later run can reclaim the slot.
func (r *TelegramDeliveryRepository) MarkFailed(ctx context.Context, id, errorJSON string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE telegram_deliveries SET status = ?, error_json = ?, updated_at = ?
		WHERE id = ?`,
		domain.DeliveryStatusFailed, errorJSON, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark delivery failed: %w", err)
	}
	return nil
}

func scanTelegramDelivery(row rowScanner) (*domain.TelegramDelivery, error) {
	var d domain.TelegramDelivery
	var rawDate string
	var messageID, errorJSON sql.NullString
	var sentAt sql.NullTime
	err := row.Scan(
		&d.ID, &d.JobRunID, &d.ChatID, &d.MessageType, &rawDate, &d.Status,
		&d.MessageText, &messageID, &sentAt, &errorJSON, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if d.DeliveryDate, err = ParseDate(rawDate); err != nil {
		return nil, fmt.Errorf("parse delivery date %q: %w", rawDate, err)
	}
	d.TelegramMessageID = stringOrEmpty(messageID)
	d.SentAt = timeOrZero(sentAt)
	d.ErrorJSON = stringOrEmpty(errorJSON)
	return &d, nil
}
