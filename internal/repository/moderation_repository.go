package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pawtograder/office-hours/internal/models"
)

const moderationColumns = `id, class_id, student_profile_id, moderator_profile_id, help_request_id, message_id, action_type, reason, duration_minutes, expires_at, is_permanent, created_at`

// ModerationRepository persists moderation actions.
type ModerationRepository struct {
	db *sqlx.DB
}

// NewModerationRepository constructs a moderation repository.
func NewModerationRepository(db *sqlx.DB) *ModerationRepository {
	return &ModerationRepository{db: db}
}

// Create inserts an action and fills its id.
func (r *ModerationRepository) Create(ctx context.Context, action *models.ModerationAction) error {
	query := `INSERT INTO help_request_moderation (class_id, student_profile_id, moderator_profile_id, help_request_id, message_id, action_type, reason, duration_minutes, expires_at, is_permanent, created_at)
VALUES (:class_id, :student_profile_id, :moderator_profile_id, :help_request_id, :message_id, :action_type, :reason, :duration_minutes, :expires_at, :is_permanent, :created_at)
RETURNING id`
	rows, err := r.db.NamedQueryContext(ctx, query, action)
	if err != nil {
		return fmt.Errorf("create moderation action: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&action.ID); err != nil {
			return fmt.Errorf("scan moderation action id: %w", err)
		}
	}
	return rows.Err()
}

// ListByClass returns a class's actions, newest first.
func (r *ModerationRepository) ListByClass(ctx context.Context, classID int64) ([]models.ModerationAction, error) {
	query := `SELECT ` + moderationColumns + ` FROM help_request_moderation WHERE class_id = $1 ORDER BY created_at DESC, id DESC`
	var actions []models.ModerationAction
	if err := r.db.SelectContext(ctx, &actions, query, classID); err != nil {
		return nil, fmt.Errorf("list moderation actions: %w", err)
	}
	return actions, nil
}

// ActiveBan returns the most recent ban on the student in force at now.
func (r *ModerationRepository) ActiveBan(ctx context.Context, classID int64, profileID string, now time.Time) (*models.ModerationAction, error) {
	query := `SELECT ` + moderationColumns + ` FROM help_request_moderation
WHERE class_id = $1 AND student_profile_id = $2
  AND (action_type = 'permanent_ban' OR (action_type = 'temporary_ban' AND (is_permanent OR expires_at > $3)))
ORDER BY created_at DESC, id DESC
LIMIT 1`
	var action models.ModerationAction
	if err := r.db.GetContext(ctx, &action, query, classID, profileID, now); err != nil {
		return nil, err
	}
	return &action, nil
}
