package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pawtograder/office-hours/internal/models"
)

const messageColumns = `id, class_id, help_request_id, author, message, requestor, instructors_only, created_at`

// MessageRepository persists durable help request chat.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository constructs a message repository.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// ListByRequest returns up to limit messages of a request, oldest first.
func (r *MessageRepository) ListByRequest(ctx context.Context, requestID int64, limit int) ([]models.HelpRequestMessage, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	query := `SELECT ` + messageColumns + ` FROM help_request_messages WHERE help_request_id = $1 ORDER BY created_at ASC, id ASC LIMIT $2`
	var messages []models.HelpRequestMessage
	if err := r.db.SelectContext(ctx, &messages, query, requestID, limit); err != nil {
		return nil, fmt.Errorf("list help request messages: %w", err)
	}
	return messages, nil
}

// Create inserts a message and fills its id and timestamp.
func (r *MessageRepository) Create(ctx context.Context, msg *models.HelpRequestMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO help_request_messages (class_id, help_request_id, author, message, requestor, instructors_only, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query,
		msg.ClassID, msg.HelpRequestID, msg.Author, msg.Message, msg.Requestor, msg.InstructorsOnly, msg.CreatedAt,
	).Scan(&msg.ID); err != nil {
		return fmt.Errorf("create help request message: %w", err)
	}
	return nil
}
