package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pawtograder/office-hours/internal/models"
)

const helpQueueColumns = `id, class_id, name, description, queue_type, is_demo, available, created_at, updated_at`

// HelpQueueRepository reads help queues.
type HelpQueueRepository struct {
	db *sqlx.DB
}

// NewHelpQueueRepository constructs a help queue repository.
func NewHelpQueueRepository(db *sqlx.DB) *HelpQueueRepository {
	return &HelpQueueRepository{db: db}
}

// ListHelpQueues returns every queue ordered by id.
func (r *HelpQueueRepository) ListHelpQueues(ctx context.Context) ([]models.HelpQueue, error) {
	query := `SELECT ` + helpQueueColumns + ` FROM help_queues ORDER BY id`
	var queues []models.HelpQueue
	if err := r.db.SelectContext(ctx, &queues, query); err != nil {
		return nil, fmt.Errorf("list help queues: %w", err)
	}
	return queues, nil
}

// GetByID fetches a queue.
func (r *HelpQueueRepository) GetByID(ctx context.Context, id int64) (*models.HelpQueue, error) {
	query := `SELECT ` + helpQueueColumns + ` FROM help_queues WHERE id = $1`
	var queue models.HelpQueue
	if err := r.db.GetContext(ctx, &queue, query, id); err != nil {
		return nil, err
	}
	return &queue, nil
}

// ListByClass returns a class's queues ordered by id.
func (r *HelpQueueRepository) ListByClass(ctx context.Context, classID int64) ([]models.HelpQueue, error) {
	query := `SELECT ` + helpQueueColumns + ` FROM help_queues WHERE class_id = $1 ORDER BY id`
	var queues []models.HelpQueue
	if err := r.db.SelectContext(ctx, &queues, query, classID); err != nil {
		return nil, fmt.Errorf("list class help queues: %w", err)
	}
	return queues, nil
}
