package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pawtograder/office-hours/internal/models"
)

const assignmentColumns = `id, class_id, help_queue_id, ta_profile_id, is_active, started_at, ended_at`

// AssignmentRepository persists staff work sessions on queues.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs an assignment repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// ListActiveAssignments returns every active assignment.
func (r *AssignmentRepository) ListActiveAssignments(ctx context.Context) ([]models.HelpQueueAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM help_queue_assignments WHERE is_active ORDER BY id`
	var assignments []models.HelpQueueAssignment
	if err := r.db.SelectContext(ctx, &assignments, query); err != nil {
		return nil, fmt.Errorf("list active assignments: %w", err)
	}
	return assignments, nil
}

// GetActive returns the active assignment of profileID on queueID.
func (r *AssignmentRepository) GetActive(ctx context.Context, queueID int64, profileID string) (*models.HelpQueueAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM help_queue_assignments WHERE help_queue_id = $1 AND ta_profile_id = $2 AND is_active`
	var assignment models.HelpQueueAssignment
	if err := r.db.GetContext(ctx, &assignment, query, queueID, profileID); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// Start inserts an active assignment. When one already exists the insert is
// skipped and the existing row is returned with created=false.
func (r *AssignmentRepository) Start(ctx context.Context, assignment *models.HelpQueueAssignment) (*models.HelpQueueAssignment, bool, error) {
	query := `INSERT INTO help_queue_assignments (class_id, help_queue_id, ta_profile_id, is_active, started_at)
VALUES ($1, $2, $3, TRUE, $4)
ON CONFLICT (help_queue_id, ta_profile_id) WHERE is_active DO NOTHING
RETURNING ` + assignmentColumns
	var stored models.HelpQueueAssignment
	err := r.db.GetContext(ctx, &stored, query, assignment.ClassID, assignment.HelpQueueID, assignment.TAProfileID, assignment.StartedAt)
	if err == nil {
		return &stored, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("start assignment: %w", err)
	}

	existing, err := r.GetActive(ctx, assignment.HelpQueueID, assignment.TAProfileID)
	if err != nil {
		return nil, false, fmt.Errorf("load active assignment: %w", err)
	}
	return existing, false, nil
}

// End deactivates an assignment.
func (r *AssignmentRepository) End(ctx context.Context, id int64, endedAt time.Time) (*models.HelpQueueAssignment, error) {
	query := `UPDATE help_queue_assignments SET is_active = FALSE, ended_at = $1 WHERE id = $2 AND is_active RETURNING ` + assignmentColumns
	var ended models.HelpQueueAssignment
	if err := r.db.GetContext(ctx, &ended, query, endedAt, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("end assignment: %w", err)
	}
	return &ended, nil
}
