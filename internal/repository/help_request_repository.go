package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pawtograder/office-hours/internal/models"
)

const helpRequestColumns = `id, class_id, help_queue_id, request, status, created_by, assignee, is_private, is_video_live, resolved_at, resolved_by, created_at, updated_at`

const helpRequestStudentColumns = `id, help_request_id, profile_id, class_id, created_at`

// HelpRequestRepository persists help requests and their student associations.
type HelpRequestRepository struct {
	db *sqlx.DB
}

// NewHelpRequestRepository constructs a help request repository.
func NewHelpRequestRepository(db *sqlx.DB) *HelpRequestRepository {
	return &HelpRequestRepository{db: db}
}

// ListHelpRequests returns every help request ordered by id.
func (r *HelpRequestRepository) ListHelpRequests(ctx context.Context) ([]models.HelpRequest, error) {
	query := `SELECT ` + helpRequestColumns + ` FROM help_requests ORDER BY id`
	var requests []models.HelpRequest
	if err := r.db.SelectContext(ctx, &requests, query); err != nil {
		return nil, fmt.Errorf("list help requests: %w", err)
	}
	return requests, nil
}

// ListByClass returns a class's help requests, newest first.
func (r *HelpRequestRepository) ListByClass(ctx context.Context, classID int64) ([]models.HelpRequest, error) {
	query := `SELECT ` + helpRequestColumns + ` FROM help_requests WHERE class_id = $1 ORDER BY created_at DESC, id`
	var requests []models.HelpRequest
	if err := r.db.SelectContext(ctx, &requests, query, classID); err != nil {
		return nil, fmt.Errorf("list class help requests: %w", err)
	}
	return requests, nil
}

// GetByID fetches a help request.
func (r *HelpRequestRepository) GetByID(ctx context.Context, id int64) (*models.HelpRequest, error) {
	query := `SELECT ` + helpRequestColumns + ` FROM help_requests WHERE id = $1`
	var request models.HelpRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// Create inserts the request and associates profileIDs with it in one transaction.
func (r *HelpRequestRepository) Create(ctx context.Context, request *models.HelpRequest, profileIDs []string) (students []models.HelpRequestStudent, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create help request: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	if request.Status == "" {
		request.Status = models.HelpRequestOpen
	}
	request.CreatedAt = now
	request.UpdatedAt = now

	const insertRequest = `INSERT INTO help_requests (class_id, help_queue_id, request, status, created_by, is_private, is_video_live, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id`
	if err = tx.QueryRowxContext(ctx, insertRequest,
		request.ClassID, request.HelpQueueID, request.Request, request.Status, request.CreatedBy,
		request.IsPrivate, request.IsVideoLive, request.CreatedAt, request.UpdatedAt,
	).Scan(&request.ID); err != nil {
		return nil, fmt.Errorf("insert help request: %w", err)
	}

	const insertStudent = `INSERT INTO help_request_students (help_request_id, profile_id, class_id, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (help_request_id, profile_id) DO NOTHING
RETURNING ` + helpRequestStudentColumns
	students = make([]models.HelpRequestStudent, 0, len(profileIDs))
	for _, profileID := range profileIDs {
		var student models.HelpRequestStudent
		if err = tx.GetContext(ctx, &student, insertStudent, request.ID, profileID, request.ClassID, now); err != nil {
			if err == sql.ErrNoRows {
				err = nil
				continue
			}
			return nil, fmt.Errorf("insert help request student: %w", err)
		}
		students = append(students, student)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit help request: %w", err)
	}
	return students, nil
}

// UpdateStatusParams describes a guarded status transition.
type UpdateStatusParams struct {
	ID         int64
	From       models.HelpRequestStatus
	To         models.HelpRequestStatus
	Assignee   *string
	ResolvedBy *string
	At         time.Time
}

// UpdateStatus moves a request from params.From to params.To. It returns
// sql.ErrNoRows when the request no longer has status From.
func (r *HelpRequestRepository) UpdateStatus(ctx context.Context, params UpdateStatusParams) (*models.HelpRequest, error) {
	var resolvedAt *time.Time
	if params.To == models.HelpRequestResolved {
		at := params.At
		resolvedAt = &at
	}
	query := `UPDATE help_requests
SET status = $1,
    assignee = COALESCE($2, assignee),
    resolved_by = COALESCE($3, resolved_by),
    resolved_at = COALESCE($4, resolved_at),
    is_video_live = CASE WHEN $1 IN ('resolved', 'closed') THEN FALSE ELSE is_video_live END,
    updated_at = $5
WHERE id = $6 AND status = $7
RETURNING ` + helpRequestColumns
	var updated models.HelpRequest
	if err := r.db.GetContext(ctx, &updated, query,
		params.To, params.Assignee, params.ResolvedBy, resolvedAt, params.At, params.ID, params.From,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("update help request status: %w", err)
	}
	return &updated, nil
}

// SetVideoLive flips the request's live video flag.
func (r *HelpRequestRepository) SetVideoLive(ctx context.Context, id int64, live bool) (*models.HelpRequest, error) {
	query := `UPDATE help_requests SET is_video_live = $1, updated_at = $2 WHERE id = $3 RETURNING ` + helpRequestColumns
	var updated models.HelpRequest
	if err := r.db.GetContext(ctx, &updated, query, live, time.Now().UTC(), id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("set help request video: %w", err)
	}
	return &updated, nil
}

// ListHelpRequestStudents returns every association ordered by id.
func (r *HelpRequestRepository) ListHelpRequestStudents(ctx context.Context) ([]models.HelpRequestStudent, error) {
	query := `SELECT ` + helpRequestStudentColumns + ` FROM help_request_students ORDER BY id`
	var students []models.HelpRequestStudent
	if err := r.db.SelectContext(ctx, &students, query); err != nil {
		return nil, fmt.Errorf("list help request students: %w", err)
	}
	return students, nil
}

// ListStudents returns the profiles associated with a request.
func (r *HelpRequestRepository) ListStudents(ctx context.Context, requestID int64) ([]models.HelpRequestStudent, error) {
	query := `SELECT ` + helpRequestStudentColumns + ` FROM help_request_students WHERE help_request_id = $1 ORDER BY id`
	var students []models.HelpRequestStudent
	if err := r.db.SelectContext(ctx, &students, query, requestID); err != nil {
		return nil, fmt.Errorf("list students for help request %d: %w", requestID, err)
	}
	return students, nil
}

// IsAssociated reports whether profileID is one of the request's students.
func (r *HelpRequestRepository) IsAssociated(ctx context.Context, requestID int64, profileID string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS (SELECT 1 FROM help_request_students WHERE help_request_id = $1 AND profile_id = $2)`
	if err := r.db.GetContext(ctx, &exists, query, requestID, profileID); err != nil {
		return false, fmt.Errorf("check help request association: %w", err)
	}
	return exists, nil
}
