package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pawtograder/office-hours/internal/models"
	"github.com/pawtograder/office-hours/internal/tablecache"
)

// SnapshotLoader reads the full contents of the mirrored office hours tables.
type SnapshotLoader struct {
	db          *sqlx.DB
	queues      *HelpQueueRepository
	requests    *HelpRequestRepository
	assignments *AssignmentRepository
}

// NewSnapshotLoader builds a loader over db.
func NewSnapshotLoader(db *sqlx.DB) *SnapshotLoader {
	return &SnapshotLoader{
		db:          db,
		queues:      NewHelpQueueRepository(db),
		requests:    NewHelpRequestRepository(db),
		assignments: NewAssignmentRepository(db),
	}
}

func (l *SnapshotLoader) ListHelpQueues(ctx context.Context) ([]models.HelpQueue, error) {
	return l.queues.ListHelpQueues(ctx)
}

func (l *SnapshotLoader) ListHelpRequests(ctx context.Context) ([]models.HelpRequest, error) {
	return l.requests.ListHelpRequests(ctx)
}

func (l *SnapshotLoader) ListHelpRequestStudents(ctx context.Context) ([]models.HelpRequestStudent, error) {
	return l.requests.ListHelpRequestStudents(ctx)
}

func (l *SnapshotLoader) ListActiveAssignments(ctx context.Context) ([]models.HelpQueueAssignment, error) {
	return l.assignments.ListActiveAssignments(ctx)
}

// LoadRecord returns one mirrored row as JSON, keyed the way the models decode it.
func (l *SnapshotLoader) LoadRecord(ctx context.Context, table string, id int64) (json.RawMessage, error) {
	if !tablecache.Mirrors(table) {
		return nil, fmt.Errorf("load record: table %q is not mirrored", table)
	}
	// table is one of the fixed mirrored names checked above.
	query := `SELECT row_to_json(t)::text FROM ` + table + ` t WHERE t.id = $1`
	var raw string
	if err := l.db.GetContext(ctx, &raw, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tablecache.ErrRecordNotFound
		}
		return nil, fmt.Errorf("load %s record: %w", table, err)
	}
	return json.RawMessage(raw), nil
}
