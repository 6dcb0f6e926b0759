package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pawtograder/office-hours/internal/models"
)

const calendarColumns = `id, class_id, uid, title, description, location, all_day, start_time, end_time, time_zone, updated_at`

// CalendarRepository persists class calendar events.
type CalendarRepository struct {
	db *sqlx.DB
}

// NewCalendarRepository constructs a calendar repository.
func NewCalendarRepository(db *sqlx.DB) *CalendarRepository {
	return &CalendarRepository{db: db}
}

// List returns a class's events matching filter, ordered by start.
func (r *CalendarRepository) List(ctx context.Context, filter models.CalendarFilter) ([]models.CalendarEvent, error) {
	where := []string{"class_id = $1"}
	args := []interface{}{filter.ClassID}
	if filter.From != nil {
		where = append(where, fmt.Sprintf("end_time >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		where = append(where, fmt.Sprintf("start_time <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	query := fmt.Sprintf(`SELECT %s FROM calendar_events WHERE %s ORDER BY start_time ASC, id ASC`, calendarColumns, strings.Join(where, " AND "))
	var events []models.CalendarEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}
	return events, nil
}

// Create inserts an event, assigning a stable UID when missing.
func (r *CalendarRepository) Create(ctx context.Context, event *models.CalendarEvent) error {
	if event.UID == "" {
		event.UID = uuid.NewString() + "@pawtograder"
	}
	event.UpdatedAt = time.Now().UTC()
	query := `INSERT INTO calendar_events (class_id, uid, title, description, location, all_day, start_time, end_time, time_zone, updated_at)
VALUES (:class_id, :uid, :title, :description, :location, :all_day, :start_time, :end_time, :time_zone, :updated_at)
RETURNING id`
	rows, err := r.db.NamedQueryContext(ctx, query, event)
	if err != nil {
		return fmt.Errorf("create calendar event: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&event.ID); err != nil {
			return fmt.Errorf("scan calendar event id: %w", err)
		}
	}
	return rows.Err()
}

// Delete removes an event from a class.
func (r *CalendarRepository) Delete(ctx context.Context, classID, id int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM calendar_events WHERE class_id = $1 AND id = $2", classID, id); err != nil {
		return fmt.Errorf("delete calendar event: %w", err)
	}
	return nil
}
