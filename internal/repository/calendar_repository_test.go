package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawtograder/office-hours/internal/models"
)

func TestCalendarRepositoryListFilters(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewCalendarRepository(db)
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE class_id = $1 AND end_time >= $2 ORDER BY start_time ASC")).
		WithArgs(int64(3), from).
		WillReturnRows(sqlmock.NewRows([]string{"id", "class_id", "uid", "title", "description", "location", "all_day", "start_time", "end_time", "time_zone", "updated_at"}).
			AddRow(1, 3, "u1@pawtograder", "Office hours", "", "Room 1", false, from, from.Add(time.Hour), "America/New_York", from))

	events, err := repo.List(context.Background(), models.CalendarFilter{ClassID: 3, From: &from})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Office hours", events[0].Title)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCalendarRepositoryCreateAssignsUID(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewCalendarRepository(db)

	mock.ExpectQuery("INSERT INTO calendar_events").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))

	event := &models.CalendarEvent{ClassID: 3, Title: "Exam review", StartTime: time.Now(), EndTime: time.Now()}
	require.NoError(t, repo.Create(context.Background(), event))
	assert.Equal(t, int64(9), event.ID)
	assert.Contains(t, event.UID, "@pawtograder")
	require.NoError(t, mock.ExpectationsWereMet())
}
