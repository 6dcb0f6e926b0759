package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawtograder/office-hours/internal/models"
)

var helpQueueRowColumns = []string{"id", "class_id", "name", "description", "queue_type", "is_demo", "available", "created_at", "updated_at"}

func TestHelpQueueRepositoryListByClass(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewHelpQueueRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM help_queues WHERE class_id = $1 ORDER BY id")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(helpQueueRowColumns).
			AddRow(3, 1, "Lab", "", "chat", false, true, now, now).
			AddRow(4, 1, "Zoom", "video only", "video", false, false, now, now))

	queues, err := repo.ListByClass(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, queues, 2)
	assert.Equal(t, models.QueueTypeVideo, queues[1].QueueType)
	assert.False(t, queues[1].Available)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHelpQueueRepositoryGetByIDNotFound(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewHelpQueueRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM help_queues WHERE id = $1")).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows(helpQueueRowColumns))

	_, err := repo.GetByID(context.Background(), 9)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
