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

func TestMessageRepositoryListCapsLimit(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewMessageRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at ASC, id ASC LIMIT $2")).
		WithArgs(int64(8), 1000).
		WillReturnRows(sqlmock.NewRows([]string{"id", "class_id", "help_request_id", "author", "message", "requestor", "instructors_only", "created_at"}).
			AddRow(1, 1, 8, "a", "first", nil, false, now).
			AddRow(2, 1, 8, "b", "second", nil, true, now.Add(time.Second)))

	msgs, err := repo.ListByRequest(context.Background(), 8, 5000)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Message)
	assert.True(t, msgs[1].InstructorsOnly)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepositoryCreate(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewMessageRepository(db)

	mock.ExpectQuery("INSERT INTO help_request_messages").
		WithArgs(int64(1), int64(8), "author-1", "hello", nil, false, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	msg := &models.HelpRequestMessage{ClassID: 1, HelpRequestID: 8, Author: "author-1", Message: "hello"}
	require.NoError(t, repo.Create(context.Background(), msg))
	assert.Equal(t, int64(42), msg.ID)
	assert.False(t, msg.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}
