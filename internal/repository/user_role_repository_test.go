package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawtograder/office-hours/internal/models"
)

func TestUserRoleRepositoryGet(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewUserRoleRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM user_roles WHERE user_id = $1 AND class_id = $2")).
		WithArgs("u-1", int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "class_id", "role", "private_profile_id"}).AddRow(1, "u-1", 2, "grader", "p-1"))

	role, err := repo.Get(context.Background(), "u-1", 2)
	require.NoError(t, err)
	assert.Equal(t, models.ClassRoleGrader, role.Role)
	assert.True(t, role.IsStaff())

	mock.ExpectQuery(regexp.QuoteMeta("role IN ('instructor', 'grader')")).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	ok, err := repo.HasStaffRole(context.Background(), "u-1")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}
