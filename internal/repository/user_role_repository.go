package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pawtograder/office-hours/internal/models"
)

// UserRoleRepository resolves class membership.
type UserRoleRepository struct {
	db *sqlx.DB
}

// NewUserRoleRepository constructs a user role repository.
func NewUserRoleRepository(db *sqlx.DB) *UserRoleRepository {
	return &UserRoleRepository{db: db}
}

// Get returns the user's role in the class.
func (r *UserRoleRepository) Get(ctx context.Context, userID string, classID int64) (*models.UserRole, error) {
	const query = `SELECT id, user_id, class_id, role, private_profile_id FROM user_roles WHERE user_id = $1 AND class_id = $2`
	var role models.UserRole
	if err := r.db.GetContext(ctx, &role, query, userID, classID); err != nil {
		return nil, err
	}
	return &role, nil
}

// HasStaffRole reports whether the user is an instructor or grader in any class.
func (r *UserRoleRepository) HasStaffRole(ctx context.Context, userID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM user_roles WHERE user_id = $1 AND role IN ('instructor', 'grader'))`
	var ok bool
	if err := r.db.GetContext(ctx, &ok, query, userID); err != nil {
		return false, fmt.Errorf("check staff role: %w", err)
	}
	return ok, nil
}
