package models

// ClassRole is a user's role within a single class.
type ClassRole string

const (
	ClassRoleInstructor ClassRole = "instructor"
	ClassRoleGrader     ClassRole = "grader"
	ClassRoleStudent    ClassRole = "student"
)

// UserRole links an auth user to a class and their private profile in it.
type UserRole struct {
	ID               int64     `db:"id" json:"id"`
	UserID           string    `db:"user_id" json:"user_id"`
	ClassID          int64     `db:"class_id" json:"class_id"`
	Role             ClassRole `db:"role" json:"role"`
	PrivateProfileID string    `db:"private_profile_id" json:"private_profile_id"`
}

// IsStaff reports whether the role can work a help queue.
func (r *UserRole) IsStaff() bool {
	return r != nil && (r.Role == ClassRoleInstructor || r.Role == ClassRoleGrader)
}
