package models

import "time"

// ModerationActionType enumerates moderation actions.
type ModerationActionType string

const (
	ModerationWarning        ModerationActionType = "warning"
	ModerationTemporaryBan   ModerationActionType = "temporary_ban"
	ModerationPermanentBan   ModerationActionType = "permanent_ban"
	ModerationMessageDeleted ModerationActionType = "message_deleted"
	ModerationMessageEdited  ModerationActionType = "message_edited"
)

// ModerationAction is a staff action taken against a student.
type ModerationAction struct {
	ID                 int64                `db:"id" json:"id"`
	ClassID            int64                `db:"class_id" json:"class_id"`
	StudentProfileID   string               `db:"student_profile_id" json:"student_profile_id"`
	ModeratorProfileID string               `db:"moderator_profile_id" json:"moderator_profile_id"`
	HelpRequestID      *int64               `db:"help_request_id" json:"help_request_id,omitempty"`
	MessageID          *int64               `db:"message_id" json:"message_id,omitempty"`
	ActionType         ModerationActionType `db:"action_type" json:"action_type"`
	Reason             string               `db:"reason" json:"reason"`
	DurationMinutes    *int                 `db:"duration_minutes" json:"duration_minutes,omitempty"`
	ExpiresAt          *time.Time           `db:"expires_at" json:"expires_at,omitempty"`
	IsPermanent        bool                 `db:"is_permanent" json:"is_permanent"`
	CreatedAt          time.Time            `db:"created_at" json:"created_at"`
}

// ActiveAt reports whether the action is a ban in force at t.
func (a *ModerationAction) ActiveAt(t time.Time) bool {
	switch a.ActionType {
	case ModerationPermanentBan:
		return true
	case ModerationTemporaryBan:
		return a.IsPermanent || (a.ExpiresAt != nil && a.ExpiresAt.After(t))
	default:
		return false
	}
}
