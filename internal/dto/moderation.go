package dto

import "github.com/pawtograder/office-hours/internal/models"

// CreateModerationRequest is the body of a moderation action.
type CreateModerationRequest struct {
	StudentProfileID string                      `json:"student_profile_id" validate:"required,uuid"`
	HelpRequestID    *int64                      `json:"help_request_id"`
	MessageID        *int64                      `json:"message_id"`
	ActionType       models.ModerationActionType `json:"action_type" validate:"required,oneof=warning temporary_ban permanent_ban message_deleted message_edited"`
	Reason           string                      `json:"reason" validate:"max=2000"`
	DurationMinutes  *int                        `json:"duration_minutes" validate:"omitempty,min=1,max=525600"`
}
