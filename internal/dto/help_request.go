package dto

// CreateHelpRequestRequest is the body of a new help request.
type CreateHelpRequestRequest struct {
	Request         string   `json:"request" validate:"required,max=4000"`
	IsPrivate       bool     `json:"is_private"`
	IsVideoLive     bool     `json:"is_video_live"`
	GroupProfileIDs []string `json:"group_profile_ids" validate:"max=10,dive,uuid"`
}

// EndMeetingEvent is broadcast on the meeting end topic.
type EndMeetingEvent struct {
	HelpRequestID int64  `json:"help_request_id"`
	ClassID       int64  `json:"class_id"`
	EndedBy       string `json:"ended_by"`
}
