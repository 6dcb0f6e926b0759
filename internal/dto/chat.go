package dto

import "github.com/pawtograder/office-hours/internal/models"

// PostMessageRequest is the body of a chat post.
type PostMessageRequest struct {
	Message         string `json:"message" validate:"required,max=4000"`
	InstructorsOnly bool   `json:"instructors_only"`
}

// ChatResponse lists a channel's messages and who is present.
type ChatResponse struct {
	Topic        string               `json:"topic"`
	Messages     []models.ChatMessage `json:"messages"`
	Participants []string             `json:"participants"`
}
