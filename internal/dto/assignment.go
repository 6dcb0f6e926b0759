package dto

import "github.com/pawtograder/office-hours/internal/models"

// StartWorkingResponse reports the active assignment and whether it was just created.
type StartWorkingResponse struct {
	Assignment *models.HelpQueueAssignment `json:"assignment"`
	Created    bool                        `json:"created"`
}
