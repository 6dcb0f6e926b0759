package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/pawtograder/office-hours/internal/service"
	"github.com/pawtograder/office-hours/pkg/response"
)

type exportService interface {
	HelpRequestHistory(ctx context.Context, userID string, classID int64, format string) (*service.ExportFile, error)
}

// ExportHandler streams help request history downloads.
type ExportHandler struct {
	service exportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(service exportService) *ExportHandler {
	return &ExportHandler{service: service}
}

// HelpRequests godoc
// @Summary Export help request history
// @Tags Export
// @Produce text/csv
// @Produce application/pdf
// @Param class_id path int true "Class ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /classes/{class_id}/help-requests/export [get]
func (h *ExportHandler) HelpRequests(c *gin.Context) {
	userID, ids, err := scope(c, "class_id")
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.service.HelpRequestHistory(c.Request.Context(), userID, ids[0], c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}
