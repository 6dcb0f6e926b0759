package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pawtograder/office-hours/internal/dto"
	"github.com/pawtograder/office-hours/internal/middleware"
	"github.com/pawtograder/office-hours/internal/models"
	"github.com/pawtograder/office-hours/internal/queuedata"
	"github.com/pawtograder/office-hours/pkg/response"
)

type queueService interface {
	View(ctx context.Context, userID string, classID, queueID int64) (*queuedata.QueueView, error)
	StartWorking(ctx context.Context, userID string, classID, queueID int64) (*dto.StartWorkingResponse, error)
	StopWorking(ctx context.Context, userID string, classID, queueID int64) (*models.HelpQueueAssignment, error)
}

// QueueHandler exposes the queue page and staff work sessions.
type QueueHandler struct {
	service queueService
}

// NewQueueHandler constructs the handler.
func NewQueueHandler(service queueService) *QueueHandler {
	return &QueueHandler{service: service}
}

// View godoc
// @Summary Aggregated queue view for the caller
// @Tags Queues
// @Produce json
// @Param class_id path int true "Class ID"
// @Param queue_id path int true "Queue ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{class_id}/queues/{queue_id} [get]
func (h *QueueHandler) View(c *gin.Context) {
	userID, ids, err := scope(c, "class_id", "queue_id")
	if err != nil {
		response.Error(c, err)
		return
	}
	view, err := h.service.View(c.Request.Context(), userID, ids[0], ids[1])
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetConnectionStatus(c, string(view.ConnectionStatus))
	response.JSON(c, http.StatusOK, view, nil, middleware.ExtractMeta(c))
}

// StartWorking godoc
// @Summary Start a staff work session on a queue
// @Description Idempotent: an existing active session is returned with created=false.
// @Tags Queues
// @Produce json
// @Param class_id path int true "Class ID"
// @Param queue_id path int true "Queue ID"
// @Success 200 {object} response.Envelope
// @Success 201 {object} response.Envelope
// @Router /classes/{class_id}/queues/{queue_id}/assignments/start [post]
func (h *QueueHandler) StartWorking(c *gin.Context) {
	userID, ids, err := scope(c, "class_id", "queue_id")
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.StartWorking(c.Request.Context(), userID, ids[0], ids[1])
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	response.JSON(c, status, result, nil)
}

// StopWorking godoc
// @Summary End the caller's work session on a queue
// @Tags Queues
// @Produce json
// @Param class_id path int true "Class ID"
// @Param queue_id path int true "Queue ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{class_id}/queues/{queue_id}/assignments/stop [post]
func (h *QueueHandler) StopWorking(c *gin.Context) {
	userID, ids, err := scope(c, "class_id", "queue_id")
	if err != nil {
		response.Error(c, err)
		return
	}
	assignment, err := h.service.StopWorking(c.Request.Context(), userID, ids[0], ids[1])
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}
