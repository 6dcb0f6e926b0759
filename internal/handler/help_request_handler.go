package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pawtograder/office-hours/internal/dto"
	"github.com/pawtograder/office-hours/internal/models"
	appErrors "github.com/pawtograder/office-hours/pkg/errors"
	"github.com/pawtograder/office-hours/pkg/response"
)

type helpRequestService interface {
	CreateRequest(ctx context.Context, userID string, classID, queueID int64, req dto.CreateHelpRequestRequest) (*models.HelpRequest, error)
	CloseRequest(ctx context.Context, userID string, classID, requestID int64) (*models.HelpRequest, error)
	AssignRequest(ctx context.Context, userID string, classID, requestID int64) (*models.HelpRequest, error)
	ResolveRequest(ctx context.Context, userID string, classID, requestID int64) (*models.HelpRequest, error)
	EndMeeting(ctx context.Context, userID string, classID, requestID int64) (*models.HelpRequest, error)
}

type requestAction func(ctx context.Context, userID string, classID, requestID int64) (*models.HelpRequest, error)

// HelpRequestHandler exposes the help request lifecycle.
type HelpRequestHandler struct {
	service helpRequestService
}

// NewHelpRequestHandler constructs the handler.
func NewHelpRequestHandler(service helpRequestService) *HelpRequestHandler {
	return &HelpRequestHandler{service: service}
}

// Create godoc
// @Summary Open a help request
// @Tags HelpRequests
// @Accept json
// @Produce json
// @Param class_id path int true "Class ID"
// @Param queue_id path int true "Queue ID"
// @Param payload body dto.CreateHelpRequestRequest true "Help request"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /classes/{class_id}/queues/{queue_id}/requests [post]
func (h *HelpRequestHandler) Create(c *gin.Context) {
	userID, ids, err := scope(c, "class_id", "queue_id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.CreateHelpRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid help request payload"))
		return
	}
	request, err := h.service.CreateRequest(c.Request.Context(), userID, ids[0], ids[1], req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// Close godoc
// @Summary Close the caller's own help request
// @Tags HelpRequests
// @Produce json
// @Param class_id path int true "Class ID"
// @Param request_id path int true "Help request ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /classes/{class_id}/requests/{request_id}/close [post]
func (h *HelpRequestHandler) Close(c *gin.Context) {
	h.act(c, h.service.CloseRequest)
}

// Assign godoc
// @Summary Start helping a request
// @Tags HelpRequests
// @Produce json
// @Param class_id path int true "Class ID"
// @Param request_id path int true "Help request ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{class_id}/requests/{request_id}/assign [post]
func (h *HelpRequestHandler) Assign(c *gin.Context) {
	h.act(c, h.service.AssignRequest)
}

// Resolve godoc
// @Summary Resolve a help request
// @Tags HelpRequests
// @Produce json
// @Param class_id path int true "Class ID"
// @Param request_id path int true "Help request ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{class_id}/requests/{request_id}/resolve [post]
func (h *HelpRequestHandler) Resolve(c *gin.Context) {
	h.act(c, h.service.ResolveRequest)
}

// EndMeeting godoc
// @Summary End the video meeting of a help request
// @Tags HelpRequests
// @Produce json
// @Param class_id path int true "Class ID"
// @Param request_id path int true "Help request ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{class_id}/requests/{request_id}/end-meeting [post]
func (h *HelpRequestHandler) EndMeeting(c *gin.Context) {
	h.act(c, h.service.EndMeeting)
}

func (h *HelpRequestHandler) act(c *gin.Context, action requestAction) {
	userID, ids, err := scope(c, "class_id", "request_id")
	if err != nil {
		response.Error(c, err)
		return
	}
	request, err := action(c.Request.Context(), userID, ids[0], ids[1])
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}
