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

type moderationService interface {
	List(ctx context.Context, userID string, classID int64) ([]models.ModerationAction, error)
	Create(ctx context.Context, userID string, classID int64, req dto.CreateModerationRequest) (*models.ModerationAction, error)
}

// ModerationHandler exposes staff moderation actions.
type ModerationHandler struct {
	service moderationService
}

// NewModerationHandler constructs the handler.
func NewModerationHandler(service moderationService) *ModerationHandler {
	return &ModerationHandler{service: service}
}

// List godoc
// @Summary List moderation actions of a class
// @Tags Moderation
// @Produce json
// @Param class_id path int true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{class_id}/moderation [get]
func (h *ModerationHandler) List(c *gin.Context) {
	userID, ids, err := scope(c, "class_id")
	if err != nil {
		response.Error(c, err)
		return
	}
	actions, err := h.service.List(c.Request.Context(), userID, ids[0])
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, actions, nil)
}

// Create godoc
// @Summary Record a moderation action
// @Tags Moderation
// @Accept json
// @Produce json
// @Param class_id path int true "Class ID"
// @Param payload body dto.CreateModerationRequest true "Moderation action"
// @Success 201 {object} response.Envelope
// @Router /classes/{class_id}/moderation [post]
func (h *ModerationHandler) Create(c *gin.Context) {
	userID, ids, err := scope(c, "class_id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.CreateModerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid moderation payload"))
		return
	}
	action, err := h.service.Create(c.Request.Context(), userID, ids[0], req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, action)
}
