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

type chatService interface {
	RequestMessages(ctx context.Context, userID string, classID, requestID int64) (*dto.ChatResponse, error)
	PostRequestMessage(ctx context.Context, userID string, classID, requestID int64, req dto.PostMessageRequest) (*models.ChatMessage, error)
	QueueMessages(ctx context.Context, userID string, classID, queueID int64) (*dto.ChatResponse, error)
	PostQueueMessage(ctx context.Context, userID string, classID, queueID int64, req dto.PostMessageRequest) (*models.ChatMessage, error)
}

// ChatHandler exposes help request chat and the per queue ephemeral chat.
type ChatHandler struct {
	service chatService
}

// NewChatHandler constructs the handler.
func NewChatHandler(service chatService) *ChatHandler {
	return &ChatHandler{service: service}
}

// RequestMessages godoc
// @Summary List help request chat messages
// @Tags Chat
// @Produce json
// @Param class_id path int true "Class ID"
// @Param request_id path int true "Help request ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{class_id}/requests/{request_id}/messages [get]
func (h *ChatHandler) RequestMessages(c *gin.Context) {
	userID, ids, err := scope(c, "class_id", "request_id")
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.RequestMessages(c.Request.Context(), userID, ids[0], ids[1])
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// PostRequestMessage godoc
// @Summary Post to a help request chat
// @Tags Chat
// @Accept json
// @Produce json
// @Param class_id path int true "Class ID"
// @Param request_id path int true "Help request ID"
// @Param payload body dto.PostMessageRequest true "Message"
// @Success 201 {object} response.Envelope
// @Router /classes/{class_id}/requests/{request_id}/messages [post]
func (h *ChatHandler) PostRequestMessage(c *gin.Context) {
	userID, ids, err := scope(c, "class_id", "request_id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid message payload"))
		return
	}
	msg, err := h.service.PostRequestMessage(c.Request.Context(), userID, ids[0], ids[1], req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, msg)
}

// QueueMessages godoc
// @Summary List recent queue chat messages
// @Description Queue chat is not persisted; messages expire after an hour.
// @Tags Chat
// @Produce json
// @Param class_id path int true "Class ID"
// @Param queue_id path int true "Queue ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{class_id}/queues/{queue_id}/chat [get]
func (h *ChatHandler) QueueMessages(c *gin.Context) {
	userID, ids, err := scope(c, "class_id", "queue_id")
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.QueueMessages(c.Request.Context(), userID, ids[0], ids[1])
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// PostQueueMessage godoc
// @Summary Post to the queue chat
// @Tags Chat
// @Accept json
// @Produce json
// @Param class_id path int true "Class ID"
// @Param queue_id path int true "Queue ID"
// @Param payload body dto.PostMessageRequest true "Message"
// @Success 201 {object} response.Envelope
// @Router /classes/{class_id}/queues/{queue_id}/chat [post]
func (h *ChatHandler) PostQueueMessage(c *gin.Context) {
	userID, ids, err := scope(c, "class_id", "queue_id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid message payload"))
		return
	}
	msg, err := h.service.PostQueueMessage(c.Request.Context(), userID, ids[0], ids[1], req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, msg)
}
