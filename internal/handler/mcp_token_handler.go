package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pawtograder/office-hours/internal/models"
	appErrors "github.com/pawtograder/office-hours/pkg/errors"
	"github.com/pawtograder/office-hours/pkg/response"
)

type mcpTokenService interface {
	List(ctx context.Context, userID string) ([]models.APIToken, error)
	Create(ctx context.Context, userID string, req models.CreateMCPTokenRequest) (*models.CreateMCPTokenResponse, error)
	Revoke(ctx context.Context, userID, id string) error
}

type classRequestLister interface {
	ListRequests(ctx context.Context, userID string, classID int64) ([]models.HelpRequest, error)
}

// MCPTokenHandler manages tokens for MCP clients and serves the MCP read API.
type MCPTokenHandler struct {
	tokens   mcpTokenService
	requests classRequestLister
}

// NewMCPTokenHandler constructs the handler.
func NewMCPTokenHandler(tokens mcpTokenService, requests classRequestLister) *MCPTokenHandler {
	return &MCPTokenHandler{tokens: tokens, requests: requests}
}

// List godoc
// @Summary List the caller's MCP tokens
// @Tags MCP
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /mcp-tokens [get]
func (h *MCPTokenHandler) List(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	tokens, err := h.tokens.List(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"tokens": tokens}, nil)
}

// Create godoc
// @Summary Issue an MCP token
// @Description The token is returned once and never stored.
// @Tags MCP
// @Accept json
// @Produce json
// @Param payload body models.CreateMCPTokenRequest true "Token request"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /mcp-tokens [post]
func (h *MCPTokenHandler) Create(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req models.CreateMCPTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid token payload"))
		return
	}
	result, err := h.tokens.Create(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Revoke godoc
// @Summary Revoke an MCP token
// @Tags MCP
// @Param id path string true "Token ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /mcp-tokens/{id} [delete]
func (h *MCPTokenHandler) Revoke(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.tokens.Revoke(c.Request.Context(), userID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// HelpRequests godoc
// @Summary List help requests of a class for an MCP client
// @Tags MCP
// @Produce json
// @Param class_id path int true "Class ID"
// @Security MCPToken
// @Success 200 {object} response.Envelope
// @Router /mcp/classes/{class_id}/help-requests [get]
func (h *MCPTokenHandler) HelpRequests(c *gin.Context) {
	userID, ids, err := scope(c, "class_id")
	if err != nil {
		response.Error(c, err)
		return
	}
	requests, err := h.requests.ListRequests(c.Request.Context(), userID, ids[0])
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}
