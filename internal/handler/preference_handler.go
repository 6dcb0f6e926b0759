package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/pawtograder/office-hours/pkg/errors"
	"github.com/pawtograder/office-hours/pkg/response"
)

const maxPreferenceBody = 32 << 10

type preferenceService interface {
	Load(ctx context.Context, userID, key string) (json.RawMessage, error)
	Save(ctx context.Context, userID, key string, value json.RawMessage) error
	Clear(ctx context.Context, userID, key string) error
}

// PreferenceHandler exposes per user key scoped settings.
type PreferenceHandler struct {
	service preferenceService
}

// NewPreferenceHandler constructs the handler.
func NewPreferenceHandler(service preferenceService) *PreferenceHandler {
	return &PreferenceHandler{service: service}
}

// Get godoc
// @Summary Load a preference
// @Tags Preferences
// @Produce json
// @Param key path string true "Preference key"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /me/preferences/{key} [get]
func (h *PreferenceHandler) Get(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	value, err := h.service.Load(c.Request.Context(), userID, c.Param("key"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, value, nil)
}

// Put godoc
// @Summary Store a preference
// @Description The body is any JSON document.
// @Tags Preferences
// @Accept json
// @Param key path string true "Preference key"
// @Success 204
// @Failure 400 {object} response.Envelope
// @Router /me/preferences/{key} [put]
func (h *PreferenceHandler) Put(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPreferenceBody))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid preference payload"))
		return
	}
	if err := h.service.Save(c.Request.Context(), userID, c.Param("key"), json.RawMessage(body)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Delete godoc
// @Summary Clear a preference
// @Tags Preferences
// @Param key path string true "Preference key"
// @Success 204
// @Router /me/preferences/{key} [delete]
func (h *PreferenceHandler) Delete(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.Clear(c.Request.Context(), userID, c.Param("key")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
