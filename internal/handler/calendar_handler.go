package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pawtograder/office-hours/internal/dto"
	"github.com/pawtograder/office-hours/internal/middleware"
	"github.com/pawtograder/office-hours/internal/models"
	appErrors "github.com/pawtograder/office-hours/pkg/errors"
	"github.com/pawtograder/office-hours/pkg/response"
)

const calendarContentType = "text/calendar; charset=utf-8"

type calendarService interface {
	Feed(ctx context.Context, userID string, classID int64) ([]byte, bool, error)
	FeedURL(ctx context.Context, userID string, classID int64) (*dto.CalendarFeedURLResponse, error)
	FeedByToken(ctx context.Context, token string) ([]byte, bool, error)
	CreateEvent(ctx context.Context, userID string, classID int64, req dto.CreateCalendarEventRequest) (*models.CalendarEvent, error)
}

// CalendarHandler serves ICS feeds of office hours events.
type CalendarHandler struct {
	service calendarService
}

// NewCalendarHandler constructs the handler.
func NewCalendarHandler(service calendarService) *CalendarHandler {
	return &CalendarHandler{service: service}
}

// Feed godoc
// @Summary Class calendar as ICS
// @Tags Calendar
// @Produce text/calendar
// @Param class_id path int true "Class ID"
// @Success 200 {string} string "VCALENDAR document"
// @Router /classes/{class_id}/calendar.ics [get]
func (h *CalendarHandler) Feed(c *gin.Context) {
	userID, ids, err := scope(c, "class_id")
	if err != nil {
		response.Error(c, err)
		return
	}
	body, hit, err := h.service.Feed(c.Request.Context(), userID, ids[0])
	if err != nil {
		response.Error(c, err)
		return
	}
	h.writeICS(c, body, hit)
}

// FeedURL godoc
// @Summary Signed calendar subscription URL
// @Tags Calendar
// @Produce json
// @Param class_id path int true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{class_id}/calendar/feed-url [get]
func (h *CalendarHandler) FeedURL(c *gin.Context) {
	userID, ids, err := scope(c, "class_id")
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.FeedURL(c.Request.Context(), userID, ids[0])
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// CreateEvent godoc
// @Summary Add a calendar event
// @Tags Calendar
// @Accept json
// @Produce json
// @Param class_id path int true "Class ID"
// @Param payload body dto.CreateCalendarEventRequest true "Event"
// @Success 201 {object} response.Envelope
// @Router /classes/{class_id}/calendar/events [post]
func (h *CalendarHandler) CreateEvent(c *gin.Context) {
	userID, ids, err := scope(c, "class_id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.CreateCalendarEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid calendar event payload"))
		return
	}
	event, err := h.service.CreateEvent(c.Request.Context(), userID, ids[0], req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// SignedFeed godoc
// @Summary Calendar feed authenticated by a signed token
// @Tags Calendar
// @Produce text/calendar
// @Param token query string true "Signed feed token"
// @Success 200 {string} string "VCALENDAR document"
// @Failure 401 {object} response.Envelope
// @Router /calendar/feed.ics [get]
func (h *CalendarHandler) SignedFeed(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "token required"))
		return
	}
	body, hit, err := h.service.FeedByToken(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.writeICS(c, body, hit)
}

func (h *CalendarHandler) writeICS(c *gin.Context, body []byte, hit bool) {
	middleware.SetCacheHit(c, hit)
	if hit {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, calendarContentType, body)
}
