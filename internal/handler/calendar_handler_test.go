package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawtograder/office-hours/internal/dto"
	"github.com/pawtograder/office-hours/internal/models"
	appErrors "github.com/pawtograder/office-hours/pkg/errors"
)

const sampleICS = "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"

type fakeCalendarSrv struct {
	hit       bool
	lastToken string
	event     *dto.CreateCalendarEventRequest
	err       error
}

func (f *fakeCalendarSrv) Feed(context.Context, string, int64) ([]byte, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	return []byte(sampleICS), f.hit, nil
}

func (f *fakeCalendarSrv) FeedURL(_ context.Context, _ string, classID int64) (*dto.CalendarFeedURLResponse, error) {
	return &dto.CalendarFeedURLResponse{URL: "https://oh.example/calendar/feed.ics?token=abc", ExpiresAt: time.Unix(0, 0).UTC()}, f.err
}

func (f *fakeCalendarSrv) FeedByToken(_ context.Context, token string) ([]byte, bool, error) {
	f.lastToken = token
	if f.err != nil {
		return nil, false, f.err
	}
	return []byte(sampleICS), f.hit, nil
}

func (f *fakeCalendarSrv) CreateEvent(_ context.Context, _ string, classID int64, req dto.CreateCalendarEventRequest) (*models.CalendarEvent, error) {
	f.event = &req
	return &models.CalendarEvent{ID: 1, ClassID: classID, Title: req.Title}, f.err
}

func TestCalendarHandlerFeed(t *testing.T) {
	h := NewCalendarHandler(&fakeCalendarSrv{hit: true})

	c, rec := newTestContext(t, http.MethodGet, "/", "", "u", "class_id", "1")
	h.Feed(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, calendarContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, sampleICS, rec.Body.String())
}

func TestCalendarHandlerSignedFeed(t *testing.T) {
	srv := &fakeCalendarSrv{}
	h := NewCalendarHandler(srv)

	c, rec := newTestContext(t, http.MethodGet, "/calendar/feed.ics", "", "")
	h.SignedFeed(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c, rec = newTestContext(t, http.MethodGet, "/calendar/feed.ics?token=a.b.c", "", "")
	h.SignedFeed(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a.b.c", srv.lastToken)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	srv.err = appErrors.Clone(appErrors.ErrUnauthorized, "invalid calendar feed token")
	c, rec = newTestContext(t, http.MethodGet, "/calendar/feed.ics?token=bad", "", "")
	h.SignedFeed(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCalendarHandlerFeedURLAndCreate(t *testing.T) {
	srv := &fakeCalendarSrv{}
	h := NewCalendarHandler(srv)

	c, rec := newTestContext(t, http.MethodGet, "/", "", "u", "class_id", "1")
	h.FeedURL(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(decode(t, rec).Data), "feed.ics?token=abc")

	body := `{"title":"Office hours","start_time":"2026-01-05T15:00:00Z","end_time":"2026-01-05T17:00:00Z","time_zone":"America/New_York"}`
	c, rec = newTestContext(t, http.MethodPost, "/", body, "ta", "class_id", "1")
	h.CreateEvent(c)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Office hours", srv.event.Title)
	assert.Equal(t, "America/New_York", srv.event.TimeZone)
}
