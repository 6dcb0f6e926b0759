package service

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pawtograder/office-hours/internal/dto"
	"github.com/pawtograder/office-hours/internal/models"
	appErrors "github.com/pawtograder/office-hours/pkg/errors"
	"github.com/pawtograder/office-hours/pkg/ics"
	"github.com/pawtograder/office-hours/pkg/storage"
)

const (
	calendarProdID       = "-//Pawtograder//Office Hours//EN"
	calendarFeedResource = "calendar:class:"
)

type calendarRepository interface {
	List(ctx context.Context, filter models.CalendarFilter) ([]models.CalendarEvent, error)
	Create(ctx context.Context, event *models.CalendarEvent) error
}

type payloadCache interface {
	Get(ctx context.Context, tag string, parts []string, dest interface{}) (bool, error)
	Set(ctx context.Context, tag string, parts []string, value interface{}, ttl time.Duration) error
	InvalidateTag(ctx context.Context, tag string) (int, error)
}

// CalendarServiceConfig configures feed rendering and signed feed URLs.
type CalendarServiceConfig struct {
	PublicURL string
	CacheTTL  time.Duration
}

// CalendarService exports class events as ICS feeds.
type CalendarService struct {
	repo          calendarRepository
	access        *AccessService
	cache         payloadCache
	signer        *storage.SignedURLSigner
	invalidations tagEnqueuer
	cfg           CalendarServiceConfig
	validator     *validator.Validate
	logger        *zap.Logger
	now           func() time.Time
}

// NewCalendarService constructs the service. cache and invalidations may be nil.
func NewCalendarService(repo calendarRepository, access *AccessService, cache payloadCache, signer *storage.SignedURLSigner, invalidations tagEnqueuer, cfg CalendarServiceConfig, validate *validator.Validate, logger *zap.Logger) *CalendarService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	return &CalendarService{
		repo:          repo,
		access:        access,
		cache:         cache,
		signer:        signer,
		invalidations: invalidations,
		cfg:           cfg,
		validator:     validate,
		logger:        logger,
		now:           time.Now,
	}
}

// Feed renders the class calendar for a member. The flag reports whether
// the body came from the cache.
func (s *CalendarService) Feed(ctx context.Context, userID string, classID int64) ([]byte, bool, error) {
	if _, err := s.access.Membership(ctx, userID, classID); err != nil {
		return nil, false, err
	}
	return s.render(ctx, classID)
}

// FeedURL returns a signed subscription URL calendar apps can poll without a session.
func (s *CalendarService) FeedURL(ctx context.Context, userID string, classID int64) (*dto.CalendarFeedURLResponse, error) {
	if _, err := s.access.Membership(ctx, userID, classID); err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(userID, calendarFeedResource+strconv.FormatInt(classID, 10))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign calendar feed url")
	}
	return &dto.CalendarFeedURLResponse{
		URL:       s.cfg.PublicURL + "/calendar/feed.ics?token=" + url.QueryEscape(token),
		ExpiresAt: expiresAt.UTC(),
	}, nil
}

// FeedByToken renders the calendar named by a signed feed token. Membership
// is checked again so removed users lose access before the token expires.
func (s *CalendarService) FeedByToken(ctx context.Context, token string) ([]byte, bool, error) {
	userID, resource, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid calendar feed token")
	}
	rawID, ok := strings.CutPrefix(resource, calendarFeedResource)
	if !ok {
		return nil, false, appErrors.Clone(appErrors.ErrUnauthorized, "invalid calendar feed token")
	}
	classID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return nil, false, appErrors.Clone(appErrors.ErrUnauthorized, "invalid calendar feed token")
	}
	return s.Feed(ctx, userID, classID)
}

// CreateEvent adds a class event. Staff only.
func (s *CalendarService) CreateEvent(ctx context.Context, userID string, classID int64, req dto.CreateCalendarEventRequest) (*models.CalendarEvent, error) {
	if _, err := s.access.RequireStaff(ctx, userID, classID); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid calendar event payload")
	}
	if req.EndTime.Before(req.StartTime) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must not be before start_time")
	}

	event := &models.CalendarEvent{
		ClassID:     classID,
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		AllDay:      req.AllDay,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		TimeZone:    req.TimeZone,
		UpdatedAt:   s.now().UTC(),
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create calendar event")
	}

	tag := CalendarTag(classID)
	if s.cache != nil {
		if _, err := s.cache.InvalidateTag(ctx, tag); err != nil {
			s.logger.Warn("calendar cache purge failed", zap.Int64("class_id", classID), zap.Error(err))
		}
	}
	if s.invalidations != nil {
		if err := s.invalidations.Enqueue(ctx, tag); err != nil {
			s.logger.Warn("calendar invalidation enqueue failed", zap.Int64("class_id", classID), zap.Error(err))
		}
	}
	return event, nil
}

func (s *CalendarService) render(ctx context.Context, classID int64) ([]byte, bool, error) {
	tag := CalendarTag(classID)
	parts := []string{"ics"}
	if s.cache != nil {
		var cached string
		if hit, err := s.cache.Get(ctx, tag, parts, &cached); err == nil && hit {
			return []byte(cached), true, nil
		}
	}

	events, err := s.repo.List(ctx, models.CalendarFilter{ClassID: classID})
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load calendar events")
	}

	cal := ics.Calendar{ProdID: calendarProdID, Name: fmt.Sprintf("Office hours (class %d)", classID)}
	for _, e := range events {
		cal.Events = append(cal.Events, ics.Event{
			UID:         e.UID,
			Summary:     e.Title,
			Description: e.Description,
			Location:    e.Location,
			AllDay:      e.AllDay,
			Start:       e.StartTime,
			End:         e.EndTime,
			TimeZone:    e.TimeZone,
			Stamp:       e.UpdatedAt,
		})
	}
	body := ics.Render(cal)

	if s.cache != nil {
		if err := s.cache.Set(ctx, tag, parts, body, s.cfg.CacheTTL); err != nil {
			s.logger.Debug("calendar cache store failed", zap.Int64("class_id", classID), zap.Error(err))
		}
	}
	return []byte(body), false, nil
}
