package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pawtograder/office-hours/internal/dto"
	"github.com/pawtograder/office-hours/internal/models"
	appErrors "github.com/pawtograder/office-hours/pkg/errors"
)

type moderationRepository interface {
	Create(ctx context.Context, action *models.ModerationAction) error
	ListByClass(ctx context.Context, classID int64) ([]models.ModerationAction, error)
}

// ModerationService records staff moderation of students.
type ModerationService struct {
	repo      moderationRepository
	access    *AccessService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewModerationService constructs the service.
func NewModerationService(repo moderationRepository, access *AccessService, validate *validator.Validate, logger *zap.Logger) *ModerationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModerationService{repo: repo, access: access, validator: validate, logger: logger, now: time.Now}
}

// List returns the class's moderation history.
func (s *ModerationService) List(ctx context.Context, userID string, classID int64) ([]models.ModerationAction, error) {
	if _, err := s.access.RequireStaff(ctx, userID, classID); err != nil {
		return nil, err
	}
	actions, err := s.repo.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list moderation actions")
	}
	if actions == nil {
		actions = []models.ModerationAction{}
	}
	return actions, nil
}

// Create records an action. Temporary bans expire duration_minutes after creation.
func (s *ModerationService) Create(ctx context.Context, userID string, classID int64, req dto.CreateModerationRequest) (*models.ModerationAction, error) {
	moderator, err := s.access.RequireStaff(ctx, userID, classID)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid moderation payload")
	}

	now := s.now().UTC()
	action := &models.ModerationAction{
		ClassID:            classID,
		StudentProfileID:   req.StudentProfileID,
		ModeratorProfileID: moderator.PrivateProfileID,
		HelpRequestID:      req.HelpRequestID,
		MessageID:          req.MessageID,
		ActionType:         req.ActionType,
		Reason:             req.Reason,
		CreatedAt:          now,
	}
	switch req.ActionType {
	case models.ModerationTemporaryBan:
		if req.DurationMinutes == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duration_minutes is required for temporary bans")
		}
		minutes := *req.DurationMinutes
		expires := now.Add(time.Duration(minutes) * time.Minute)
		action.DurationMinutes = &minutes
		action.ExpiresAt = &expires
	case models.ModerationPermanentBan:
		action.IsPermanent = true
	}

	if err := s.repo.Create(ctx, action); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record moderation action")
	}
	s.logger.Info("moderation action recorded",
		zap.Int64("class_id", classID),
		zap.String("action_type", string(action.ActionType)),
		zap.String("student_profile_id", action.StudentProfileID),
	)
	return action, nil
}
