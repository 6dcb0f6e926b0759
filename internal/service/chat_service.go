package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pawtograder/office-hours/internal/chat"
	"github.com/pawtograder/office-hours/internal/dto"
	"github.com/pawtograder/office-hours/internal/models"
	"github.com/pawtograder/office-hours/internal/realtime"
	appErrors "github.com/pawtograder/office-hours/pkg/errors"
)

type helpRequestLoader interface {
	GetByID(ctx context.Context, id int64) (*models.HelpRequest, error)
}

// ChatService exposes durable help request chat and ephemeral queue chat
// over HTTP, enforcing class access and bans.
type ChatService struct {
	registry  *chat.Registry
	access    *AccessService
	queues    helpQueueRepository
	requests  helpRequestLoader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewChatService constructs the service.
func NewChatService(registry *chat.Registry, access *AccessService, queues helpQueueRepository, requests helpRequestLoader, validate *validator.Validate, logger *zap.Logger) *ChatService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{registry: registry, access: access, queues: queues, requests: requests, validator: validate, logger: logger}
}

// RequestMessages returns a help request's chat as the caller may see it.
func (s *ChatService) RequestMessages(ctx context.Context, userID string, classID, requestID int64) (*dto.ChatResponse, error) {
	ch, _, err := s.durable(ctx, userID, classID, requestID)
	if err != nil {
		return nil, err
	}
	return response(ch), nil
}

// PostRequestMessage posts to a help request's chat.
func (s *ChatService) PostRequestMessage(ctx context.Context, userID string, classID, requestID int64, req dto.PostMessageRequest) (*models.ChatMessage, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid message payload")
	}
	ch, role, err := s.durable(ctx, userID, classID, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.access.EnsureNotBanned(ctx, role); err != nil {
		return nil, err
	}

	var msg *models.ChatMessage
	if req.InstructorsOnly {
		if !role.IsStaff() {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only staff can post instructor-only messages")
		}
		msg, err = ch.PostInstructorsOnly(ctx, req.Message)
	} else {
		msg, err = ch.PostMessage(ctx, req.Message)
	}
	if err != nil {
		return nil, chatError(err)
	}
	return msg, nil
}

// QueueMessages returns the queue's ephemeral chat buffer.
func (s *ChatService) QueueMessages(ctx context.Context, userID string, classID, queueID int64) (*dto.ChatResponse, error) {
	ch, _, err := s.ephemeral(ctx, userID, classID, queueID)
	if err != nil {
		return nil, err
	}
	return response(ch), nil
}

// PostQueueMessage broadcasts to the queue's ephemeral chat.
func (s *ChatService) PostQueueMessage(ctx context.Context, userID string, classID, queueID int64, req dto.PostMessageRequest) (*models.ChatMessage, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid message payload")
	}
	if req.InstructorsOnly {
		return nil, appErrors.Clone(appErrors.ErrValidation, "queue chat does not support instructor-only messages")
	}
	ch, role, err := s.ephemeral(ctx, userID, classID, queueID)
	if err != nil {
		return nil, err
	}
	if err := s.access.EnsureNotBanned(ctx, role); err != nil {
		return nil, err
	}
	msg, err := ch.PostMessage(ctx, req.Message)
	if err != nil {
		return nil, chatError(err)
	}
	return msg, nil
}

func (s *ChatService) durable(ctx context.Context, userID string, classID, requestID int64) (*chat.DurableChannel, *models.UserRole, error) {
	role, err := s.access.Membership(ctx, userID, classID)
	if err != nil {
		return nil, nil, err
	}
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "help request not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load help request")
	}
	ok, err := s.access.CanViewRequest(ctx, role, request)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		if request.ClassID != classID {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "help request not found")
		}
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "not associated with this help request")
	}
	ch, err := s.registry.Durable(ctx, *request, chat.Participant{ProfileID: role.PrivateProfileID, Staff: role.IsStaff()})
	if err != nil {
		return nil, nil, chatError(err)
	}
	return ch, role, nil
}

func (s *ChatService) ephemeral(ctx context.Context, userID string, classID, queueID int64) (*chat.EphemeralChannel, *models.UserRole, error) {
	role, err := s.access.Membership(ctx, userID, classID)
	if err != nil {
		return nil, nil, err
	}
	queue, err := s.queues.GetByID(ctx, queueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "help queue not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load help queue")
	}
	if queue.ClassID != classID {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "help queue not found")
	}
	ch, err := s.registry.Ephemeral(ctx, classID, queueID, chat.Participant{ProfileID: role.PrivateProfileID, Staff: role.IsStaff()})
	if err != nil {
		return nil, nil, chatError(err)
	}
	return ch, role, nil
}

func response(ch chat.Channel) *dto.ChatResponse {
	return &dto.ChatResponse{Topic: ch.Topic(), Messages: ch.Messages(), Participants: ch.Participants()}
}

func chatError(err error) error {
	switch {
	case errors.Is(err, chat.ErrNotSubscribed):
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "chat channel is closed, retry")
	case errors.Is(err, realtime.ErrBrokerClosed):
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "realtime service is shutting down")
	default:
		return appErrors.FromError(err)
	}
}
