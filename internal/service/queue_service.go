package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pawtograder/office-hours/internal/dto"
	"github.com/pawtograder/office-hours/internal/models"
	"github.com/pawtograder/office-hours/internal/queuedata"
	"github.com/pawtograder/office-hours/internal/realtime"
	"github.com/pawtograder/office-hours/internal/repository"
	"github.com/pawtograder/office-hours/internal/tablecache"
	appErrors "github.com/pawtograder/office-hours/pkg/errors"
)

// MeetingEndedEvent is the broadcast event sent when a video meeting ends.
const MeetingEndedEvent = "meeting_ended"

type helpQueueRepository interface {
	GetByID(ctx context.Context, id int64) (*models.HelpQueue, error)
}

type helpRequestRepository interface {
	GetByID(ctx context.Context, id int64) (*models.HelpRequest, error)
	ListByClass(ctx context.Context, classID int64) ([]models.HelpRequest, error)
	Create(ctx context.Context, request *models.HelpRequest, profileIDs []string) ([]models.HelpRequestStudent, error)
	UpdateStatus(ctx context.Context, params repository.UpdateStatusParams) (*models.HelpRequest, error)
	SetVideoLive(ctx context.Context, id int64, live bool) (*models.HelpRequest, error)
}

type assignmentRepository interface {
	GetActive(ctx context.Context, queueID int64, profileID string) (*models.HelpQueueAssignment, error)
	Start(ctx context.Context, assignment *models.HelpQueueAssignment) (*models.HelpQueueAssignment, bool, error)
	End(ctx context.Context, id int64, endedAt time.Time) (*models.HelpQueueAssignment, error)
}

type topicPublisher interface {
	Publish(ctx context.Context, topic, event string, payload interface{}) error
}

type tagEnqueuer interface {
	Enqueue(ctx context.Context, tag string) error
}

// QueueServiceDeps bundles the collaborators of QueueService. Store, Publisher,
// Invalidations, Notifier and Metrics are optional.
type QueueServiceDeps struct {
	Queues        helpQueueRepository
	Requests      helpRequestRepository
	Assignments   assignmentRepository
	Access        *AccessService
	Store         *tablecache.Store
	Publisher     topicPublisher
	Invalidations tagEnqueuer
	Notifier      HelpRequestNotifier
	Metrics       *MetricsService
	Validator     *validator.Validate
	Logger        *zap.Logger
}

// QueueService implements the help queue lifecycle: request creation and
// status transitions, staff work sessions and the aggregated queue view.
type QueueService struct {
	deps      QueueServiceDeps
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewQueueService constructs the service.
func NewQueueService(deps QueueServiceDeps) *QueueService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &QueueService{deps: deps, validator: deps.Validator, logger: deps.Logger, now: time.Now}
}

// View aggregates the queue page for the caller. Demo queues are rendered
// from a generated snapshot.
func (s *QueueService) View(ctx context.Context, userID string, classID, queueID int64) (*queuedata.QueueView, error) {
	role, err := s.deps.Access.Membership(ctx, userID, classID)
	if err != nil {
		return nil, err
	}
	queue, err := s.loadQueue(ctx, classID, queueID)
	if err != nil {
		return nil, err
	}

	var src queuedata.Source
	switch {
	case queue.IsDemo:
		src = queuedata.NewStaticSource(queuedata.DemoSnapshot(*queue, s.now().UTC()))
	case s.deps.Store != nil:
		src = queuedata.NewLiveSource(s.deps.Store)
	default:
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "queue data is not available")
	}
	view := queuedata.View(src, classID, queueID, role.PrivateProfileID)
	return &view, nil
}

// ListRequests returns every help request of the class. Staff only.
func (s *QueueService) ListRequests(ctx context.Context, userID string, classID int64) ([]models.HelpRequest, error) {
	if _, err := s.deps.Access.RequireStaff(ctx, userID, classID); err != nil {
		return nil, err
	}
	requests, err := s.deps.Requests.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list help requests")
	}
	if requests == nil {
		requests = []models.HelpRequest{}
	}
	return requests, nil
}

// CreateRequest opens a help request for the calling student and their group.
func (s *QueueService) CreateRequest(ctx context.Context, userID string, classID, queueID int64, req dto.CreateHelpRequestRequest) (*models.HelpRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid help request payload")
	}
	role, err := s.deps.Access.Membership(ctx, userID, classID)
	if err != nil {
		return nil, err
	}
	if role.IsStaff() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can create help requests")
	}
	if err := s.deps.Access.EnsureNotBanned(ctx, role); err != nil {
		return nil, err
	}
	queue, err := s.loadQueue(ctx, classID, queueID)
	if err != nil {
		return nil, err
	}
	if !queue.Available {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "help queue is not accepting requests")
	}

	profiles := []string{role.PrivateProfileID}
	seen := map[string]struct{}{role.PrivateProfileID: {}}
	for _, id := range req.GroupProfileIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		profiles = append(profiles, id)
	}

	now := s.now().UTC()
	creator := role.PrivateProfileID
	request := &models.HelpRequest{
		ClassID:     classID,
		HelpQueueID: queueID,
		Request:     req.Request,
		Status:      models.HelpRequestOpen,
		CreatedBy:   &creator,
		IsPrivate:   req.IsPrivate,
		IsVideoLive: req.IsVideoLive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	students, err := s.deps.Requests.Create(ctx, request, profiles)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create help request")
	}

	if s.deps.Store != nil {
		s.deps.Store.Requests.Apply(tablecache.ChangeInsert, *request)
		for _, st := range students {
			s.deps.Store.Students.Apply(tablecache.ChangeInsert, st)
		}
	}
	s.deps.Metrics.RecordTransition(models.HelpRequestOpen)
	s.invalidate(ctx, classID, queueID)

	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.HelpRequestCreated(ctx, queue, request); err != nil {
			s.logger.Warn("help request notification failed", zap.Int64("help_request_id", request.ID), zap.Error(err))
		}
	}

	s.logger.Info("help request created",
		zap.Int64("help_request_id", request.ID),
		zap.Int64("class_id", classID),
		zap.Int64("help_queue_id", queueID),
		zap.Int("students", len(profiles)),
	)
	return request, nil
}

// CloseRequest lets a student close their own request. Staff may close any
// request in their class.
func (s *QueueService) CloseRequest(ctx context.Context, userID string, classID, requestID int64) (*models.HelpRequest, error) {
	role, request, err := s.loadRequest(ctx, userID, classID, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, role, request); err != nil {
		return nil, err
	}
	return s.transition(ctx, request, models.HelpRequestClosed, role.PrivateProfileID)
}

// AssignRequest marks a request as being helped by the calling staff member.
func (s *QueueService) AssignRequest(ctx context.Context, userID string, classID, requestID int64) (*models.HelpRequest, error) {
	role, request, err := s.loadRequest(ctx, userID, classID, requestID)
	if err != nil {
		return nil, err
	}
	if !role.IsStaff() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "staff role required")
	}
	return s.transition(ctx, request, models.HelpRequestInProgress, role.PrivateProfileID)
}

// ResolveRequest marks a request resolved by the calling staff member.
func (s *QueueService) ResolveRequest(ctx context.Context, userID string, classID, requestID int64) (*models.HelpRequest, error) {
	role, request, err := s.loadRequest(ctx, userID, classID, requestID)
	if err != nil {
		return nil, err
	}
	if !role.IsStaff() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "staff role required")
	}
	return s.transition(ctx, request, models.HelpRequestResolved, role.PrivateProfileID)
}

// EndMeeting clears the live video flag and signals connected clients to
// tear the meeting down.
func (s *QueueService) EndMeeting(ctx context.Context, userID string, classID, requestID int64) (*models.HelpRequest, error) {
	role, request, err := s.loadRequest(ctx, userID, classID, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, role, request); err != nil {
		return nil, err
	}

	updated, err := s.deps.Requests.SetVideoLive(ctx, request.ID, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "help request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to end meeting")
	}
	if s.deps.Store != nil {
		s.deps.Store.Requests.Apply(tablecache.ChangeUpdate, *updated)
	}
	if s.deps.Publisher != nil {
		event := dto.EndMeetingEvent{HelpRequestID: updated.ID, ClassID: updated.ClassID, EndedBy: role.PrivateProfileID}
		if err := s.deps.Publisher.Publish(ctx, realtime.MeetingEndTopic, MeetingEndedEvent, event); err != nil {
			s.logger.Warn("meeting end broadcast failed", zap.Int64("help_request_id", updated.ID), zap.Error(err))
		}
	}
	s.invalidate(ctx, updated.ClassID, updated.HelpQueueID)
	return updated, nil
}

// StartWorking opens a work session for the calling staff member on the
// queue. An already active session is returned unchanged.
func (s *QueueService) StartWorking(ctx context.Context, userID string, classID, queueID int64) (*dto.StartWorkingResponse, error) {
	role, err := s.deps.Access.RequireStaff(ctx, userID, classID)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadQueue(ctx, classID, queueID); err != nil {
		return nil, err
	}

	assignment, created, err := s.deps.Assignments.Start(ctx, &models.HelpQueueAssignment{
		ClassID:     classID,
		HelpQueueID: queueID,
		TAProfileID: role.PrivateProfileID,
		IsActive:    true,
		StartedAt:   s.now().UTC(),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start working")
	}
	if created {
		if s.deps.Store != nil {
			s.deps.Store.Assignments.Apply(tablecache.ChangeInsert, *assignment)
		}
		s.invalidate(ctx, classID, queueID)
	}
	return &dto.StartWorkingResponse{Assignment: assignment, Created: created}, nil
}

// StopWorking ends the caller's active work session on the queue.
func (s *QueueService) StopWorking(ctx context.Context, userID string, classID, queueID int64) (*models.HelpQueueAssignment, error) {
	role, err := s.deps.Access.RequireStaff(ctx, userID, classID)
	if err != nil {
		return nil, err
	}
	active, err := s.deps.Assignments.GetActive(ctx, queueID, role.PrivateProfileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active assignment on this queue")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	ended, err := s.deps.Assignments.End(ctx, active.ID, s.now().UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active assignment on this queue")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stop working")
	}
	if s.deps.Store != nil {
		s.deps.Store.Assignments.Apply(tablecache.ChangeUpdate, *ended)
	}
	s.invalidate(ctx, classID, queueID)
	return ended, nil
}

func (s *QueueService) transition(ctx context.Context, request *models.HelpRequest, to models.HelpRequestStatus, actor string) (*models.HelpRequest, error) {
	if request.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "help request is already "+string(request.Status))
	}
	if !request.Status.CanTransition(to) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "cannot move help request from "+string(request.Status)+" to "+string(to))
	}

	params := repository.UpdateStatusParams{
		ID:   request.ID,
		From: request.Status,
		To:   to,
		At:   s.now().UTC(),
	}
	switch to {
	case models.HelpRequestInProgress:
		params.Assignee = &actor
	case models.HelpRequestResolved:
		params.ResolvedBy = &actor
	}

	updated, err := s.deps.Requests.UpdateStatus(ctx, params)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "help request changed, reload and try again")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update help request")
	}

	if s.deps.Store != nil {
		s.deps.Store.Requests.Apply(tablecache.ChangeUpdate, *updated)
	}
	s.deps.Metrics.RecordTransition(to)
	s.invalidate(ctx, updated.ClassID, updated.HelpQueueID)
	s.logger.Info("help request transitioned",
		zap.Int64("help_request_id", updated.ID),
		zap.String("from", string(request.Status)),
		zap.String("to", string(to)),
	)
	return updated, nil
}

func (s *QueueService) loadQueue(ctx context.Context, classID, queueID int64) (*models.HelpQueue, error) {
	if s.deps.Store != nil {
		if q, ok := s.deps.Store.Queues.Get(queueID); ok && q.ClassID == classID {
			return &q, nil
		}
	}
	queue, err := s.deps.Queues.GetByID(ctx, queueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "help queue not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load help queue")
	}
	if queue.ClassID != classID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "help queue not found")
	}
	return queue, nil
}

func (s *QueueService) loadRequest(ctx context.Context, userID string, classID, requestID int64) (*models.UserRole, *models.HelpRequest, error) {
	role, err := s.deps.Access.Membership(ctx, userID, classID)
	if err != nil {
		return nil, nil, err
	}
	request, err := s.deps.Requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "help request not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load help request")
	}
	if request.ClassID != classID {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "help request not found")
	}
	return role, request, nil
}

func (s *QueueService) requireParticipant(ctx context.Context, role *models.UserRole, request *models.HelpRequest) error {
	ok, err := s.deps.Access.CanViewRequest(ctx, role, request)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrForbidden, "not associated with this help request")
	}
	return nil
}

func (s *QueueService) invalidate(ctx context.Context, classID, queueID int64) {
	if s.deps.Invalidations == nil {
		return
	}
	if err := s.deps.Invalidations.Enqueue(ctx, QueueTag(classID, queueID)); err != nil {
		s.logger.Warn("cache invalidation enqueue failed", zap.Int64("help_queue_id", queueID), zap.Error(err))
	}
}
