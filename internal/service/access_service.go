package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/pawtograder/office-hours/internal/models"
	"github.com/pawtograder/office-hours/internal/realtime"
	appErrors "github.com/pawtograder/office-hours/pkg/errors"
)

type roleRepository interface {
	Get(ctx context.Context, userID string, classID int64) (*models.UserRole, error)
	HasStaffRole(ctx context.Context, userID string) (bool, error)
}

type banRepository interface {
	ActiveBan(ctx context.Context, classID int64, profileID string, now time.Time) (*models.ModerationAction, error)
}

type requestAccessRepository interface {
	GetByID(ctx context.Context, id int64) (*models.HelpRequest, error)
	IsAssociated(ctx context.Context, requestID int64, profileID string) (bool, error)
}

// AccessService resolves class membership, staff status and bans. It also
// authorizes realtime topics.
type AccessService struct {
	roles    roleRepository
	bans     banRepository
	requests requestAccessRepository
	logger   *zap.Logger
	now      func() time.Time
}

// NewAccessService constructs an AccessService.
func NewAccessService(roles roleRepository, bans banRepository, requests requestAccessRepository, logger *zap.Logger) *AccessService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessService{roles: roles, bans: bans, requests: requests, logger: logger, now: time.Now}
}

// Membership returns the user's role in the class, or 403 when absent.
func (s *AccessService) Membership(ctx context.Context, userID string, classID int64) (*models.UserRole, error) {
	role, err := s.roles.Get(ctx, userID, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not a member of this class")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class membership")
	}
	return role, nil
}

// RequireStaff returns the user's role when it is instructor or grader.
func (s *AccessService) RequireStaff(ctx context.Context, userID string, classID int64) (*models.UserRole, error) {
	role, err := s.Membership(ctx, userID, classID)
	if err != nil {
		return nil, err
	}
	if !role.IsStaff() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "staff role required")
	}
	return role, nil
}

// HasStaffRole reports whether the user is staff in any class.
func (s *AccessService) HasStaffRole(ctx context.Context, userID string) (bool, error) {
	ok, err := s.roles.HasStaffRole(ctx, userID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check staff role")
	}
	return ok, nil
}

// ActiveBan returns the ban in force on the profile, or nil.
func (s *AccessService) ActiveBan(ctx context.Context, classID int64, profileID string) (*models.ModerationAction, error) {
	if s.bans == nil {
		return nil, nil
	}
	ban, err := s.bans.ActiveBan(ctx, classID, profileID, s.now().UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check moderation status")
	}
	return ban, nil
}

// EnsureNotBanned returns ErrBanned when a ban is in force on a student.
func (s *AccessService) EnsureNotBanned(ctx context.Context, role *models.UserRole) error {
	if role.IsStaff() {
		return nil
	}
	ban, err := s.ActiveBan(ctx, role.ClassID, role.PrivateProfileID)
	if err != nil {
		return err
	}
	if ban != nil {
		return appErrors.ErrBanned
	}
	return nil
}

// CanViewRequest reports whether role may see the help request: staff of its
// class or one of its students.
func (s *AccessService) CanViewRequest(ctx context.Context, role *models.UserRole, request *models.HelpRequest) (bool, error) {
	if request.ClassID != role.ClassID {
		return false, nil
	}
	if role.IsStaff() {
		return true, nil
	}
	ok, err := s.requests.IsAssociated(ctx, request.ID, role.PrivateProfileID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check help request association")
	}
	return ok, nil
}

// AuthorizeTopic implements realtime.Authorizer.
func (s *AccessService) AuthorizeTopic(ctx context.Context, userID string, topic realtime.Topic) (*realtime.Access, error) {
	switch topic.Kind {
	case realtime.KindMeetingEnd:
		return &realtime.Access{ProfileID: userID}, nil
	case realtime.KindHelpQueue:
		return s.classAccess(ctx, userID, topic.ClassID)
	case realtime.KindHelpRequest:
		request, err := s.requests.GetByID(ctx, topic.HelpRequestID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, realtime.ErrTopicForbidden
			}
			return nil, err
		}
		role, err := s.roles.Get(ctx, userID, request.ClassID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, realtime.ErrTopicForbidden
			}
			return nil, err
		}
		ok, err := s.CanViewRequest(ctx, role, request)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, realtime.ErrTopicForbidden
		}
		return s.access(ctx, role)
	default:
		return nil, realtime.ErrTopicForbidden
	}
}

func (s *AccessService) classAccess(ctx context.Context, userID string, classID int64) (*realtime.Access, error) {
	role, err := s.roles.Get(ctx, userID, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, realtime.ErrTopicForbidden
		}
		return nil, err
	}
	return s.access(ctx, role)
}

func (s *AccessService) access(ctx context.Context, role *models.UserRole) (*realtime.Access, error) {
	access := &realtime.Access{ProfileID: role.PrivateProfileID, Staff: role.IsStaff()}
	if !access.Staff {
		ban, err := s.ActiveBan(ctx, role.ClassID, role.PrivateProfileID)
		if err != nil {
			return nil, err
		}
		access.Banned = ban != nil
	}
	return access, nil
}
