package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/pawtograder/office-hours/pkg/errors"
)

// InvalidationBucket is the debounce window for cache invalidation requests.
const InvalidationBucket = 5 * time.Second

type invalidationWriter interface {
	Enqueue(ctx context.Context, tag string, bucket, createdAt time.Time) error
}

// QueueTag is the cache tag covering everything rendered for one queue.
func QueueTag(classID, queueID int64) string {
	return fmt.Sprintf("queue:%d:%d", classID, queueID)
}

// CalendarTag is the cache tag of a class calendar feed.
func CalendarTag(classID int64) string {
	return fmt.Sprintf("calendar:%d", classID)
}

// InvalidationService records debounced cache invalidation requests for the worker.
type InvalidationService struct {
	repo   invalidationWriter
	logger *zap.Logger
	now    func() time.Time
}

// NewInvalidationService constructs the service.
func NewInvalidationService(repo invalidationWriter, logger *zap.Logger) *InvalidationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvalidationService{repo: repo, logger: logger, now: time.Now}
}

// Enqueue requests revalidation of tag. Repeated requests in the same bucket collapse into one.
func (s *InvalidationService) Enqueue(ctx context.Context, tag string) error {
	if s == nil || s.repo == nil {
		return nil
	}
	now := s.now().UTC()
	if err := s.repo.Enqueue(ctx, tag, now.Truncate(InvalidationBucket), now); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue cache invalidation")
	}
	return nil
}
