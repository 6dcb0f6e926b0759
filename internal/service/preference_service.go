package service

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"

	"go.uber.org/zap"

	"github.com/pawtograder/office-hours/internal/repository"
	appErrors "github.com/pawtograder/office-hours/pkg/errors"
)

const maxPreferenceBytes = 16 << 10

var preferenceKeyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.:-]{0,63}$`)

// PreferenceStore persists small JSON documents scoped to a user and key.
type PreferenceStore interface {
	Load(ctx context.Context, userID, key string) (json.RawMessage, error)
	Save(ctx context.Context, userID, key string, value json.RawMessage) error
	Clear(ctx context.Context, userID, key string) error
}

// PreferenceService validates and stores per-user UI state such as survey
// drafts and dismissed notices.
type PreferenceService struct {
	store  PreferenceStore
	logger *zap.Logger
}

// NewPreferenceService constructs the service. A nil store reports the
// feature as unavailable.
func NewPreferenceService(store PreferenceStore, logger *zap.Logger) *PreferenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreferenceService{store: store, logger: logger}
}

// Load returns the document stored under key.
func (s *PreferenceService) Load(ctx context.Context, userID, key string) (json.RawMessage, error) {
	if err := s.check(key); err != nil {
		return nil, err
	}
	value, err := s.store.Load(ctx, userID, key)
	if err != nil {
		if errors.Is(err, repository.ErrPreferenceNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "preference not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load preference")
	}
	return value, nil
}

// Save stores value under key.
func (s *PreferenceService) Save(ctx context.Context, userID, key string, value json.RawMessage) error {
	if err := s.check(key); err != nil {
		return err
	}
	if len(value) == 0 || !json.Valid(value) {
		return appErrors.Clone(appErrors.ErrValidation, "preference value must be valid JSON")
	}
	if len(value) > maxPreferenceBytes {
		return appErrors.Clone(appErrors.ErrValidation, "preference value is too large")
	}
	if err := s.store.Save(ctx, userID, key, value); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save preference")
	}
	return nil
}

// Clear removes the document stored under key.
func (s *PreferenceService) Clear(ctx context.Context, userID, key string) error {
	if err := s.check(key); err != nil {
		return err
	}
	if err := s.store.Clear(ctx, userID, key); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear preference")
	}
	return nil
}

func (s *PreferenceService) check(key string) error {
	if s.store == nil {
		return appErrors.Clone(appErrors.ErrUnavailable, "preference storage is not configured")
	}
	if !preferenceKeyPattern.MatchString(key) {
		return appErrors.Clone(appErrors.ErrValidation, "invalid preference key")
	}
	return nil
}
