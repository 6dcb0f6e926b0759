package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawtograder/office-hours/internal/dto"
	"github.com/pawtograder/office-hours/internal/models"
	appErrors "github.com/pawtograder/office-hours/pkg/errors"
)

type moderationRepoStub struct {
	bans *banRepoStub
}

func (s *moderationRepoStub) Create(_ context.Context, action *models.ModerationAction) error {
	action.ID = int64(len(s.bans.bans) + 1)
	s.bans.bans = append(s.bans.bans, *action)
	return nil
}

func (s *moderationRepoStub) ListByClass(_ context.Context, classID int64) ([]models.ModerationAction, error) {
	var out []models.ModerationAction
	for _, a := range s.bans.bans {
		if a.ClassID == classID {
			out = append(out, a)
		}
	}
	return out, nil
}

func TestModerationServiceTemporaryBan(t *testing.T) {
	bans := &banRepoStub{}
	access := NewAccessService(testRoles(), bans, &requestAccessStub{}, nil)
	svc := NewModerationService(&moderationRepoStub{bans: bans}, access, nil, nil)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	access.now = func() time.Time { return now.Add(time.Minute) }
	ctx := context.Background()

	action, err := svc.Create(ctx, taUser, 1, dto.CreateModerationRequest{
		StudentProfileID: studentProfile,
		ActionType:       models.ModerationTemporaryBan,
		Reason:           "spam",
		DurationMinutes:  intPtr(30),
	})
	require.NoError(t, err)
	require.NotNil(t, action.ExpiresAt)
	assert.Equal(t, action.CreatedAt.Add(30*time.Minute), *action.ExpiresAt)
	assert.Equal(t, taProfile, action.ModeratorProfileID)
	assert.False(t, action.IsPermanent)

	student, err := access.Membership(ctx, studentUser, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, access.EnsureNotBanned(ctx, student), appErrors.ErrBanned)

	access.now = func() time.Time { return now.Add(31 * time.Minute) }
	assert.NoError(t, access.EnsureNotBanned(ctx, student))
}

func TestModerationServiceValidation(t *testing.T) {
	bans := &banRepoStub{}
	access := NewAccessService(testRoles(), bans, &requestAccessStub{}, nil)
	svc := NewModerationService(&moderationRepoStub{bans: bans}, access, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, taUser, 1, dto.CreateModerationRequest{StudentProfileID: studentProfile, ActionType: models.ModerationTemporaryBan})
	assertStatus(t, err, 400)

	_, err = svc.Create(ctx, taUser, 1, dto.CreateModerationRequest{StudentProfileID: studentProfile, ActionType: "mute"})
	assertStatus(t, err, 400)

	_, err = svc.Create(ctx, studentUser, 1, dto.CreateModerationRequest{StudentProfileID: peerProfile, ActionType: models.ModerationWarning})
	assertStatus(t, err, 403)

	perm, err := svc.Create(ctx, taUser, 1, dto.CreateModerationRequest{StudentProfileID: peerProfile, ActionType: models.ModerationPermanentBan})
	require.NoError(t, err)
	assert.True(t, perm.IsPermanent)
	assert.Nil(t, perm.ExpiresAt)

	actions, err := svc.List(ctx, taUser, 1)
	require.NoError(t, err)
	assert.Len(t, actions, 1)

	_, err = svc.List(ctx, studentUser, 1)
	assertStatus(t, err, 403)
}
