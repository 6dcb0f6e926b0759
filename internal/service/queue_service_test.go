package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawtograder/office-hours/internal/dto"
	"github.com/pawtograder/office-hours/internal/models"
	"github.com/pawtograder/office-hours/internal/realtime"
	"github.com/pawtograder/office-hours/internal/tablecache"
	appErrors "github.com/pawtograder/office-hours/pkg/errors"
)

type queueRepoStub struct {
	queues map[int64]*models.HelpQueue
}

func (s *queueRepoStub) GetByID(_ context.Context, id int64) (*models.HelpQueue, error) {
	q, ok := s.queues[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *q
	return &cp, nil
}

type assignmentRepoStub struct {
	rows []models.HelpQueueAssignment
}

func (s *assignmentRepoStub) GetActive(_ context.Context, queueID int64, profileID string) (*models.HelpQueueAssignment, error) {
	for i := range s.rows {
		a := s.rows[i]
		if a.IsActive && a.HelpQueueID == queueID && a.TAProfileID == profileID {
			return &a, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *assignmentRepoStub) Start(ctx context.Context, a *models.HelpQueueAssignment) (*models.HelpQueueAssignment, bool, error) {
	if existing, err := s.GetActive(ctx, a.HelpQueueID, a.TAProfileID); err == nil {
		return existing, false, nil
	}
	a.ID = int64(len(s.rows) + 1)
	s.rows = append(s.rows, *a)
	cp := *a
	return &cp, true, nil
}

func (s *assignmentRepoStub) End(_ context.Context, id int64, endedAt time.Time) (*models.HelpQueueAssignment, error) {
	for i := range s.rows {
		if s.rows[i].ID == id && s.rows[i].IsActive {
			s.rows[i].IsActive = false
			s.rows[i].EndedAt = &endedAt
			cp := s.rows[i]
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

type publishedEvent struct {
	topic, event string
	payload      interface{}
}

type publisherStub struct {
	events []publishedEvent
}

func (s *publisherStub) Publish(_ context.Context, topic, event string, payload interface{}) error {
	s.events = append(s.events, publishedEvent{topic: topic, event: event, payload: payload})
	return nil
}

type enqueuerStub struct {
	tags []string
}

func (s *enqueuerStub) Enqueue(_ context.Context, tag string) error {
	s.tags = append(s.tags, tag)
	return nil
}

type notifierStub struct {
	created []int64
}

func (s *notifierStub) HelpRequestCreated(_ context.Context, _ *models.HelpQueue, request *models.HelpRequest) error {
	s.created = append(s.created, request.ID)
	return nil
}

type queueFixture struct {
	svc         *QueueService
	requests    *requestAccessStub
	assignments *assignmentRepoStub
	bans        *banRepoStub
	store       *tablecache.Store
	publisher   *publisherStub
	tags        *enqueuerStub
	notifier    *notifierStub
}

func newQueueFixture(t *testing.T) *queueFixture {
	t.Helper()
	f := &queueFixture{
		requests: &requestAccessStub{
			requests: map[int64]*models.HelpRequest{},
			students: map[int64][]string{},
		},
		assignments: &assignmentRepoStub{},
		bans:        &banRepoStub{},
		store:       tablecache.NewStore(),
		publisher:   &publisherStub{},
		tags:        &enqueuerStub{},
		notifier:    &notifierStub{},
	}
	queues := &queueRepoStub{queues: map[int64]*models.HelpQueue{
		3: {ID: 3, ClassID: 1, Name: "Lab", QueueType: models.QueueTypeChat, Available: true},
		4: {ID: 4, ClassID: 1, Name: "Demo", QueueType: models.QueueTypeVideo, Available: true, IsDemo: true},
		5: {ID: 5, ClassID: 1, Name: "Closed", QueueType: models.QueueTypeChat},
	}}
	f.store.Queues.Load([]models.HelpQueue{*queues.queues[3]})
	f.store.Requests.Load(nil)
	f.store.Students.Load(nil)
	f.store.Assignments.Load(nil)

	access := NewAccessService(testRoles(), f.bans, f.requests, nil)
	f.svc = NewQueueService(QueueServiceDeps{
		Queues:        queues,
		Requests:      f.requests,
		Assignments:   f.assignments,
		Access:        access,
		Store:         f.store,
		Publisher:     f.publisher,
		Invalidations: f.tags,
		Notifier:      f.notifier,
		Metrics:       NewMetricsService(),
	})
	return f
}

func (f *queueFixture) seed(status models.HelpRequestStatus, profiles ...string) *models.HelpRequest {
	creator := profiles[0]
	r := &models.HelpRequest{ClassID: 1, HelpQueueID: 3, Request: "help", Status: status, CreatedBy: &creator}
	_, _ = f.requests.Create(context.Background(), r, profiles)
	f.requests.requests[r.ID].Status = status
	return r
}

func TestQueueServiceCreateRequest(t *testing.T) {
	f := newQueueFixture(t)

	req, err := f.svc.CreateRequest(context.Background(), studentUser, 1, 3, dto.CreateHelpRequestRequest{
		Request:         "Segfault in part 2",
		GroupProfileIDs: []string{peerProfile, peerProfile, studentProfile},
	})
	require.NoError(t, err)

	assert.Equal(t, models.HelpRequestOpen, req.Status)
	assert.Equal(t, studentProfile, *req.CreatedBy)
	assert.Equal(t, []string{studentProfile, peerProfile}, f.requests.students[req.ID])

	mirrored, ok := f.store.Requests.Get(req.ID)
	require.True(t, ok)
	assert.Equal(t, "Segfault in part 2", mirrored.Request)
	assert.Equal(t, 2, f.store.Students.Len())
	assert.Equal(t, []int64{req.ID}, f.notifier.created)
	assert.Equal(t, []string{"queue:1:3"}, f.tags.tags)

	view, err := f.svc.View(context.Background(), peerUser, 1, 3)
	require.NoError(t, err)
	require.NotNil(t, view.CurrentRequest)
	assert.Equal(t, req.ID, view.CurrentRequest.ID)
}

func TestQueueServiceCreateRequestRejections(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateRequest(ctx, studentUser, 1, 3, dto.CreateHelpRequestRequest{})
	assertStatus(t, err, 400)

	_, err = f.svc.CreateRequest(ctx, studentUser, 1, 3, dto.CreateHelpRequestRequest{Request: "x", GroupProfileIDs: []string{"nope"}})
	assertStatus(t, err, 400)

	_, err = f.svc.CreateRequest(ctx, taUser, 1, 3, dto.CreateHelpRequestRequest{Request: "x"})
	assertStatus(t, err, 403)

	_, err = f.svc.CreateRequest(ctx, studentUser, 1, 5, dto.CreateHelpRequestRequest{Request: "x"})
	assertStatus(t, err, 412)

	_, err = f.svc.CreateRequest(ctx, studentUser, 1, 99, dto.CreateHelpRequestRequest{Request: "x"})
	assertStatus(t, err, 404)

	f.bans.bans = append(f.bans.bans, models.ModerationAction{ClassID: 1, StudentProfileID: studentProfile, ActionType: models.ModerationPermanentBan})
	_, err = f.svc.CreateRequest(ctx, studentUser, 1, 3, dto.CreateHelpRequestRequest{Request: "x"})
	assert.ErrorIs(t, err, appErrors.ErrBanned)
}

func TestQueueServiceCloseRequest(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	open := f.seed(models.HelpRequestOpen, studentProfile)

	_, err := f.svc.CloseRequest(ctx, peerUser, 1, open.ID)
	assertStatus(t, err, 403)

	closed, err := f.svc.CloseRequest(ctx, studentUser, 1, open.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HelpRequestClosed, closed.Status)

	_, err = f.svc.CloseRequest(ctx, studentUser, 1, open.ID)
	assertStatus(t, err, 409)

	resolved := f.seed(models.HelpRequestResolved, studentProfile)
	_, err = f.svc.CloseRequest(ctx, studentUser, 1, resolved.ID)
	assertStatus(t, err, 409)
	assert.Equal(t, models.HelpRequestResolved, f.requests.requests[resolved.ID].Status)

	_, err = f.svc.CloseRequest(ctx, studentUser, 2, open.ID)
	assertStatus(t, err, 403)
}

func TestQueueServiceAssignAndResolve(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	r := f.seed(models.HelpRequestOpen, studentProfile)

	_, err := f.svc.AssignRequest(ctx, studentUser, 1, r.ID)
	assertStatus(t, err, 403)

	assigned, err := f.svc.AssignRequest(ctx, taUser, 1, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HelpRequestInProgress, assigned.Status)
	assert.Equal(t, taProfile, *assigned.Assignee)

	_, err = f.svc.AssignRequest(ctx, taUser, 1, r.ID)
	assertStatus(t, err, 409)

	resolved, err := f.svc.ResolveRequest(ctx, taUser, 1, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HelpRequestResolved, resolved.Status)
	assert.Equal(t, taProfile, *resolved.ResolvedBy)
	assert.NotNil(t, resolved.ResolvedAt)

	mirrored, ok := f.store.Requests.Get(r.ID)
	require.True(t, ok)
	assert.Equal(t, models.HelpRequestResolved, mirrored.Status)

	_, err = f.svc.ResolveRequest(ctx, taUser, 1, 404)
	assertStatus(t, err, 404)
}

func TestQueueServiceEndMeeting(t *testing.T) {
	f := newQueueFixture(t)
	r := f.seed(models.HelpRequestInProgress, studentProfile)
	f.requests.requests[r.ID].IsVideoLive = true

	updated, err := f.svc.EndMeeting(context.Background(), taUser, 1, r.ID)
	require.NoError(t, err)
	assert.False(t, updated.IsVideoLive)

	require.Len(t, f.publisher.events, 1)
	ev := f.publisher.events[0]
	assert.Equal(t, realtime.MeetingEndTopic, ev.topic)
	assert.Equal(t, MeetingEndedEvent, ev.event)
	assert.Equal(t, dto.EndMeetingEvent{HelpRequestID: r.ID, ClassID: 1, EndedBy: taProfile}, ev.payload)

	_, err = f.svc.EndMeeting(context.Background(), peerUser, 1, r.ID)
	assertStatus(t, err, 403)
}

func TestQueueServiceStartWorkingIsIdempotent(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	first, err := f.svc.StartWorking(ctx, taUser, 1, 3)
	require.NoError(t, err)
	assert.True(t, first.Created)

	second, err := f.svc.StartWorking(ctx, taUser, 1, 3)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Assignment.ID, second.Assignment.ID)

	active := 0
	for _, a := range f.assignments.rows {
		if a.IsActive {
			active++
		}
	}
	assert.Equal(t, 1, active)
	assert.Equal(t, 1, f.store.Assignments.Len())

	view, err := f.svc.View(ctx, taUser, 1, 3)
	require.NoError(t, err)
	require.Len(t, view.ActiveStaff, 1)
	assert.Equal(t, taProfile, view.ActiveStaff[0].TAProfileID)

	_, err = f.svc.StartWorking(ctx, studentUser, 1, 3)
	assertStatus(t, err, 403)
}

func TestQueueServiceStopWorking(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	_, err := f.svc.StopWorking(ctx, taUser, 1, 3)
	assertStatus(t, err, 404)

	_, err = f.svc.StartWorking(ctx, taUser, 1, 3)
	require.NoError(t, err)

	ended, err := f.svc.StopWorking(ctx, taUser, 1, 3)
	require.NoError(t, err)
	assert.False(t, ended.IsActive)
	assert.NotNil(t, ended.EndedAt)

	view, err := f.svc.View(ctx, taUser, 1, 3)
	require.NoError(t, err)
	assert.Empty(t, view.ActiveStaff)
}

func TestQueueServiceViewDemoQueue(t *testing.T) {
	f := newQueueFixture(t)

	view, err := f.svc.View(context.Background(), taUser, 1, 4)
	require.NoError(t, err)
	require.NotNil(t, view.HelpQueue)
	assert.Equal(t, "Demo", view.HelpQueue.Name)
	assert.False(t, view.IsLoading)
	assert.NotEmpty(t, view.QueueRequests)
	for _, r := range view.QueueRequests {
		assert.Less(t, r.ID, int64(0))
	}

	_, err = f.svc.View(context.Background(), "stranger", 1, 4)
	assertStatus(t, err, 403)
}

func TestQueueServiceListRequests(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	empty, err := f.svc.ListRequests(ctx, taUser, 1)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	first := f.seed(models.HelpRequestOpen, studentProfile)
	second := f.seed(models.HelpRequestResolved, peerProfile)

	list, err := f.svc.ListRequests(ctx, taUser, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	_, err = f.svc.ListRequests(ctx, studentUser, 1)
	assertStatus(t, err, 403)
}
