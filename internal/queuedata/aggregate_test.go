package queuedata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawtograder/office-hours/internal/models"
	"github.com/pawtograder/office-hours/internal/tablecache"
)

const (
	course int64 = 1
	queue  int64 = 10
	caller       = "profile-caller"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func at(min int) time.Time { return base.Add(time.Duration(min) * time.Minute) }

func req(id int64, queueID int64, status models.HelpRequestStatus, created int) models.HelpRequest {
	return models.HelpRequest{ID: id, ClassID: course, HelpQueueID: queueID, Status: status, CreatedAt: at(created)}
}

func ready(s tablecache.Snapshot) tablecache.Snapshot {
	s.QueuesReady, s.RequestsReady, s.StudentsReady = true, true, true
	s.Status = tablecache.StatusConnected
	return s
}

func TestScenarioQueueAndSimilar(t *testing.T) {
	snap := ready(tablecache.Snapshot{
		Queues: []models.HelpQueue{{ID: queue, ClassID: course, Name: "Lab"}},
		Requests: []models.HelpRequest{
			req(3, queue, models.HelpRequestResolved, 3),
			req(2, queue, models.HelpRequestInProgress, 2),
			req(1, queue, models.HelpRequestOpen, 1),
		},
	})

	view := Aggregate(snap, course, queue, "someone-else")

	require.NotNil(t, view.HelpQueue)
	assert.Equal(t, "Lab", view.HelpQueue.Name)
	assert.Equal(t, []int64{1, 2}, ids(view.QueueRequests))
	assert.Equal(t, []int64{3}, ids(view.SimilarQuestions))
	assert.False(t, view.IsLoading)
	assert.Equal(t, tablecache.StatusConnected, view.ConnectionStatus)
}

func TestQueueRequestsFIFOWithIDTieBreak(t *testing.T) {
	snap := ready(tablecache.Snapshot{Requests: []models.HelpRequest{
		req(9, queue, models.HelpRequestOpen, 5),
		req(4, queue, models.HelpRequestOpen, 5),
		req(7, queue, models.HelpRequestInProgress, 1),
		req(8, queue+1, models.HelpRequestOpen, 0),
	}})

	view := Aggregate(snap, course, queue, caller)
	assert.Equal(t, []int64{7, 4, 9}, ids(view.QueueRequests))
	for i := 1; i < len(view.QueueRequests); i++ {
		assert.False(t, view.QueueRequests[i].CreatedAt.Before(view.QueueRequests[i-1].CreatedAt))
	}
}

func TestUserRequestsViaAssociationInCourse(t *testing.T) {
	other := req(5, queue, models.HelpRequestOpen, 4)
	other.ClassID = 2
	snap := ready(tablecache.Snapshot{
		Requests: []models.HelpRequest{
			req(1, queue, models.HelpRequestResolved, 1),
			req(2, queue+1, models.HelpRequestOpen, 3),
			req(3, queue, models.HelpRequestOpen, 2),
			req(4, queue, models.HelpRequestOpen, 5),
			other,
		},
		Students: []models.HelpRequestStudent{
			{ID: 1, HelpRequestID: 1, ProfileID: caller, ClassID: course},
			{ID: 2, HelpRequestID: 2, ProfileID: caller, ClassID: course},
			{ID: 3, HelpRequestID: 3, ProfileID: caller, ClassID: course},
			{ID: 4, HelpRequestID: 4, ProfileID: "classmate", ClassID: course},
			{ID: 5, HelpRequestID: 5, ProfileID: caller, ClassID: 2},
		},
	})

	view := Aggregate(snap, course, queue, caller)
	assert.Equal(t, []int64{2, 3, 1}, ids(view.UserRequests))
	require.NotNil(t, view.CurrentRequest)
	assert.Equal(t, int64(3), view.CurrentRequest.ID)
	assert.Equal(t, []int64{1}, ids(view.ResolvedRequests))
}

func TestSimilarQuestionsExcludeCallerAndPrivate(t *testing.T) {
	resolvedAt := at(100)
	mine := req(1, queue, models.HelpRequestResolved, 1)
	private := req(2, queue, models.HelpRequestClosed, 2)
	private.IsPrivate = true
	public := req(3, queue, models.HelpRequestResolved, 3)
	public.ResolvedAt = &resolvedAt
	createdByMe := req(4, queue, models.HelpRequestClosed, 4)
	createdByMe.CreatedBy = strPtr(caller)
	fallback := req(5, queue, models.HelpRequestClosed, 50)

	snap := ready(tablecache.Snapshot{
		Requests: []models.HelpRequest{mine, private, public, createdByMe, fallback},
		Students: []models.HelpRequestStudent{{ID: 1, HelpRequestID: 1, ProfileID: caller, ClassID: course}},
	})

	view := Aggregate(snap, course, queue, caller)
	assert.Equal(t, []int64{3, 5}, ids(view.SimilarQuestions))
}

func TestSimilarQuestionsCapped(t *testing.T) {
	var requests []models.HelpRequest
	for i := 0; i < 80; i++ {
		requests = append(requests, req(int64(i+1), queue, models.HelpRequestResolved, i))
	}
	view := Aggregate(ready(tablecache.Snapshot{Requests: requests}), course, queue, caller)
	require.Len(t, view.SimilarQuestions, SimilarQuestionsLimit)
	assert.Equal(t, int64(80), view.SimilarQuestions[0].ID)
}

func TestEmptyProfileAndLoading(t *testing.T) {
	snap := tablecache.Snapshot{
		Requests:      []models.HelpRequest{req(1, queue, models.HelpRequestOpen, 1)},
		Students:      []models.HelpRequestStudent{{ID: 1, HelpRequestID: 1, ProfileID: caller, ClassID: course}},
		QueuesReady:   true,
		RequestsReady: true,
		Status:        tablecache.StatusConnecting,
	}

	view := Aggregate(snap, course, queue, "")
	assert.True(t, view.IsLoading)
	assert.Nil(t, view.HelpQueue)
	assert.Nil(t, view.CurrentRequest)
	assert.Empty(t, view.UserRequests)
	assert.NotNil(t, view.UserRequests)
	assert.Equal(t, []int64{1}, ids(view.QueueRequests))
}

func TestActiveStaffExcludesStoppedAssignments(t *testing.T) {
	store := tablecache.NewStore()
	store.Assignments.Load(nil)
	store.Assignments.Apply(tablecache.ChangeInsert, models.HelpQueueAssignment{ID: 1, ClassID: course, HelpQueueID: queue, TAProfileID: "ta", IsActive: true, StartedAt: at(0)})

	view := View(NewLiveSource(store), course, queue, caller)
	require.Len(t, view.ActiveStaff, 1)

	ended := at(30)
	store.Assignments.Apply(tablecache.ChangeUpdate, models.HelpQueueAssignment{ID: 1, ClassID: course, HelpQueueID: queue, TAProfileID: "ta", IsActive: false, StartedAt: at(0), EndedAt: &ended})

	view = View(NewLiveSource(store), course, queue, caller)
	assert.Empty(t, view.ActiveStaff)
}

func TestStaticSourceDemoQueue(t *testing.T) {
	q := models.HelpQueue{ID: queue, ClassID: course, Name: "Demo", IsDemo: true}
	src := NewStaticSource(DemoSnapshot(q, base))

	view := View(src, course, queue, "student-profile")
	assert.False(t, view.IsLoading)
	assert.Equal(t, tablecache.StatusConnected, view.ConnectionStatus)
	assert.Len(t, view.QueueRequests, 3)
	assert.Len(t, view.SimilarQuestions, 2)
	require.Len(t, view.ActiveStaff, 1)
	assert.Equal(t, DemoTAProfileID, view.ActiveStaff[0].TAProfileID)

	staffView := View(src, course, queue, "ta-profile")
	require.Len(t, staffView.ActiveStaff, 1)
	assert.Equal(t, DemoTAProfileID, staffView.ActiveStaff[0].TAProfileID)

	empty := View(src, course+1, queue, "student-profile")
	assert.Nil(t, empty.HelpQueue)
}

func ids(rs []models.HelpRequest) []int64 {
	out := make([]int64, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

func strPtr(s string) *string { return &s }
