// Package queuedata derives the queue and per-user views the office hours UI
// renders, purely from a table snapshot.
package queuedata

import (
	"sort"
	"time"

	"github.com/pawtograder/office-hours/internal/models"
	"github.com/pawtograder/office-hours/internal/tablecache"
)

// SimilarQuestionsLimit caps the similar questions list.
const SimilarQuestionsLimit = 50

// QueueView is everything the queue page needs for one caller.
type QueueView struct {
	HelpQueue        *models.HelpQueue            `json:"help_queue"`
	QueueRequests    []models.HelpRequest         `json:"queue_requests"`
	UserRequests     []models.HelpRequest         `json:"user_requests"`
	CurrentRequest   *models.HelpRequest          `json:"current_request"`
	SimilarQuestions []models.HelpRequest         `json:"similar_questions"`
	ResolvedRequests []models.HelpRequest         `json:"resolved_requests"`
	ActiveStaff      []models.HelpQueueAssignment `json:"active_staff"`
	IsLoading        bool                         `json:"is_loading"`
	ConnectionStatus tablecache.ConnectionStatus  `json:"connection_status"`
}

// Aggregate builds the view for profileID on queueID in courseID. It never
// fails; missing data yields nil pointers and empty slices.
func Aggregate(snap tablecache.Snapshot, courseID, queueID int64, profileID string) QueueView {
	view := QueueView{
		QueueRequests:    []models.HelpRequest{},
		UserRequests:     []models.HelpRequest{},
		SimilarQuestions: []models.HelpRequest{},
		ResolvedRequests: []models.HelpRequest{},
		ActiveStaff:      []models.HelpQueueAssignment{},
		IsLoading:        !snap.QueuesReady || !snap.RequestsReady || !snap.StudentsReady,
		ConnectionStatus: snap.Status,
	}

	for i := range snap.Queues {
		if snap.Queues[i].ID == queueID && snap.Queues[i].ClassID == courseID {
			q := snap.Queues[i]
			view.HelpQueue = &q
			break
		}
	}

	mine := map[int64]struct{}{}
	if profileID != "" {
		for _, st := range snap.Students {
			if st.ProfileID == profileID && st.ClassID == courseID {
				mine[st.HelpRequestID] = struct{}{}
			}
		}
	}
	isMine := func(r models.HelpRequest) bool {
		if profileID == "" {
			return false
		}
		if _, ok := mine[r.ID]; ok {
			return true
		}
		return r.CreatedBy != nil && *r.CreatedBy == profileID
	}

	for _, r := range snap.Requests {
		if r.ClassID != courseID {
			continue
		}
		if r.HelpQueueID == queueID {
			switch {
			case r.Status.Active():
				view.QueueRequests = append(view.QueueRequests, r)
			case r.Status.Terminal() && !r.IsPrivate && !isMine(r):
				view.SimilarQuestions = append(view.SimilarQuestions, r)
			}
		}
		if profileID != "" {
			if _, ok := mine[r.ID]; ok {
				view.UserRequests = append(view.UserRequests, r)
			}
		}
	}

	sort.SliceStable(view.QueueRequests, func(i, j int) bool {
		return createdBefore(view.QueueRequests[i], view.QueueRequests[j])
	})
	sort.SliceStable(view.UserRequests, func(i, j int) bool {
		return createdAfter(view.UserRequests[i], view.UserRequests[j])
	})
	sort.SliceStable(view.SimilarQuestions, func(i, j int) bool {
		a, b := view.SimilarQuestions[i], view.SimilarQuestions[j]
		ta, tb := resolvedOrCreated(a), resolvedOrCreated(b)
		if !ta.Equal(tb) {
			return ta.After(tb)
		}
		return a.ID < b.ID
	})
	if len(view.SimilarQuestions) > SimilarQuestionsLimit {
		view.SimilarQuestions = view.SimilarQuestions[:SimilarQuestionsLimit]
	}

	for i := range view.UserRequests {
		r := view.UserRequests[i]
		if r.Status.Terminal() {
			view.ResolvedRequests = append(view.ResolvedRequests, r)
			continue
		}
		if view.CurrentRequest == nil && r.HelpQueueID == queueID && r.Status.Active() {
			view.CurrentRequest = &r
		}
	}

	for _, a := range snap.Assignments {
		if a.HelpQueueID == queueID && a.ClassID == courseID && a.IsActive {
			view.ActiveStaff = append(view.ActiveStaff, a)
		}
	}
	sort.SliceStable(view.ActiveStaff, func(i, j int) bool {
		a, b := view.ActiveStaff[i], view.ActiveStaff[j]
		if !a.StartedAt.Equal(b.StartedAt) {
			return a.StartedAt.Before(b.StartedAt)
		}
		return a.ID < b.ID
	})

	return view
}

func createdBefore(a, b models.HelpRequest) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func createdAfter(a, b models.HelpRequest) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

func resolvedOrCreated(r models.HelpRequest) time.Time {
	if r.ResolvedAt != nil {
		return *r.ResolvedAt
	}
	return r.CreatedAt
}
