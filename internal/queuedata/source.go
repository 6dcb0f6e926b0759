package queuedata

import (
	"fmt"
	"time"

	"github.com/pawtograder/office-hours/internal/models"
	"github.com/pawtograder/office-hours/internal/tablecache"
)

// Source supplies table snapshots to the aggregator.
type Source interface {
	Snapshot(classID int64) tablecache.Snapshot
}

// LiveSource reads from the realtime table mirror.
type LiveSource struct {
	store *tablecache.Store
}

// NewLiveSource wraps store.
func NewLiveSource(store *tablecache.Store) *LiveSource {
	return &LiveSource{store: store}
}

// Snapshot implements Source.
func (s *LiveSource) Snapshot(classID int64) tablecache.Snapshot {
	return s.store.Snapshot(classID)
}

// StaticSource serves a fixed snapshot, used to preview demo queues without
// touching live data.
type StaticSource struct {
	snap tablecache.Snapshot
}

// NewStaticSource returns a source that always reports snap as loaded and connected.
func NewStaticSource(snap tablecache.Snapshot) *StaticSource {
	snap.QueuesReady = true
	snap.RequestsReady = true
	snap.StudentsReady = true
	snap.Status = tablecache.StatusConnected
	return &StaticSource{snap: snap}
}

// Snapshot implements Source.
func (s *StaticSource) Snapshot(classID int64) tablecache.Snapshot {
	out := tablecache.Snapshot{
		QueuesReady:   s.snap.QueuesReady,
		RequestsReady: s.snap.RequestsReady,
		StudentsReady: s.snap.StudentsReady,
		Status:        s.snap.Status,
	}
	for _, q := range s.snap.Queues {
		if q.ClassID == classID {
			out.Queues = append(out.Queues, q)
		}
	}
	for _, r := range s.snap.Requests {
		if r.ClassID == classID {
			out.Requests = append(out.Requests, r)
		}
	}
	for _, st := range s.snap.Students {
		if st.ClassID == classID {
			out.Students = append(out.Students, st)
		}
	}
	for _, a := range s.snap.Assignments {
		if a.ClassID == classID {
			out.Assignments = append(out.Assignments, a)
		}
	}
	return out
}

// View aggregates from src.
func View(src Source, courseID, queueID int64, profileID string) QueueView {
	return Aggregate(src.Snapshot(courseID), courseID, queueID, profileID)
}

// DemoTAProfileID staffs every demo queue.
const DemoTAProfileID = "demo-ta"

// DemoSnapshot fabricates a populated queue so staff can preview a demo queue.
// Demo rows use negative ids so they never collide with stored rows.
func DemoSnapshot(queue models.HelpQueue, now time.Time) tablecache.Snapshot {
	samples := []struct {
		text   string
		status models.HelpRequestStatus
		age    time.Duration
	}{
		{"My recursion never terminates on the empty list case", models.HelpRequestOpen, 25 * time.Minute},
		{"Gradle cannot find the JUnit dependency", models.HelpRequestInProgress, 18 * time.Minute},
		{"Is the invariant on the BST supposed to allow duplicates?", models.HelpRequestOpen, 9 * time.Minute},
		{"Autograder says my hashCode is inconsistent with equals", models.HelpRequestResolved, 2 * time.Hour},
		{"How do I read the test output diff?", models.HelpRequestClosed, 3 * time.Hour},
	}

	snap := tablecache.Snapshot{Queues: []models.HelpQueue{queue}}
	for i, s := range samples {
		id := -int64(i + 1)
		author := fmt.Sprintf("demo-student-%d", i+1)
		req := models.HelpRequest{
			ID:          id,
			ClassID:     queue.ClassID,
			HelpQueueID: queue.ID,
			Request:     s.text,
			Status:      s.status,
			CreatedBy:   &author,
			CreatedAt:   now.Add(-s.age),
			UpdatedAt:   now.Add(-s.age),
		}
		if s.status.Terminal() {
			resolved := now.Add(-s.age + 20*time.Minute)
			req.ResolvedAt = &resolved
		}
		snap.Requests = append(snap.Requests, req)
		snap.Students = append(snap.Students, models.HelpRequestStudent{
			ID:            id,
			HelpRequestID: id,
			ProfileID:     author,
			ClassID:       queue.ClassID,
			CreatedAt:     req.CreatedAt,
		})
	}
	snap.Assignments = append(snap.Assignments, models.HelpQueueAssignment{
		ID:          -1,
		ClassID:     queue.ClassID,
		HelpQueueID: queue.ID,
		TAProfileID: DemoTAProfileID,
		IsActive:    true,
		StartedAt:   now.Add(-30 * time.Minute),
	})
	return snap
}
