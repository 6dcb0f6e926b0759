package models

import "time"

// HelpRequestStatus is the lifecycle state of a help request.
type HelpRequestStatus string

const (
	HelpRequestOpen       HelpRequestStatus = "open"
	HelpRequestInProgress HelpRequestStatus = "in_progress"
	HelpRequestResolved   HelpRequestStatus = "resolved"
	HelpRequestClosed     HelpRequestStatus = "closed"
)

// Active reports whether the request still waits in, or is being served from, its queue.
func (s HelpRequestStatus) Active() bool {
	return s == HelpRequestOpen || s == HelpRequestInProgress
}

// Terminal reports whether no further transitions are allowed.
func (s HelpRequestStatus) Terminal() bool {
	return s == HelpRequestResolved || s == HelpRequestClosed
}

// CanTransition reports whether moving from s to next is legal.
func (s HelpRequestStatus) CanTransition(next HelpRequestStatus) bool {
	switch s {
	case HelpRequestOpen:
		return next == HelpRequestInProgress || next == HelpRequestResolved || next == HelpRequestClosed
	case HelpRequestInProgress:
		return next == HelpRequestResolved || next == HelpRequestClosed
	default:
		return false
	}
}

// HelpRequest is a student's question in a queue.
type HelpRequest struct {
	ID          int64             `db:"id" json:"id"`
	ClassID     int64             `db:"class_id" json:"class_id"`
	HelpQueueID int64             `db:"help_queue_id" json:"help_queue_id"`
	Request     string            `db:"request" json:"request"`
	Status      HelpRequestStatus `db:"status" json:"status"`
	CreatedBy   *string           `db:"created_by" json:"created_by,omitempty"`
	Assignee    *string           `db:"assignee" json:"assignee,omitempty"`
	IsPrivate   bool              `db:"is_private" json:"is_private"`
	IsVideoLive bool              `db:"is_video_live" json:"is_video_live"`
	ResolvedAt  *time.Time        `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy  *string           `db:"resolved_by" json:"resolved_by,omitempty"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`
}

// RowID implements tablecache keying.
func (r HelpRequest) RowID() int64 { return r.ID }

// HelpRequestStudent associates a student profile with a help request.
type HelpRequestStudent struct {
	ID            int64     `db:"id" json:"id"`
	HelpRequestID int64     `db:"help_request_id" json:"help_request_id"`
	ProfileID     string    `db:"profile_id" json:"profile_id"`
	ClassID       int64     `db:"class_id" json:"class_id"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// RowID implements tablecache keying.
func (s HelpRequestStudent) RowID() int64 { return s.ID }
