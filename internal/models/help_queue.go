package models

import "time"

// QueueType describes how a queue delivers help.
type QueueType string

const (
	QueueTypeChat     QueueType = "chat"
	QueueTypeVideo    QueueType = "video"
	QueueTypeInPerson QueueType = "in_person"
)

// HelpQueue is a named queue within a class.
type HelpQueue struct {
	ID          int64     `db:"id" json:"id"`
	ClassID     int64     `db:"class_id" json:"class_id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	QueueType   QueueType `db:"queue_type" json:"queue_type"`
	IsDemo      bool      `db:"is_demo" json:"is_demo"`
	Available   bool      `db:"available" json:"available"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// RowID implements tablecache keying.
func (q HelpQueue) RowID() int64 { return q.ID }

// HelpQueueAssignment records a staff member's work session on a queue.
type HelpQueueAssignment struct {
	ID          int64      `db:"id" json:"id"`
	ClassID     int64      `db:"class_id" json:"class_id"`
	HelpQueueID int64      `db:"help_queue_id" json:"help_queue_id"`
	TAProfileID string     `db:"ta_profile_id" json:"ta_profile_id"`
	IsActive    bool       `db:"is_active" json:"is_active"`
	StartedAt   time.Time  `db:"started_at" json:"started_at"`
	EndedAt     *time.Time `db:"ended_at" json:"ended_at,omitempty"`
}

// RowID implements tablecache keying.
func (a HelpQueueAssignment) RowID() int64 { return a.ID }
