package models

import "time"

// CalendarEvent is a class event exported to ICS.
type CalendarEvent struct {
	ID          int64     `db:"id" json:"id"`
	ClassID     int64     `db:"class_id" json:"class_id"`
	UID         string    `db:"uid" json:"uid"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	Location    string    `db:"location" json:"location"`
	AllDay      bool      `db:"all_day" json:"all_day"`
	StartTime   time.Time `db:"start_time" json:"start_time"`
	EndTime     time.Time `db:"end_time" json:"end_time"`
	TimeZone    string    `db:"time_zone" json:"time_zone"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// CalendarFilter narrows calendar listings.
type CalendarFilter struct {
	ClassID int64
	From    *time.Time
	To      *time.Time
}
