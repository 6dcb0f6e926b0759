package dto

import "time"

// CalendarFeedURLResponse carries a signed subscription URL.
type CalendarFeedURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateCalendarEventRequest is the body of a new class event.
type CreateCalendarEventRequest struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=4000"`
	Location    string    `json:"location" validate:"max=200"`
	AllDay      bool      `json:"all_day"`
	StartTime   time.Time `json:"start_time" validate:"required"`
	EndTime     time.Time `json:"end_time" validate:"required"`
	TimeZone    string    `json:"time_zone" validate:"omitempty,timezone"`
}
