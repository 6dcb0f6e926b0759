package models

import "time"

// CacheInvalidation is a debounced request to revalidate a cache tag.
type CacheInvalidation struct {
	ID          int64      `db:"id" json:"id"`
	Tag         string     `db:"tag" json:"tag"`
	Bucket      time.Time  `db:"bucket" json:"bucket"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	ProcessedAt *time.Time `db:"processed_at" json:"processed_at,omitempty"`
}
