package models

import "time"

// SystemMetrics is a JSON snapshot of process level counters.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	RealtimeTopics           int       `json:"realtime_topics"`
	RealtimeSubscriptions    int       `json:"realtime_subscriptions"`
	RealtimeDropped          uint64    `json:"realtime_dropped_events"`
	ChatMessages             uint64    `json:"chat_messages"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
