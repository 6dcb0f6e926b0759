package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pawtograder/office-hours/internal/models"
)

// RealtimeStats reports live broker size.
type RealtimeStats interface {
	Stats() (topics, subscriptions int)
}

// MetricsService encapsulates Prometheus instrumentation. It also observes the
// realtime broker and chat channels.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec

	subscriptions  *prometheus.CounterVec
	unsubscribes   *prometheus.CounterVec
	droppedEvents  *prometheus.CounterVec
	broadcasts     *prometheus.CounterVec
	chatMessages   *prometheus.CounterVec
	invalidations  *prometheus.CounterVec
	tokensIssued   prometheus.Counter
	helpRequests   *prometheus.CounterVec
	realtimeSource atomic.Value

	statsOnce sync.Once

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	droppedCount         uint64
	chatCount            uint64
}

// NewMetricsService registers the collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_latency_seconds",
			Help:    "Latency for cache lookups",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_hit_ratio",
			Help: "Ratio of cache hits to total cache lookups",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),
		dbQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries",
			Buckets: prometheus.DefBuckets,
		}, []string{"query"}),
		subscriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_subscriptions_opened_total",
			Help: "Realtime subscriptions opened by topic kind",
		}, []string{"kind"}),
		unsubscribes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_subscriptions_closed_total",
			Help: "Realtime subscriptions closed by topic kind",
		}, []string{"kind"}),
		droppedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_dropped_events_total",
			Help: "Events dropped because a subscriber buffer was full",
		}, []string{"kind"}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_broadcasts_total",
			Help: "Broadcasts delivered by topic kind",
		}, []string{"kind"}),
		chatMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Chat messages posted by channel kind",
		}, []string{"kind"}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_invalidations_total",
			Help: "Cache tag revalidations by outcome",
		}, []string{"outcome"}),
		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcp_tokens_issued_total",
			Help: "MCP tokens issued",
		}),
		helpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "help_request_transitions_total",
			Help: "Help request lifecycle transitions by target status",
		}, []string{"status"}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		m.requestDuration, m.requestTotal, m.cacheLatency, m.cacheHitRatio, m.cacheHits, m.cacheMisses,
		m.dbQueryDuration, m.subscriptions, m.unsubscribes, m.droppedEvents, m.broadcasts,
		m.chatMessages, m.invalidations, m.tokensIssued, m.helpRequests, goroutines,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry { return m.registry }

// TrackRealtime exports live topic and subscription gauges from src.
func (m *MetricsService) TrackRealtime(src RealtimeStats) {
	if m == nil || src == nil {
		return
	}
	m.realtimeSource.Store(src)
	m.statsOnce.Do(func() {
		m.registry.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "realtime_topics",
				Help: "Live realtime topics",
			}, func() float64 {
				topics, _ := m.realtimeStats()
				return float64(topics)
			}),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "realtime_subscriptions",
				Help: "Live realtime subscriptions",
			}, func() float64 {
				_, subs := m.realtimeStats()
				return float64(subs)
			}),
		)
	})
}

func (m *MetricsService) realtimeStats() (int, int) {
	src, ok := m.realtimeSource.Load().(RealtimeStats)
	if !ok {
		return 0, 0
	}
	return src.Stats()
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records a cache hit or miss and updates the hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// SubscriptionOpened implements realtime.Observer.
func (m *MetricsService) SubscriptionOpened(kind string) {
	if m == nil {
		return
	}
	m.subscriptions.WithLabelValues(kind).Inc()
}

// SubscriptionClosed implements realtime.Observer.
func (m *MetricsService) SubscriptionClosed(kind string) {
	if m == nil {
		return
	}
	m.unsubscribes.WithLabelValues(kind).Inc()
}

// EventDropped implements realtime.Observer.
func (m *MetricsService) EventDropped(kind string) {
	if m == nil {
		return
	}
	m.droppedEvents.WithLabelValues(kind).Inc()
	atomic.AddUint64(&m.droppedCount, 1)
}

// Broadcasted implements realtime.Observer.
func (m *MetricsService) Broadcasted(kind string) {
	if m == nil {
		return
	}
	m.broadcasts.WithLabelValues(kind).Inc()
}

// MessagePosted implements chat.Observer.
func (m *MetricsService) MessagePosted(kind string) {
	if m == nil {
		return
	}
	m.chatMessages.WithLabelValues(kind).Inc()
	atomic.AddUint64(&m.chatCount, 1)
}

// RecordInvalidation counts a revalidation outcome.
func (m *MetricsService) RecordInvalidation(success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.invalidations.WithLabelValues(outcome).Inc()
}

// RecordTokenIssued counts an issued MCP token.
func (m *MetricsService) RecordTokenIssued() {
	if m == nil {
		return
	}
	m.tokensIssued.Inc()
}

// RecordTransition counts a help request reaching status.
func (m *MetricsService) RecordTransition(status models.HelpRequestStatus) {
	if m == nil {
		return
	}
	m.helpRequests.WithLabelValues(string(status)).Inc()
}

// Snapshot returns aggregated metrics for the JSON system endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}
	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}
	topics, subs := m.realtimeStats()

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		RealtimeTopics:           topics,
		RealtimeSubscriptions:    subs,
		RealtimeDropped:          atomic.LoadUint64(&m.droppedCount),
		ChatMessages:             atomic.LoadUint64(&m.chatCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
