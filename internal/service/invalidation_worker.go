package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/pawtograder/office-hours/internal/models"
	"github.com/pawtograder/office-hours/pkg/jobs"
)

const (
	invalidationSettle    = 5 * time.Second
	invalidationRetention = time.Hour
	invalidationBatch     = 500

	// RevalidateSecretHeader authenticates calls to the revalidation endpoint.
	RevalidateSecretHeader = "X-Revalidate-Secret"
)

type invalidationQueue interface {
	ListPending(ctx context.Context, cutoff time.Time, limit int) ([]models.CacheInvalidation, error)
	MarkProcessed(ctx context.Context, ids []int64, at time.Time) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type tagInvalidator interface {
	InvalidateTag(ctx context.Context, tag string) (int, error)
}

// InvalidationWorkerConfig configures the worker.
type InvalidationWorkerConfig struct {
	RevalidateURL    string
	RevalidateSecret string
	PollInterval     time.Duration
	Workers          int
	Retries          int
	RequestTimeout   time.Duration
	HTTPClient       *http.Client
	Metrics          *MetricsService
	Logger           *zap.Logger
}

// InvalidationWorker drains the invalidation queue: it revalidates each
// pending tag once, purges matching cache keys and garbage collects old rows.
type InvalidationWorker struct {
	repo   invalidationQueue
	cache  tagInvalidator
	cfg    InvalidationWorkerConfig
	client *http.Client
	queue  *jobs.Queue
	logger *zap.Logger
	now    func() time.Time
}

// NewInvalidationWorker constructs the worker. cache may be nil when Redis is disabled.
func NewInvalidationWorker(repo invalidationQueue, cache tagInvalidator, cfg InvalidationWorkerConfig) *InvalidationWorker {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}
	w := &InvalidationWorker{repo: repo, cache: cache, cfg: cfg, client: client, logger: cfg.Logger, now: time.Now}
	w.queue = jobs.NewQueue("revalidate", w.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		RetryDelay: 500 * time.Millisecond,
		Logger:     cfg.Logger,
	})
	return w
}

// Run polls until ctx is cancelled.
func (w *InvalidationWorker) Run(ctx context.Context) error {
	w.queue.Start(ctx)
	defer w.queue.Stop()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if _, err := w.Poll(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("invalidation poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll processes one batch and returns the number of tags revalidated.
// Rows whose tag failed stay pending for the next poll.
func (w *InvalidationWorker) Poll(ctx context.Context) (int, error) {
	now := w.now().UTC()
	pending, err := w.repo.ListPending(ctx, now.Add(-invalidationSettle), invalidationBatch)
	if err != nil {
		return 0, err
	}

	byTag := make(map[string][]int64)
	for _, row := range pending {
		byTag[row.Tag] = append(byTag[row.Tag], row.ID)
	}
	tags := make([]string, 0, len(byTag))
	for tag := range byTag {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	type outcome struct {
		tag  string
		done chan error
	}
	outcomes := make([]outcome, 0, len(tags))
	for _, tag := range tags {
		done := jobs.NewDone()
		if err := w.queue.Enqueue(jobs.Job{ID: tag, Type: "revalidate", Payload: tag, Done: done}); err != nil {
			return 0, err
		}
		outcomes = append(outcomes, outcome{tag: tag, done: done})
	}

	var processed []int64
	revalidated := 0
	for _, o := range outcomes {
		if err := jobs.Await(ctx, o.done); err != nil {
			w.cfg.Metrics.RecordInvalidation(false)
			w.logger.Warn("revalidation failed", zap.String("tag", o.tag), zap.Error(err))
			continue
		}
		w.cfg.Metrics.RecordInvalidation(true)
		processed = append(processed, byTag[o.tag]...)
		revalidated++
	}

	if err := w.repo.MarkProcessed(ctx, processed, now); err != nil {
		return revalidated, err
	}
	removed, err := w.repo.DeleteOlderThan(ctx, now.Add(-invalidationRetention))
	if err != nil {
		return revalidated, err
	}
	if revalidated > 0 || removed > 0 {
		w.logger.Debug("invalidation batch done", zap.Int("tags", revalidated), zap.Int64("removed", removed))
	}
	return revalidated, nil
}

func (w *InvalidationWorker) handle(ctx context.Context, job jobs.Job) error {
	tag, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected payload %T", job.Payload)
	}
	if err := w.revalidate(ctx, tag); err != nil {
		return err
	}
	if w.cache != nil {
		if _, err := w.cache.InvalidateTag(ctx, tag); err != nil {
			return err
		}
	}
	return nil
}

func (w *InvalidationWorker) revalidate(ctx context.Context, tag string) error {
	if w.cfg.RevalidateURL == "" {
		return nil
	}
	body, err := json.Marshal(map[string]string{"tag": tag})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.RevalidateURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RevalidateSecretHeader, w.cfg.RevalidateSecret)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("revalidate %s: %w", tag, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("revalidate %s: unexpected status %d", tag, resp.StatusCode)
	}
	return nil
}
