package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawtograder/office-hours/internal/models"
)

type invalidationRepoStub struct {
	mu           sync.Mutex
	pending      []models.CacheInvalidation
	listCutoff   time.Time
	processed    []int64
	deleteCutoff time.Time
	enqueued     []models.CacheInvalidation
}

func (s *invalidationRepoStub) Enqueue(_ context.Context, tag string, bucket, createdAt time.Time) error {
	s.enqueued = append(s.enqueued, models.CacheInvalidation{Tag: tag, Bucket: bucket, CreatedAt: createdAt})
	return nil
}

func (s *invalidationRepoStub) ListPending(_ context.Context, cutoff time.Time, _ int) ([]models.CacheInvalidation, error) {
	s.listCutoff = cutoff
	return s.pending, nil
}

func (s *invalidationRepoStub) MarkProcessed(_ context.Context, ids []int64, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed = append(s.processed, ids...)
	return nil
}

func (s *invalidationRepoStub) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.deleteCutoff = cutoff
	return 3, nil
}

type tagInvalidatorStub struct {
	mu   sync.Mutex
	tags []string
}

func (s *tagInvalidatorStub) InvalidateTag(_ context.Context, tag string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags = append(s.tags, tag)
	return 1, nil
}

func TestInvalidationWorkerPollRevalidatesEachTagOnce(t *testing.T) {
	var mu sync.Mutex
	calls := map[string]int{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "s3cret", r.Header.Get(RevalidateSecretHeader))
		var body struct {
			Tag string `json:"tag"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		calls[body.Tag]++
		mu.Unlock()
		if body.Tag == "calendar:9" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := &invalidationRepoStub{pending: []models.CacheInvalidation{
		{ID: 1, Tag: "queue:1:2"},
		{ID: 2, Tag: "queue:1:2"},
		{ID: 3, Tag: "calendar:9"},
		{ID: 4, Tag: "queue:1:3"},
	}}
	cache := &tagInvalidatorStub{}
	worker := NewInvalidationWorker(repo, cache, InvalidationWorkerConfig{
		RevalidateURL:    server.URL,
		RevalidateSecret: "s3cret",
		Workers:          2,
		Retries:          1,
	})
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	worker.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.queue.Start(ctx)
	defer worker.queue.Stop()

	n, err := worker.Poll(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, now.Add(-5*time.Second), repo.listCutoff)
	assert.Equal(t, now.Add(-time.Hour), repo.deleteCutoff)
	assert.ElementsMatch(t, []int64{1, 2, 4}, repo.processed)
	assert.ElementsMatch(t, []string{"queue:1:2", "queue:1:3"}, cache.tags)
	assert.Equal(t, 1, calls["queue:1:2"])
	assert.Equal(t, 1, calls["queue:1:3"])
	assert.Equal(t, 2, calls["calendar:9"])
}

func TestInvalidationWorkerWithoutEndpointOnlyPurgesCache(t *testing.T) {
	repo := &invalidationRepoStub{pending: []models.CacheInvalidation{{ID: 7, Tag: "queue:4:5"}}}
	cache := &tagInvalidatorStub{}
	worker := NewInvalidationWorker(repo, cache, InvalidationWorkerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.queue.Start(ctx)
	defer worker.queue.Stop()

	n, err := worker.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{7}, repo.processed)
	assert.Equal(t, []string{"queue:4:5"}, cache.tags)
}

func TestInvalidationServiceEnqueueDebounces(t *testing.T) {
	repo := &invalidationRepoStub{}
	svc := NewInvalidationService(repo, nil)
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 7, 400, time.UTC) }

	require.NoError(t, svc.Enqueue(context.Background(), QueueTag(1, 2)))

	require.Len(t, repo.enqueued, 1)
	assert.Equal(t, "queue:1:2", repo.enqueued[0].Tag)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 5, 0, time.UTC), repo.enqueued[0].Bucket)
}
