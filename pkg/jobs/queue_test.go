package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueReportsSuccess(t *testing.T) {
	var calls int32
	q := NewQueue("revalidate", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "calendar:42", job.Payload)
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	done := NewDone()
	require.NoError(t, q.Enqueue(Job{ID: "1", Type: "revalidate", Payload: "calendar:42", Done: done}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, Await(ctx, done))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestQueueRetriesThenSucceeds(t *testing.T) {
	var calls int32
	q := NewQueue("revalidate", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("upstream 502")
		}
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	done := NewDone()
	require.NoError(t, q.Enqueue(Job{ID: "1", Done: done}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, Await(ctx, done))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestQueueReportsExhaustedRetries(t *testing.T) {
	q := NewQueue("revalidate", func(ctx context.Context, job Job) error {
		return errors.New("upstream 500")
	}, QueueConfig{Workers: 1, MaxRetries: 1, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	done := NewDone()
	require.NoError(t, q.Enqueue(Job{ID: "1", Done: done}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := Await(ctx, done)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream 500")
}

func TestEnqueueBeforeStartFails(t *testing.T) {
	q := NewQueue("idle", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	require.Error(t, q.Enqueue(Job{ID: "1"}))
}
