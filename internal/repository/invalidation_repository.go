package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/pawtograder/office-hours/internal/models"
)

// InvalidationRepository persists the debounced cache invalidation queue.
type InvalidationRepository struct {
	db *sqlx.DB
}

// NewInvalidationRepository constructs the repository.
func NewInvalidationRepository(db *sqlx.DB) *InvalidationRepository {
	return &InvalidationRepository{db: db}
}

// Enqueue records tag for bucket. Repeats within the same bucket are ignored.
func (r *InvalidationRepository) Enqueue(ctx context.Context, tag string, bucket, createdAt time.Time) error {
	const query = `INSERT INTO cache_invalidation_queue (tag, bucket, created_at) VALUES ($1, $2, $3) ON CONFLICT (tag, bucket) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, tag, bucket, createdAt); err != nil {
		return fmt.Errorf("enqueue invalidation: %w", err)
	}
	return nil
}

// ListPending returns unprocessed entries created before cutoff.
func (r *InvalidationRepository) ListPending(ctx context.Context, cutoff time.Time, limit int) ([]models.CacheInvalidation, error) {
	if limit <= 0 {
		limit = 500
	}
	const query = `SELECT id, tag, bucket, created_at, processed_at FROM cache_invalidation_queue
WHERE processed_at IS NULL AND created_at < $1
ORDER BY created_at ASC, id ASC
LIMIT $2`
	var entries []models.CacheInvalidation
	if err := r.db.SelectContext(ctx, &entries, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list pending invalidations: %w", err)
	}
	return entries, nil
}

// MarkProcessed stamps ids as processed.
func (r *InvalidationRepository) MarkProcessed(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, `UPDATE cache_invalidation_queue SET processed_at = $1 WHERE id = ANY($2)`, at, pq.Array(ids)); err != nil {
		return fmt.Errorf("mark invalidations processed: %w", err)
	}
	return nil
}

// DeleteOlderThan removes entries created before cutoff and returns how many went.
func (r *InvalidationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cache_invalidation_queue WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old invalidations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete old invalidations rows: %w", err)
	}
	return n, nil
}
