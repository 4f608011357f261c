package store

import (
	"context"
	"fmt"
	"time"
)

// retentionBatchSize bounds how long one delete transaction holds the write
// lock; the loop yields between batches so ingestion is never starved.
const retentionBatchSize = 500

// DeleteOlderThan removes measurements older than maxAge and returns the
// number of rows deleted. Deletion proceeds in batches with a context check
// between them, so it is interruptible and safe to re-run: deleting rows a
// previous run already removed is a no-op.
func (s *Store) DeleteOlderThan(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	var total int64

	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		res, err := s.db.ExecContext(ctx, `
			DELETE FROM measurements
			WHERE id IN (
				SELECT id FROM measurements WHERE ts < ? LIMIT ?
			)`, cutoff, retentionBatchSize)
		if err != nil {
			return total, fmt.Errorf("failed to delete old measurements: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to read rows affected: %w", err)
		}
		total += n
		if n < retentionBatchSize {
			return total, nil
		}
	}
}
