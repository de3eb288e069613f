package client

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/singlefetch/singlefetch/batch"
)

// SnapshotFunc runs batches against one consistent view of the database.
type SnapshotFunc func(f *batch.Fetch) error

// Snapshot runs fn inside a read-only transaction, so several batches see
// the same database state. The transaction rolls back on error or panic and
// commits otherwise; committing a read-only transaction releases its
// snapshot without writing anything.
func (c *Client) Snapshot(ctx context.Context, fn SnapshotFunc) error {
	return c.SnapshotWithIsolation(ctx, sql.LevelDefault, fn)
}

// SnapshotWithIsolation is Snapshot at a caller-chosen isolation level.
// Repeatable read or stronger is what actually freezes the view between
// batches; the default level only guarantees consistency within each
// batch's single statement.
func (c *Client) SnapshotWithIsolation(ctx context.Context, level sql.IsolationLevel, fn SnapshotFunc) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{Isolation: level, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to begin snapshot: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(batch.NewFetch(tx, batch.WithDialect(c.dialect))); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("snapshot error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to end snapshot: %w", err)
	}
	return nil
}
