package executor

import (
	"context"
	"database/sql"
	"fmt"
)

// RunCommitted runs fn in a transaction and commits it when fn succeeds.
// This is the only path in procprobe that commits; it exists to persist
// fixtures that later rolled-back calls reference. Any error rolls back.
func RunCommitted(ctx context.Context, db *sql.DB, fn func(ctx context.Context, tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}
