package engine

import (
	"context"
	"fmt"

	"github.com/roach88/marketsync/internal/canon"
	"github.com/roach88/marketsync/internal/store"
)

// Reconcile deletes every local root of kind whose natural key is not in
// seen, for one tenant, in one transaction. Returns the number deleted.
//
// Only full-snapshot kinds may be reconciled; orders and claims return
// ErrNotSnapshot. Callers must only pass a seen set that covers a complete
// listing: every key that appeared, including keys of records that failed
// to map or persist.
func (e *Engine) Reconcile(ctx context.Context, tenant string, kind canon.Kind, seen canon.IDSet) (int, error) {
	if !kind.FullSnapshot() {
		return 0, fmt.Errorf("reconcile %s: %w", kind, ErrNotSnapshot)
	}

	txCtx := context.WithoutCancel(ctx)

	var deleted int
	err := e.store.WithTx(txCtx, tenant, func(tx *store.Tx) error {
		keys, err := tx.RootKeys(txCtx, kind)
		if err != nil {
			return err
		}
		stale := seen.Complement(keys)
		if len(stale) == 0 {
			return nil
		}
		deleted, err = tx.DeleteRoots(txCtx, kind, stale)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("reconcile %s: %w", kind, err)
	}
	e.metrics.deleted(kind, deleted)
	return deleted, nil
}
