package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/marketsync/internal/canon"
)

// SaveRun persists a finalized run report. A run id can be saved once;
// saving it again is an error.
func (s *Store) SaveRun(ctx context.Context, run *canon.SyncRun) error {
	if !run.Finished() {
		return fmt.Errorf("save run %s: run is not finalized", run.ID)
	}
	errsJSON, err := marshalErrors(run.Errors)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sync_runs
		(id, tenant_id, kind, started_at, finished_at, status, abort_reason,
		 pages, created, updated, deleted, failed, reconcile_skipped, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.Tenant, string(run.Kind), run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
		string(run.Status), run.AbortReason,
		run.Pages, run.Created, run.Updated, run.Deleted, run.Failed, run.ReconcileSkipped, errsJSON,
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

// ListRuns returns the tenant's runs, newest first. An empty kind lists
// every kind; limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, tenant string, kind canon.Kind, limit int) ([]canon.SyncRun, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, kind, started_at, finished_at, status, abort_reason,
		       pages, created, updated, deleted, failed, reconcile_skipped, errors
		FROM sync_runs
		WHERE tenant_id = ? AND (? = '' OR kind = ?)
		ORDER BY started_at DESC, id COLLATE BINARY DESC
		LIMIT ?
	`, tenant, string(kind), string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []canon.SyncRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: iterate: %w", err)
	}
	return runs, nil
}

// GetRun returns one run report by id.
func (s *Store) GetRun(ctx context.Context, id string) (*canon.SyncRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, kind, started_at, finished_at, status, abort_reason,
		       pages, created, updated, deleted, failed, reconcile_skipped, errors
		FROM sync_runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (canon.SyncRun, error) {
	var (
		run               canon.SyncRun
		kind, status      string
		started, finished int64
		errsJSON          string
	)
	err := row.Scan(
		&run.ID, &run.Tenant, &kind, &started, &finished, &status, &run.AbortReason,
		&run.Pages, &run.Created, &run.Updated, &run.Deleted, &run.Failed, &run.ReconcileSkipped, &errsJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return canon.SyncRun{}, err
		}
		return canon.SyncRun{}, fmt.Errorf("scan run: %w", err)
	}
	run.Kind = canon.Kind(kind)
	run.Status = canon.RunStatus(status)
	run.StartedAt = time.UnixMilli(started).UTC()
	run.FinishedAt = time.UnixMilli(finished).UTC()
	if run.Errors, err = unmarshalErrors(errsJSON); err != nil {
		return canon.SyncRun{}, err
	}
	return run, nil
}
