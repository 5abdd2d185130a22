package store

import (
	"context"
	"fmt"

	"github.com/roach88/marketsync/internal/limits"
)

// LoadPlan returns the tenant's configured ceilings. Resources without a
// row are unlimited.
func (s *Store) LoadPlan(ctx context.Context, tenant string) (limits.Plan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT resource, ceiling FROM plan_limits WHERE tenant_id = ?
	`, tenant)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	defer rows.Close()

	plan := limits.Plan{}
	for rows.Next() {
		var (
			res     string
			ceiling int
		)
		if err := rows.Scan(&res, &ceiling); err != nil {
			return nil, fmt.Errorf("load plan: scan: %w", err)
		}
		plan[limits.Resource(res)] = ceiling
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load plan: iterate: %w", err)
	}
	return plan, nil
}

// SetCeiling sets the tenant's ceiling for res.
func (s *Store) SetCeiling(ctx context.Context, tenant string, res limits.Resource, ceiling int) error {
	if ceiling < 0 {
		return fmt.Errorf("set ceiling: %d is negative", ceiling)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plan_limits (tenant_id, resource, ceiling)
		VALUES (?, ?, ?)
		ON CONFLICT(tenant_id, resource) DO UPDATE SET ceiling = excluded.ceiling
	`, tenant, string(res), ceiling)
	if err != nil {
		return fmt.Errorf("set ceiling: %w", err)
	}
	return nil
}

// ClearCeiling removes the tenant's ceiling for res, making it unlimited.
func (s *Store) ClearCeiling(ctx context.Context, tenant string, res limits.Resource) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM plan_limits WHERE tenant_id = ? AND resource = ?
	`, tenant, string(res))
	if err != nil {
		return fmt.Errorf("clear ceiling: %w", err)
	}
	return nil
}
