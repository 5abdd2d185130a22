// Package limits implements the tenant resource-limit gate.
//
// A Checker decides whether one more entity of a resource may be created
// given the tenant's current count. The gate is consulted on the creation
// path only; updates to existing entities never pass through it.
package limits

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/marketsync/internal/canon"
)

// Resource names a limited entity kind.
type Resource string

const (
	ResourceOrder   Resource = "order"
	ResourceProduct Resource = "product"
	ResourceClaim   Resource = "claim"
)

// ResourceFor returns the resource counted for root entities of kind.
func ResourceFor(kind canon.Kind) Resource {
	return Resource(kind)
}

// ParseResource validates a resource name.
func ParseResource(s string) (Resource, error) {
	switch r := Resource(strings.ToLower(strings.TrimSpace(s))); r {
	case ResourceOrder, ResourceProduct, ResourceClaim:
		return r, nil
	default:
		return "", fmt.Errorf("unknown resource %q (want order, product or claim)", s)
	}
}

// Checker is the limit collaborator.
type Checker interface {
	// CheckLimit returns nil when one more entity may be created, or an
	// *ExceededError when current has reached the tenant's ceiling.
	CheckLimit(ctx context.Context, tenant string, res Resource, current int) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, tenant string, res Resource, current int) error

// CheckLimit calls f.
func (f CheckerFunc) CheckLimit(ctx context.Context, tenant string, res Resource, current int) error {
	return f(ctx, tenant, res, current)
}

// Plan holds one tenant's ceilings. A resource without an entry is
// unlimited; a ceiling of 0 forbids creation entirely.
type Plan map[Resource]int

// Ceiling returns the ceiling for res and whether one is set.
func (p Plan) Ceiling(res Resource) (int, bool) {
	c, ok := p[res]
	return c, ok
}

// CheckLimit implements Checker.
func (p Plan) CheckLimit(_ context.Context, tenant string, res Resource, current int) error {
	ceiling, ok := p[res]
	if !ok {
		return nil
	}
	if current >= ceiling {
		return &ExceededError{Tenant: tenant, Resource: res, Current: current, Ceiling: ceiling}
	}
	return nil
}

// String renders the plan as "product=100 order=..." in resource order.
func (p Plan) String() string {
	if len(p) == 0 {
		return "unlimited"
	}
	keys := make([]string, 0, len(p))
	for r := range p {
		keys = append(keys, string(r))
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, p[Resource(k)])
	}
	return strings.Join(parts, " ")
}

// Unlimited never rejects.
var Unlimited Checker = Plan(nil)

// ExceededError is returned when creating one more entity would pass the
// tenant's ceiling.
type ExceededError struct {
	Tenant   string
	Resource Resource
	Current  int
	Ceiling  int
}

// Error implements the error interface.
func (e *ExceededError) Error() string {
	return fmt.Sprintf("tenant %s reached %s limit: %d of %d", e.Tenant, e.Resource, e.Current, e.Ceiling)
}

// IsExceeded returns true if err is an ExceededError.
// Uses errors.As to handle wrapped errors.
func IsExceeded(err error) bool {
	var ee *ExceededError
	return errors.As(err, &ee)
}
