package engine

import (
	"context"
	"fmt"

	"github.com/roach88/marketsync/internal/canon"
	"github.com/roach88/marketsync/internal/store"
)

// DefaultCacheCapacity bounds the resolver cache of one run.
const DefaultCacheCapacity = 100_000

type cacheKey struct {
	kind store.Shared
	key  canon.ID
}

// subEntityCache maps shared natural keys to local ids for one run. Once
// full it stops accepting entries; misses then go to storage every time,
// which is slower but still correct.
type subEntityCache struct {
	capacity int
	entries  map[cacheKey]int64
}

func newSubEntityCache(capacity int) *subEntityCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &subEntityCache{capacity: capacity, entries: make(map[cacheKey]int64)}
}

func (c *subEntityCache) get(k cacheKey) (int64, bool) {
	id, ok := c.entries[k]
	return id, ok
}

func (c *subEntityCache) put(k cacheKey, id int64) bool {
	if _, ok := c.entries[k]; !ok && len(c.entries) >= c.capacity {
		return false
	}
	c.entries[k] = id
	return true
}

func (c *subEntityCache) len() int {
	return len(c.entries)
}

// resolver finds or creates shared sub-entities (customers, addresses,
// brands, categories) inside a record's transaction.
//
// Ids created inside a transaction are staged and reach the cache only
// when commit is called after the transaction commits. discard drops them,
// so the cache never holds an id whose row was rolled back.
//
// A resolver belongs to exactly one run and is not safe for concurrent use.
type resolver struct {
	cache  *subEntityCache
	staged map[cacheKey]int64

	hits, misses int
}

func newResolver(capacity int) *resolver {
	return &resolver{
		cache:  newSubEntityCache(capacity),
		staged: make(map[cacheKey]int64),
	}
}

// preseed loads every existing row of the given kinds with one query per
// kind. Must be called outside any transaction.
func (r *resolver) preseed(ctx context.Context, s *store.Store, tenant string, kinds ...store.Shared) error {
	for _, kind := range kinds {
		rows, err := s.LoadShared(ctx, tenant, kind)
		if err != nil {
			return fmt.Errorf("preseed %s: %w", kind, err)
		}
		for key, id := range rows {
			if !r.cache.put(cacheKey{kind, key}, id) {
				return nil
			}
		}
	}
	return nil
}

func (r *resolver) lookup(k cacheKey) (int64, bool) {
	if id, ok := r.staged[k]; ok {
		return id, true
	}
	return r.cache.get(k)
}

// resolve returns the local id for key. On a hit, update (if non-nil)
// refreshes the row's mutable fields; on a miss, create upserts the row.
// A zero key resolves to 0 (no reference).
func (r *resolver) resolve(
	kind store.Shared,
	key canon.ID,
	create func() (int64, error),
	update func(id int64) error,
) (int64, error) {
	if key.IsZero() {
		return 0, nil
	}
	k := cacheKey{kind, key}
	if id, ok := r.lookup(k); ok {
		r.hits++
		if update != nil {
			if err := update(id); err != nil {
				return 0, err
			}
		}
		return id, nil
	}

	r.misses++
	id, err := create()
	if err != nil {
		return 0, err
	}
	r.staged[k] = id
	return id, nil
}

func (r *resolver) customer(ctx context.Context, tx *store.Tx, c canon.Customer) (int64, error) {
	return r.resolve(store.SharedCustomer, c.ExternalID,
		func() (int64, error) { return tx.UpsertCustomer(ctx, c) },
		func(id int64) error { return tx.UpdateCustomer(ctx, id, c) },
	)
}

func (r *resolver) address(ctx context.Context, tx *store.Tx, a canon.Address) (int64, error) {
	return r.resolve(store.SharedAddress, a.ExternalID,
		func() (int64, error) { return tx.UpsertAddress(ctx, a) },
		func(id int64) error { return tx.UpdateAddress(ctx, id, a) },
	)
}

func (r *resolver) brand(ctx context.Context, tx *store.Tx, b canon.Brand) (int64, error) {
	return r.resolve(store.SharedBrand, b.ExternalID,
		func() (int64, error) { return tx.EnsureBrand(ctx, b) },
		nil,
	)
}

func (r *resolver) category(ctx context.Context, tx *store.Tx, c canon.Category) (int64, error) {
	return r.resolve(store.SharedCategory, c.ExternalID,
		func() (int64, error) { return tx.EnsureCategory(ctx, c) },
		nil,
	)
}

// commit publishes staged ids to the cache.
func (r *resolver) commit() {
	for k, id := range r.staged {
		r.cache.put(k, id)
	}
	clear(r.staged)
}

// discard drops staged ids after a rollback.
func (r *resolver) discard() {
	clear(r.staged)
}

// sharedKindsFor lists the shared sub-entity kinds roots of kind reference.
func sharedKindsFor(kind canon.Kind) []store.Shared {
	switch kind {
	case canon.KindOrder:
		return []store.Shared{store.SharedCustomer, store.SharedAddress}
	case canon.KindProduct:
		return []store.Shared{store.SharedBrand, store.SharedCategory}
	default:
		return nil
	}
}
