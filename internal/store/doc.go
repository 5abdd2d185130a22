// Package store provides the SQLite-backed storage collaborator for
// marketplace synchronization.
//
// The store holds normalized marketplace state per tenant:
//   - Roots: orders, products, claims
//   - Shared sub-entities: customers, addresses, brands, categories
//   - Owned children: order items, order status events, shipment
//     packages, claim items
//   - Bookkeeping: plan_limits (tenant ceilings) and sync_runs
//     (finalized run reports)
//
// # Unit of Isolation
//
// All writes for one root record go through WithTx: one transaction holds
// the root, its shared sub-entities and its owned children, and either
// commits all of them or none. Tx methods never open their own transaction.
//
// # Natural Keys
//
//   - UNIQUE(tenant_id, external_id) on every root and shared entity
//   - UNIQUE(order_id, status, occurred_at) on status events
//   - Writes use INSERT ... ON CONFLICT DO UPDATE ... RETURNING id, so
//     two concurrent runs upserting the same key serialize in SQLite
//     rather than in application code
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity and cascades
//
// The pool is limited to one connection. A caller holding a Tx must do all
// of its reads through that Tx; a Store read issued while a Tx is open
// would wait for the connection forever.
package store
