// Package engine implements marketplace synchronization: it walks a paged
// marketplace listing, maps each record, and persists it transactionally.
//
// ARCHITECTURE:
//
// One Run per (tenant, entity kind):
// A run fetches pages in order starting at page 0 and processes their
// records strictly sequentially. Nothing inside a run is parallel; the
// resolver cache and the seen-key set are owned by the run and die with it.
//
// Record Processing Flow:
//  1. mapper.Map turns the raw record into a canonical entity
//  2. The record's natural key joins the run's seen set
//  3. One store transaction resolves shared sub-entities, checks whether
//     the root exists, consults the limit gate on the create path only,
//     upserts the root and applies the child policy
//  4. The outcome (created, updated, or a classified failure) is added to
//     the run report
//
// After the last page, full-snapshot kinds (products) delete every local
// root whose key was not seen. Reconciliation only runs when the run
// consumed the whole listing.
//
// Many runs may execute concurrently against one store. Two runs writing
// the same natural key serialize in SQLite; the engine holds no locks.
//
// Failure Policy:
//   - Mapping, limit and transaction failures are per record. They land in
//     the report and the run goes on, except that a limit failure under
//     limits.AbortOnLimit stops the run.
//   - A failed or malformed first page fails the run. A failed or
//     malformed later page truncates it: committed records stay, the
//     snapshot delete is skipped.
//   - Cancellation is honoured between records and between pages. A
//     transaction already in flight runs to commit or rollback.
//
// Webhook-style single records go through Engine.UpsertRecord (or a
// Pusher), which shares the transactional core with Run.
package engine
