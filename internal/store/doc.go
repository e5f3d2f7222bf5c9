// Package store provides SQLite-backed durable storage for sluice
// operation records.
//
// The store owns the ops table and every mutation of its lifecycle
// fields:
//   - WriteOp: idempotent insert of newly arrived ops
//   - SetValidation: status/stage updates applied on behalf of the
//     external validation engine
//   - PromoteEligible: the integration gate's conditional promotion,
//     the ONLY writer of when_integrated
//
// # Critical patterns
//
// Single statement promotion:
//   - The eligibility predicate and the two-field transition
//     (when_integrated set, validation_stage cleared) execute as ONE
//     conditional UPDATE inside one transaction - never read-then-write.
//
// Logical arrival order:
//   - Scan ordering uses seq INTEGER (arrival clock), never timestamps.
//   - All list queries include: ORDER BY seq ASC, hash ASC COLLATE BINARY
//     for deterministic results.
//
// Idempotent writes:
//   - ops.hash is the content-addressed primary key; duplicate delivery
//     resolves to ON CONFLICT(hash) DO NOTHING.
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//   - single connection: SQLite supports one writer; overlapping gate
//     invocations serialize instead of failing with SQLITE_BUSY
package store
