// Package gate implements the sluice integration gate.
//
// The gate is the heart of sluice - it promotes validated operations
// to "integrated" once their dependency, if any, is itself integrated.
// It is the ONLY component that sets when_integrated or clears
// validation_stage.
//
// ARCHITECTURE:
//
// Per-type conditional promotion:
// Each op type has a dependency rule (see RuleSet). TryIntegrate
// evaluates the rule's predicate and performs the two-field state
// transition as one conditional UPDATE in one transaction - there is
// no separate read-then-write step anywhere in the promotion path.
//
// Fixed-point iteration:
// Integrating op A may satisfy the dependency of op B. IntegrateAll
// re-runs full passes over the rule set, in declaration order, until a
// pass promotes nothing. When it returns an empty report there exists
// no eligible-but-unpromoted op for the current store contents.
//
// Triggering:
// The gate itself never polls. The Scheduler wraps IntegrateAll behind
// a coalescing poke channel plus an optional periodic tick, and pokes
// itself after any pass that promoted rows (new integrations may have
// unblocked dependents discovered only by another full run).
//
// ERROR HANDLING: Storage failures abort the current transaction and
// propagate to the caller unchanged in meaning; the store is left
// untouched and the invocation is safe to retry. The Scheduler logs
// and continues - the next trigger is the retry.
package gate
