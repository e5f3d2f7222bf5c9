// Package op defines the operation data model for the sluice
// integration engine.
//
// An operation ("op") is an immutable, content-addressed record of a
// distributed state change. Ops move through a validation pipeline
// (owned by an external validation engine) and are then promoted to
// "integrated" by the gate package once their dependency, if any, is
// itself integrated.
//
// # Lifecycle fields
//
//   - Hash: content-derived identity, assigned at creation, immutable
//   - ValidationStatus: outcome of external validation (valid/rejected/abandoned)
//   - ValidationStage: pipeline position; StageAwaitingIntegration means
//     "validated, not yet integrated"; nil once integrated
//   - WhenIntegrated: integration watermark; nil means not integrated
//
// # Identity
//
// Op hashes are computed over RFC 8785 canonical JSON with SHA-256 and
// domain separation (see hash.go). The hash covers the op's logical
// content (type, action, dependency, origin) so the same op arriving
// twice resolves to the same row, while the same logical action seen
// from different origins remains distinct.
package op
