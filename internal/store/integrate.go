package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sluicedb/sluice/internal/op"
)

// ErrCorrupt reports rows violating the integration invariants.
// Corruption is surfaced, never silently repaired.
var ErrCorrupt = errors.New("operation store corrupt")

// PromoteEligible atomically promotes every eligible op of the given
// type: sets when_integrated to now and clears validation_stage, in ONE
// conditional UPDATE inside one transaction.
//
// An op is eligible when:
//   - validation_stage = AWAITING_INTEGRATION
//   - validation_status = valid (a definite, accepted outcome)
//   - counterpart is empty (no dependency declared for this type), OR
//     at least one integrated op of the counterpart type exists whose
//     action matches this op's dependency reference
//
// The predicate and the two-field transition execute in the same
// statement, so two overlapping invocations can never promote the same
// row twice and a dependency integrated between check and write cannot
// be missed. A failure aborts the transaction leaving no partial batch.
//
// Returns the promoted hashes, sorted, for downstream re-triggering.
// An empty result is a no-op, not an error (idempotent re-invocation).
func (s *Store) PromoteEligible(ctx context.Context, typ, counterpart op.Type, now time.Time) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("promote %s: begin tx: %w", typ, err)
	}
	defer tx.Rollback() // No-op if committed

	var (
		query string
		args  []any
	)
	if counterpart == "" {
		// Vacuous dependency predicate: promotion is gated only on the
		// validation outcome.
		query = `
			UPDATE ops
			SET when_integrated = ?, validation_stage = NULL
			WHERE type = ?
			  AND validation_stage = ?
			  AND validation_status = ?
			RETURNING hash
		`
		args = []any{
			now.UnixMicro(),
			string(typ),
			int64(op.StageAwaitingIntegration),
			string(op.StatusValid),
		}
	} else {
		query = `
			UPDATE ops
			SET when_integrated = ?, validation_stage = NULL
			WHERE type = ?
			  AND validation_stage = ?
			  AND validation_status = ?
			  AND dependency IS NOT NULL
			  AND EXISTS (
				SELECT 1 FROM ops AS dep
				WHERE dep.type = ?
				  AND dep.action = ops.dependency
				  AND dep.when_integrated IS NOT NULL
			  )
			RETURNING hash
		`
		args = []any{
			now.UnixMicro(),
			string(typ),
			int64(op.StageAwaitingIntegration),
			string(op.StatusValid),
			string(counterpart),
		}
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("promote %s: %w", typ, err)
	}

	var hashes []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			rows.Close()
			return nil, fmt.Errorf("promote %s: scan hash: %w", typ, err)
		}
		hashes = append(hashes, hash)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("promote %s: iterate hashes: %w", typ, err)
	}
	rows.Close()

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("promote %s: commit: %w", typ, err)
	}

	// RETURNING order is unspecified; sort for deterministic reports.
	sort.Strings(hashes)
	return hashes, nil
}

// VerifyIntegrity scans for rows violating the integration invariants:
// an integrated row whose validation_stage was not cleared, or an
// integrated row that was never accepted by validation.
//
// Returns an error wrapping ErrCorrupt naming the offending hashes.
// This is detection only - corrupt rows are reported, not repaired.
func (s *Store) VerifyIntegrity(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hash FROM ops
		WHERE when_integrated IS NOT NULL
		  AND (validation_stage IS NOT NULL OR validation_status IS NULL OR validation_status != ?)
		ORDER BY hash COLLATE BINARY ASC
	`, string(op.StatusValid))
	if err != nil {
		return fmt.Errorf("verify integrity: %w", err)
	}
	defer rows.Close()

	var corrupt []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return fmt.Errorf("verify integrity: scan: %w", err)
		}
		corrupt = append(corrupt, hash)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("verify integrity: iterate: %w", err)
	}

	if len(corrupt) > 0 {
		return fmt.Errorf("%w: %d invariant-violating rows: %s", ErrCorrupt, len(corrupt), strings.Join(corrupt, ", "))
	}
	return nil
}
