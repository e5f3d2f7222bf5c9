package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sluicedb/sluice/internal/op"
)

const opColumns = `hash, type, action, dependency, origin, seq, validation_status, validation_stage, when_integrated`

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanOp reads one ops row into an op.Op.
func scanOp(row rowScanner) (op.Op, error) {
	var (
		o              op.Op
		typ            string
		dependency     sql.NullString
		status         sql.NullString
		stage          sql.NullInt64
		whenIntegrated sql.NullInt64
	)

	err := row.Scan(&o.Hash, &typ, &o.Action, &dependency, &o.Origin, &o.Seq, &status, &stage, &whenIntegrated)
	if err != nil {
		return op.Op{}, err
	}

	o.Type = op.Type(typ)
	if dependency.Valid {
		o.Dependency = dependency.String
	}
	if status.Valid {
		o.ValidationStatus = op.ValidationStatus(status.String)
	}
	if stage.Valid {
		st := op.Stage(stage.Int64)
		o.ValidationStage = &st
	}
	if whenIntegrated.Valid {
		ts := time.UnixMicro(whenIntegrated.Int64).UTC()
		o.WhenIntegrated = &ts
	}

	return o, nil
}

// ReadOp retrieves a single op by hash.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadOp(ctx context.Context, hash string) (op.Op, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+opColumns+`
		FROM ops
		WHERE hash = ?
	`, hash)

	o, err := scanOp(row)
	if err != nil {
		return op.Op{}, fmt.Errorf("read op %s: %w", hash, err)
	}
	return o, nil
}

// ReadAwaiting returns ops of the given type that are awaiting
// integration: stage = AWAITING_INTEGRATION with a definite validation
// status. Ordered deterministically by arrival seq, then hash.
//
// Returns an empty slice (not nil) if no rows match.
func (s *Store) ReadAwaiting(ctx context.Context, typ op.Type) ([]op.Op, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+opColumns+`
		FROM ops
		WHERE type = ?
		  AND validation_stage = ?
		  AND validation_status IS NOT NULL
		ORDER BY seq ASC, hash COLLATE BINARY ASC
	`, string(typ), int64(op.StageAwaitingIntegration))
	if err != nil {
		return nil, fmt.Errorf("query awaiting ops: %w", err)
	}
	defer rows.Close()

	return collectOps(rows, "awaiting ops")
}

// ReadIntegrated returns integrated ops of the given type - the rows
// the downstream query layer treats as authoritative. Rows with NULL
// when_integrated are never returned here.
//
// Returns an empty slice (not nil) if no rows match.
func (s *Store) ReadIntegrated(ctx context.Context, typ op.Type) ([]op.Op, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+opColumns+`
		FROM ops
		WHERE type = ?
		  AND when_integrated IS NOT NULL
		ORDER BY seq ASC, hash COLLATE BINARY ASC
	`, string(typ))
	if err != nil {
		return nil, fmt.Errorf("query integrated ops: %w", err)
	}
	defer rows.Close()

	return collectOps(rows, "integrated ops")
}

// collectOps drains rows into a slice with deterministic error context.
func collectOps(rows *sql.Rows, what string) ([]op.Op, error) {
	var ops []op.Op
	for rows.Next() {
		o, err := scanOp(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		ops = append(ops, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", what, err)
	}

	if ops == nil {
		ops = []op.Op{}
	}
	return ops, nil
}

// HasIntegratedCounterpart reports whether at least one integrated op
// of the given type exists whose own action reference equals actionRef.
//
// This is the dependency predicate's existence check: multiple stored
// rows may reference the same logical action (different origins), and
// any integrated match satisfies the dependency.
func (s *Store) HasIntegratedCounterpart(ctx context.Context, typ op.Type, actionRef string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM ops
			WHERE type = ?
			  AND action = ?
			  AND when_integrated IS NOT NULL
		)
	`, string(typ), actionRef).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check counterpart: %w", err)
	}
	return exists == 1, nil
}

// StageCounts summarizes the store's lifecycle population for the
// status command and monitoring.
type StageCounts struct {
	Pending    int64 // validation_stage set, status still NULL
	Awaiting   int64 // stage = AWAITING_INTEGRATION with definite status
	Integrated int64 // when_integrated set
	Rejected   int64 // terminal validation outcomes, never integrated
}

// CountStages returns row counts per lifecycle bucket.
func (s *Store) CountStages(ctx context.Context) (StageCounts, error) {
	var c StageCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE when_integrated IS NULL AND validation_status IS NULL),
			COUNT(*) FILTER (WHERE when_integrated IS NULL AND validation_stage = ? AND validation_status = ?),
			COUNT(*) FILTER (WHERE when_integrated IS NOT NULL),
			COUNT(*) FILTER (WHERE when_integrated IS NULL AND validation_status IN (?, ?))
		FROM ops
	`,
		int64(op.StageAwaitingIntegration),
		string(op.StatusValid),
		string(op.StatusRejected),
		string(op.StatusAbandoned),
	).Scan(&c.Pending, &c.Awaiting, &c.Integrated, &c.Rejected)
	if err != nil {
		return StageCounts{}, fmt.Errorf("count stages: %w", err)
	}
	return c, nil
}
