package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sluicedb/sluice/internal/op"
)

// WriteOp inserts an operation record into the store.
// Uses ON CONFLICT(hash) DO NOTHING for idempotency - duplicate delivery
// of the same content-addressed op is silently ignored. Other constraint
// violations (e.g. NOT NULL) still return errors.
func (s *Store) WriteOp(ctx context.Context, o op.Op) error {
	var stage any
	if o.ValidationStage != nil {
		stage = int64(*o.ValidationStage)
	}
	var status any
	if o.ValidationStatus != "" {
		status = string(o.ValidationStatus)
	}
	var dependency any
	if o.Dependency != "" {
		dependency = o.Dependency
	}
	var whenIntegrated any
	if o.WhenIntegrated != nil {
		whenIntegrated = o.WhenIntegrated.UnixMicro()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ops
		(hash, type, action, dependency, origin, seq, validation_status, validation_stage, when_integrated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`,
		o.Hash,
		string(o.Type),
		o.Action,
		dependency,
		o.Origin,
		o.Seq,
		status,
		stage,
		whenIntegrated,
	)
	if err != nil {
		return fmt.Errorf("write op: %w", err)
	}

	return nil
}

// SetValidation records a validation outcome on behalf of the external
// validation engine: sets validation_status and advances
// validation_stage in one statement.
//
// The update is conditional on the row not being integrated yet
// (when_integrated IS NULL) - validation results arriving after
// integration would otherwise resurrect a cleared stage.
//
// Returns sql.ErrNoRows if no matching un-integrated row exists.
func (s *Store) SetValidation(ctx context.Context, hash string, status op.ValidationStatus, stage op.Stage) error {
	if !op.ValidStatuses[status] {
		return fmt.Errorf("set validation: invalid status %q", status)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE ops
		SET validation_status = ?, validation_stage = ?
		WHERE hash = ? AND when_integrated IS NULL
	`,
		string(status),
		int64(stage),
		hash,
	)
	if err != nil {
		return fmt.Errorf("set validation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set validation: rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("set validation %s: %w", hash, sql.ErrNoRows)
	}

	return nil
}
