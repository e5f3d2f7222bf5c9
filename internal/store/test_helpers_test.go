package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sluicedb/sluice/internal/op"
)

// newTestStore opens a store backed by a temp file database.
// The store is closed automatically when the test ends.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// mustOp builds an op or fails the test.
func mustOp(t *testing.T, typ op.Type, action, dependency, origin string, seq int64) op.Op {
	t.Helper()

	o, err := op.New(typ, action, dependency, origin, seq)
	if err != nil {
		t.Fatalf("op.New() failed: %v", err)
	}
	return o
}

// mustWrite writes an op or fails the test.
func mustWrite(t *testing.T, s *Store, o op.Op) {
	t.Helper()

	if err := s.WriteOp(context.Background(), o); err != nil {
		t.Fatalf("WriteOp(%s) failed: %v", o.Hash, err)
	}
}

// markAwaiting advances an op to AWAITING_INTEGRATION with the given status.
func markAwaiting(t *testing.T, s *Store, hash string, status op.ValidationStatus) {
	t.Helper()

	if err := s.SetValidation(context.Background(), hash, status, op.StageAwaitingIntegration); err != nil {
		t.Fatalf("SetValidation(%s) failed: %v", hash, err)
	}
}
