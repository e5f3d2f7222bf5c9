package store

import (
	"context"
	"testing"

	"github.com/sluicedb/sluice/internal/op"
)

func TestReadAwaiting_FiltersAndOrders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Arrival order deliberately scrambled relative to seq
	o3 := mustOp(t, op.TypeCreateLink, "action-3", "", "origin-a", 3)
	o1 := mustOp(t, op.TypeCreateLink, "action-1", "", "origin-a", 1)
	o2 := mustOp(t, op.TypeCreateLink, "action-2", "", "origin-a", 2)
	other := mustOp(t, op.TypeStoreEntry, "action-4", "", "origin-a", 4)
	pending := mustOp(t, op.TypeCreateLink, "action-5", "", "origin-a", 5)

	for _, o := range []op.Op{o3, o1, o2, other, pending} {
		mustWrite(t, s, o)
	}
	markAwaiting(t, s, o3.Hash, op.StatusValid)
	markAwaiting(t, s, o1.Hash, op.StatusValid)
	markAwaiting(t, s, o2.Hash, op.StatusRejected)
	markAwaiting(t, s, other.Hash, op.StatusValid)
	// pending never validated

	got, err := s.ReadAwaiting(ctx, op.TypeCreateLink)
	if err != nil {
		t.Fatalf("ReadAwaiting() failed: %v", err)
	}

	// Rejected rows still count as awaiting (definite status), pending do not
	if len(got) != 3 {
		t.Fatalf("expected 3 awaiting ops, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Seq > got[i].Seq {
			t.Errorf("results not ordered by seq: %d before %d", got[i-1].Seq, got[i].Seq)
		}
	}
}

func TestReadAwaiting_Empty(t *testing.T) {
	s := newTestStore(t)

	got, err := s.ReadAwaiting(context.Background(), op.TypeDeleteLink)
	if err != nil {
		t.Fatalf("ReadAwaiting() failed: %v", err)
	}
	if got == nil {
		t.Error("expected empty slice, got nil")
	}
	if len(got) != 0 {
		t.Errorf("expected no rows, got %d", len(got))
	}
}

func TestReadIntegrated_ExcludesUnintegrated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	integrated := mustOp(t, op.TypeStoreEntry, "action-1", "", "origin-a", 1)
	waiting := mustOp(t, op.TypeStoreEntry, "action-2", "", "origin-a", 2)
	mustWrite(t, s, integrated)
	mustWrite(t, s, waiting)
	markAwaiting(t, s, integrated.Hash, op.StatusValid)

	if _, err := s.PromoteEligible(ctx, op.TypeStoreEntry, "", testTime); err != nil {
		t.Fatalf("PromoteEligible() failed: %v", err)
	}
	markAwaiting(t, s, waiting.Hash, op.StatusValid) // validated after the pass

	got, err := s.ReadIntegrated(ctx, op.TypeStoreEntry)
	if err != nil {
		t.Fatalf("ReadIntegrated() failed: %v", err)
	}
	if len(got) != 1 || got[0].Hash != integrated.Hash {
		t.Errorf("integrated set = %v, want only %s", got, integrated.Hash)
	}
}

func TestCountStages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pending := mustOp(t, op.TypeStoreEntry, "action-1", "", "origin-a", 1)
	awaiting := mustOp(t, op.TypeStoreEntry, "action-2", "", "origin-a", 2)
	done := mustOp(t, op.TypeStoreEntry, "action-3", "", "origin-a", 3)
	rejected := mustOp(t, op.TypeStoreEntry, "action-4", "", "origin-a", 4)

	for _, o := range []op.Op{pending, awaiting, done, rejected} {
		mustWrite(t, s, o)
	}
	markAwaiting(t, s, done.Hash, op.StatusValid)
	markAwaiting(t, s, rejected.Hash, op.StatusRejected)

	if _, err := s.PromoteEligible(ctx, op.TypeStoreEntry, "", testTime); err != nil {
		t.Fatalf("PromoteEligible() failed: %v", err)
	}
	// Validated after the pass, still awaiting the next one
	markAwaiting(t, s, awaiting.Hash, op.StatusValid)

	counts, err := s.CountStages(ctx)
	if err != nil {
		t.Fatalf("CountStages() failed: %v", err)
	}
	if counts.Pending != 1 {
		t.Errorf("Pending = %d, want 1", counts.Pending)
	}
	if counts.Awaiting != 1 {
		t.Errorf("Awaiting = %d, want 1", counts.Awaiting)
	}
	if counts.Integrated != 1 {
		t.Errorf("Integrated = %d, want 1", counts.Integrated)
	}
	if counts.Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", counts.Rejected)
	}
}
