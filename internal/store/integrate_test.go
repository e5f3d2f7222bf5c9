package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sluicedb/sluice/internal/op"
)

var testTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func TestPromoteEligible_NoDependency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	o := mustOp(t, op.TypeCreateLink, "action-1", "", "origin-a", 1)
	mustWrite(t, s, o)
	markAwaiting(t, s, o.Hash, op.StatusValid)

	hashes, err := s.PromoteEligible(ctx, op.TypeCreateLink, "", testTime)
	if err != nil {
		t.Fatalf("PromoteEligible() failed: %v", err)
	}
	if len(hashes) != 1 || hashes[0] != o.Hash {
		t.Errorf("promoted = %v, want [%s]", hashes, o.Hash)
	}

	got, err := s.ReadOp(ctx, o.Hash)
	if err != nil {
		t.Fatalf("ReadOp() failed: %v", err)
	}
	if got.WhenIntegrated == nil {
		t.Fatal("when_integrated not set")
	}
	if !got.WhenIntegrated.Equal(testTime) {
		t.Errorf("when_integrated = %v, want %v", got.WhenIntegrated, testTime)
	}
	if got.ValidationStage != nil {
		t.Error("validation_stage not cleared on integration")
	}
}

func TestPromoteEligible_DependencyNotIntegrated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	create := mustOp(t, op.TypeCreateLink, "action-add", "", "origin-a", 1)
	del := mustOp(t, op.TypeDeleteLink, "action-del", "action-add", "origin-a", 2)
	mustWrite(t, s, create)
	mustWrite(t, s, del)

	// Both validated, but the create op is NOT integrated yet
	markAwaiting(t, s, create.Hash, op.StatusValid)
	markAwaiting(t, s, del.Hash, op.StatusValid)

	hashes, err := s.PromoteEligible(ctx, op.TypeDeleteLink, op.TypeCreateLink, testTime)
	if err != nil {
		t.Fatalf("PromoteEligible() failed: %v", err)
	}
	if len(hashes) != 0 {
		t.Errorf("delete-link promoted before its create-link: %v", hashes)
	}
}

func TestPromoteEligible_DependencySatisfied(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	create := mustOp(t, op.TypeCreateLink, "action-add", "", "origin-a", 1)
	del := mustOp(t, op.TypeDeleteLink, "action-del", "action-add", "origin-a", 2)
	mustWrite(t, s, create)
	mustWrite(t, s, del)
	markAwaiting(t, s, create.Hash, op.StatusValid)
	markAwaiting(t, s, del.Hash, op.StatusValid)

	// Integrate the create op first
	if _, err := s.PromoteEligible(ctx, op.TypeCreateLink, "", testTime); err != nil {
		t.Fatalf("PromoteEligible(create-link) failed: %v", err)
	}

	// Re-invocation for delete-link now finds its dependency integrated
	hashes, err := s.PromoteEligible(ctx, op.TypeDeleteLink, op.TypeCreateLink, testTime.Add(time.Second))
	if err != nil {
		t.Fatalf("PromoteEligible(delete-link) failed: %v", err)
	}
	if len(hashes) != 1 || hashes[0] != del.Hash {
		t.Errorf("promoted = %v, want [%s]", hashes, del.Hash)
	}

	// Watermarks reflect resolved order
	gotCreate, _ := s.ReadOp(ctx, create.Hash)
	gotDel, _ := s.ReadOp(ctx, del.Hash)
	if gotCreate.WhenIntegrated == nil || gotDel.WhenIntegrated == nil {
		t.Fatal("expected both ops integrated")
	}
	if gotDel.WhenIntegrated.Before(*gotCreate.WhenIntegrated) {
		t.Error("dependent integrated before its dependency")
	}
}

func TestPromoteEligible_AnyIntegratedCounterpartSuffices(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// The same logical action seen from two origins: two distinct rows
	createA := mustOp(t, op.TypeCreateLink, "action-add", "", "origin-a", 1)
	createB := mustOp(t, op.TypeCreateLink, "action-add", "", "origin-b", 2)
	del := mustOp(t, op.TypeDeleteLink, "action-del", "action-add", "origin-c", 3)
	mustWrite(t, s, createA)
	mustWrite(t, s, createB)
	mustWrite(t, s, del)

	// Only one of the two counterpart rows gets integrated
	markAwaiting(t, s, createA.Hash, op.StatusValid)
	markAwaiting(t, s, del.Hash, op.StatusValid)
	if _, err := s.PromoteEligible(ctx, op.TypeCreateLink, "", testTime); err != nil {
		t.Fatalf("PromoteEligible(create-link) failed: %v", err)
	}

	hashes, err := s.PromoteEligible(ctx, op.TypeDeleteLink, op.TypeCreateLink, testTime)
	if err != nil {
		t.Fatalf("PromoteEligible(delete-link) failed: %v", err)
	}
	if len(hashes) != 1 {
		t.Errorf("existence of one integrated counterpart should suffice, promoted %v", hashes)
	}
}

func TestPromoteEligible_NoPrematurePromotion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Stage short of AWAITING_INTEGRATION
	early := mustOp(t, op.TypeCreateLink, "action-1", "", "origin-a", 1)
	mustWrite(t, s, early)
	if err := s.SetValidation(ctx, early.Hash, op.StatusValid, op.StageSysValidated); err != nil {
		t.Fatalf("SetValidation() failed: %v", err)
	}

	// Status never set (stage pending, NULL status)
	unvalidated := mustOp(t, op.TypeCreateLink, "action-2", "", "origin-a", 2)
	mustWrite(t, s, unvalidated)

	// Rejected outcome
	rejected := mustOp(t, op.TypeCreateLink, "action-3", "", "origin-a", 3)
	mustWrite(t, s, rejected)
	markAwaiting(t, s, rejected.Hash, op.StatusRejected)

	hashes, err := s.PromoteEligible(ctx, op.TypeCreateLink, "", testTime)
	if err != nil {
		t.Fatalf("PromoteEligible() failed: %v", err)
	}
	if len(hashes) != 0 {
		t.Errorf("promoted ineligible rows: %v", hashes)
	}
}

func TestPromoteEligible_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	o := mustOp(t, op.TypeStoreEntry, "action-1", "", "origin-a", 1)
	mustWrite(t, s, o)
	markAwaiting(t, s, o.Hash, op.StatusValid)

	first, err := s.PromoteEligible(ctx, op.TypeStoreEntry, "", testTime)
	if err != nil {
		t.Fatalf("first PromoteEligible() failed: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 promotion, got %v", first)
	}

	second, err := s.PromoteEligible(ctx, op.TypeStoreEntry, "", testTime.Add(time.Hour))
	if err != nil {
		t.Fatalf("second PromoteEligible() failed: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("second invocation promoted rows: %v", second)
	}

	// Watermark untouched by the second call
	got, _ := s.ReadOp(ctx, o.Hash)
	if !got.WhenIntegrated.Equal(testTime) {
		t.Errorf("when_integrated changed on re-invocation: %v", got.WhenIntegrated)
	}
}

func TestHasIntegratedCounterpart(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	create := mustOp(t, op.TypeCreateLink, "action-add", "", "origin-a", 1)
	mustWrite(t, s, create)

	ok, err := s.HasIntegratedCounterpart(ctx, op.TypeCreateLink, "action-add")
	if err != nil {
		t.Fatalf("HasIntegratedCounterpart() failed: %v", err)
	}
	if ok {
		t.Error("counterpart exists but is not integrated; predicate should be false")
	}

	markAwaiting(t, s, create.Hash, op.StatusValid)
	if _, err := s.PromoteEligible(ctx, op.TypeCreateLink, "", testTime); err != nil {
		t.Fatalf("PromoteEligible() failed: %v", err)
	}

	ok, err = s.HasIntegratedCounterpart(ctx, op.TypeCreateLink, "action-add")
	if err != nil {
		t.Fatalf("HasIntegratedCounterpart() failed: %v", err)
	}
	if !ok {
		t.Error("integrated counterpart not found")
	}
}

func TestVerifyIntegrity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	o := mustOp(t, op.TypeStoreEntry, "action-1", "", "origin-a", 1)
	mustWrite(t, s, o)
	markAwaiting(t, s, o.Hash, op.StatusValid)
	if _, err := s.PromoteEligible(ctx, op.TypeStoreEntry, "", testTime); err != nil {
		t.Fatalf("PromoteEligible() failed: %v", err)
	}

	if err := s.VerifyIntegrity(ctx); err != nil {
		t.Errorf("VerifyIntegrity() on healthy store failed: %v", err)
	}

	// Corrupt the row out-of-band: integrated but stage still set
	if _, err := s.db.Exec("UPDATE ops SET validation_stage = 3 WHERE hash = ?", o.Hash); err != nil {
		t.Fatalf("corrupting row failed: %v", err)
	}

	err := s.VerifyIntegrity(ctx)
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
}
