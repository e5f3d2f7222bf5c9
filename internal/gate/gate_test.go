package gate

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sluicedb/sluice/internal/op"
	"github.com/sluicedb/sluice/internal/store"
)

var gateTestTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

// stubTokens is a PassTokenGenerator that never exhausts.
type stubTokens struct{}

func (stubTokens) Generate() string { return "run-test" }

func newTestGate(t *testing.T, rules *RuleSet, opts ...Option) (*Gate, *store.Store) {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	opts = append([]Option{
		WithNow(func() time.Time { return gateTestTime }),
		WithTokenGenerator(stubTokens{}),
	}, opts...)

	return New(s, rules, opts...), s
}

// seedOp writes an op and, when status is non-empty, advances it to
// AWAITING_INTEGRATION with that status.
func seedOp(t *testing.T, s *store.Store, typ op.Type, action, dependency string, seq int64, status op.ValidationStatus) op.Op {
	t.Helper()

	o, err := op.New(typ, action, dependency, "origin-test", seq)
	require.NoError(t, err)
	require.NoError(t, s.WriteOp(context.Background(), o))

	if status != "" {
		require.NoError(t, s.SetValidation(context.Background(), o.Hash, status, op.StageAwaitingIntegration))
	}
	return o
}

func TestTryIntegratePromotesIndependentOp(t *testing.T) {
	g, s := newTestGate(t, DefaultRules())
	ctx := context.Background()

	o := seedOp(t, s, op.TypeCreateLink, "action-1", "", 1, op.StatusValid)

	hashes, err := g.TryIntegrate(ctx, op.TypeCreateLink)
	require.NoError(t, err)
	assert.Equal(t, []string{o.Hash}, hashes)

	got, err := s.ReadOp(ctx, o.Hash)
	require.NoError(t, err)
	require.NotNil(t, got.WhenIntegrated)
	assert.True(t, got.WhenIntegrated.Equal(gateTestTime))
	assert.Nil(t, got.ValidationStage)
}

func TestTryIntegrateLeavesBlockedDependentAlone(t *testing.T) {
	g, s := newTestGate(t, DefaultRules())
	ctx := context.Background()

	seedOp(t, s, op.TypeCreateLink, "action-add", "", 1, op.StatusValid)
	del := seedOp(t, s, op.TypeDeleteLink, "action-del", "action-add", 2, op.StatusValid)

	// The create op is validated but NOT integrated
	hashes, err := g.TryIntegrate(ctx, op.TypeDeleteLink)
	require.NoError(t, err)
	assert.Empty(t, hashes)

	got, err := s.ReadOp(ctx, del.Hash)
	require.NoError(t, err)
	assert.Nil(t, got.WhenIntegrated)
	assert.True(t, got.AwaitingIntegration(), "blocked op stays eligible for the next pass")
}

func TestTryIntegrateAfterDependencyIntegrates(t *testing.T) {
	g, s := newTestGate(t, DefaultRules())
	ctx := context.Background()

	create := seedOp(t, s, op.TypeCreateLink, "action-add", "", 1, op.StatusValid)
	del := seedOp(t, s, op.TypeDeleteLink, "action-del", "action-add", 2, op.StatusValid)

	_, err := g.TryIntegrate(ctx, op.TypeCreateLink)
	require.NoError(t, err)

	hashes, err := g.TryIntegrate(ctx, op.TypeDeleteLink)
	require.NoError(t, err)
	assert.Equal(t, []string{del.Hash}, hashes)

	// Dependency ordering invariant on the watermarks
	gotCreate, err := s.ReadOp(ctx, create.Hash)
	require.NoError(t, err)
	gotDel, err := s.ReadOp(ctx, del.Hash)
	require.NoError(t, err)
	require.NotNil(t, gotCreate.WhenIntegrated)
	require.NotNil(t, gotDel.WhenIntegrated)
	assert.False(t, gotDel.WhenIntegrated.Before(*gotCreate.WhenIntegrated))
}

func TestTryIntegrateUnknownType(t *testing.T) {
	g, _ := newTestGate(t, DefaultRules())

	_, err := g.TryIntegrate(context.Background(), "no-such-type")
	assert.Error(t, err)
}

func TestIntegrateAllConvergesOnChain(t *testing.T) {
	// a <- b <- c, declared worst-case first so each pass unblocks
	// exactly one link of the chain.
	rules := MustRuleSet([]Rule{
		{Type: "op-c", DependsOn: "op-b"},
		{Type: "op-b", DependsOn: "op-a"},
		{Type: "op-a"},
	})
	g, s := newTestGate(t, rules)
	ctx := context.Background()

	a := seedOp(t, s, "op-a", "action-a", "", 1, op.StatusValid)
	b := seedOp(t, s, "op-b", "action-b", "action-a", 2, op.StatusValid)
	c := seedOp(t, s, "op-c", "action-c", "action-b", 3, op.StatusValid)

	report, err := g.IntegrateAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total(), "one invocation integrates the whole chain")
	assert.Equal(t, []string{a.Hash}, report.Promoted["op-a"])
	assert.Equal(t, []string{b.Hash}, report.Promoted["op-b"])
	assert.Equal(t, []string{c.Hash}, report.Promoted["op-c"])
	// Three productive passes plus the final empty one
	assert.Equal(t, 4, report.Passes)

	for _, o := range []op.Op{a, b, c} {
		got, err := s.ReadOp(ctx, o.Hash)
		require.NoError(t, err)
		assert.NotNil(t, got.WhenIntegrated, "op %s not integrated", o.Hash)
	}
}

func TestIntegrateAllConvergesRegardlessOfValidationOrder(t *testing.T) {
	rules := MustRuleSet([]Rule{
		{Type: "op-a"},
		{Type: "op-b", DependsOn: "op-a"},
		{Type: "op-c", DependsOn: "op-b"},
	})
	g, s := newTestGate(t, rules)
	ctx := context.Background()

	// Arrival and validation in reverse dependency order
	c := seedOp(t, s, "op-c", "action-c", "action-b", 1, op.StatusValid)
	b := seedOp(t, s, "op-b", "action-b", "action-a", 2, op.StatusValid)

	// Dependency root not yet validated: nothing can move
	report, err := g.IntegrateAll(ctx)
	require.NoError(t, err)
	assert.False(t, report.Changed())
	assert.Equal(t, 1, report.Passes, "a no-op run is a single empty pass")

	// Root arrives and validates; everything integrates in one run
	a := seedOp(t, s, "op-a", "action-a", "", 3, op.StatusValid)
	report, err = g.IntegrateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total())

	for _, o := range []op.Op{a, b, c} {
		got, err := s.ReadOp(ctx, o.Hash)
		require.NoError(t, err)
		assert.NotNil(t, got.WhenIntegrated)
	}
}

func TestIntegrateAllIdempotent(t *testing.T) {
	g, s := newTestGate(t, DefaultRules())
	ctx := context.Background()

	seedOp(t, s, op.TypeCreateLink, "action-1", "", 1, op.StatusValid)

	first, err := g.IntegrateAll(ctx)
	require.NoError(t, err)
	require.True(t, first.Changed())

	second, err := g.IntegrateAll(ctx)
	require.NoError(t, err)
	assert.False(t, second.Changed(), "no intervening writes: second run must promote nothing")
	assert.Equal(t, 1, second.Passes)
}

func TestIntegrateAllSkipsDanglingDependency(t *testing.T) {
	g, s := newTestGate(t, DefaultRules())
	ctx := context.Background()

	// Counterpart never arrives: the op waits indefinitely, not an error
	del := seedOp(t, s, op.TypeDeleteLink, "action-del", "action-never", 1, op.StatusValid)

	report, err := g.IntegrateAll(ctx)
	require.NoError(t, err)
	assert.False(t, report.Changed())

	got, err := s.ReadOp(ctx, del.Hash)
	require.NoError(t, err)
	assert.Nil(t, got.WhenIntegrated)
	assert.True(t, got.AwaitingIntegration())
}

func TestConcurrentTryIntegratePromotesExactlyOnce(t *testing.T) {
	g, s := newTestGate(t, DefaultRules())
	ctx := context.Background()

	const n = 20
	for i := 0; i < n; i++ {
		seedOp(t, s, op.TypeCreateLink, "action-"+string(rune('a'+i)), "", int64(i+1), op.StatusValid)
	}

	// Two overlapping invocations for the same type and row set
	var wg sync.WaitGroup
	results := make([][]string, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = g.TryIntegrate(ctx, op.TypeCreateLink)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	// Each row promoted exactly once across both invocations
	seen := make(map[string]int)
	for _, hashes := range results {
		for _, h := range hashes {
			seen[h]++
		}
	}
	assert.Len(t, seen, n, "every eligible row promoted")
	for h, count := range seen {
		assert.Equal(t, 1, count, "row %s promoted more than once", h)
	}

	integrated, err := s.ReadIntegrated(ctx, op.TypeCreateLink)
	require.NoError(t, err)
	assert.Len(t, integrated, n)
}
