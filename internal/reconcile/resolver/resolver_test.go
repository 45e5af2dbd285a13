package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lserrors "github.com/feedops/listingsync/errors"
	"github.com/feedops/listingsync/treetypes"
)

func TestAllocatorSequence(t *testing.T) {
	a := NewAllocator()
	assert.Equal(t, "-1", a.Next())
	assert.Equal(t, "-2", a.Next())
	assert.Equal(t, "-3", a.Next())
}

func TestIsPlaceholder(t *testing.T) {
	assert.True(t, IsPlaceholder("-1"))
	assert.False(t, IsPlaceholder("crit-42"))
	assert.False(t, IsPlaceholder(""))
}

func TestRecordMapsCreatesInOrder(t *testing.T) {
	r := New()
	ops := []treetypes.Operation{
		{Type: treetypes.OpCreate, TempRef: "-1"},
		{Type: treetypes.OpRemove, ResourceID: "crit-9"},
		{Type: treetypes.OpCreate, TempRef: "-2"},
	}
	res := &treetypes.MutateResult{Created: []string{"crit-10", "crit-11"}}

	require.NoError(t, r.Record(ops, res))

	id, ok := r.Resolved("-1")
	require.True(t, ok)
	assert.Equal(t, "crit-10", id)
	id, ok = r.Resolved("-2")
	require.True(t, ok)
	assert.Equal(t, "crit-11", id)
}

func TestRecordRejectsShortResult(t *testing.T) {
	r := New()
	ops := []treetypes.Operation{
		{Type: treetypes.OpCreate, TempRef: "-1"},
		{Type: treetypes.OpCreate, TempRef: "-2"},
	}
	err := r.Record(ops, &treetypes.MutateResult{Created: []string{"crit-10"}})
	require.Error(t, err)
	assert.Equal(t, lserrors.CodePlannerMismatch, lserrors.Classify(err))
}

func TestPatchRewritesCrossBatchPlaceholders(t *testing.T) {
	r := New()
	require.NoError(t, r.Record(
		[]treetypes.Operation{{Type: treetypes.OpCreate, TempRef: "-1"}},
		&treetypes.MutateResult{Created: []string{"crit-10"}},
	))

	ops := []treetypes.Operation{
		// cross-batch: parent committed in a previous batch
		{Type: treetypes.OpCreate, TempRef: "-2", ParentRef: "-1"},
		// in-batch: the remote service resolves this one itself
		{Type: treetypes.OpCreate, TempRef: "-3", ParentRef: "-2"},
		// committed identifiers pass through untouched
		{Type: treetypes.OpCreate, TempRef: "-4", ParentRef: "crit-5"},
	}
	require.NoError(t, r.Patch(ops))

	assert.Equal(t, "crit-10", ops[0].ParentRef)
	assert.Equal(t, "-2", ops[1].ParentRef)
	assert.Equal(t, "crit-5", ops[2].ParentRef)
}

func TestPatchRejectsUnknownPlaceholder(t *testing.T) {
	r := New()
	ops := []treetypes.Operation{
		{Type: treetypes.OpCreate, TempRef: "-5", ParentRef: "-99"},
	}
	err := r.Patch(ops)
	require.Error(t, err)
	assert.Equal(t, lserrors.CodePlannerMismatch, lserrors.Classify(err))
}
