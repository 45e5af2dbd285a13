package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lserrors "github.com/feedops/listingsync/errors"
	"github.com/feedops/listingsync/treetypes"
)

var shopFacet = treetypes.Facet{Kind: treetypes.FacetShopID, Index: 0}

func seed(f *FakeTreeService, scope string) {
	f.Seed(scope, []treetypes.NodeRecord{
		{ResourceID: "crit-1", Kind: treetypes.NodeSubdivision},
		{
			ResourceID: "crit-2", ParentID: "crit-1", Kind: treetypes.NodeLeaf,
			Case:     &treetypes.CaseValue{Facet: shopFacet, Remainder: true},
			Decision: treetypes.Exclude(),
		},
	})
}

func TestMutateIsAtomic(t *testing.T) {
	f := New()
	seed(f, "scope-1")

	// Second op references an unknown parent, so the first create must
	// not be committed either.
	_, err := f.Mutate(context.Background(), "scope-1", []treetypes.Operation{
		{
			Type: treetypes.OpCreate, TempRef: "-1", ParentRef: "crit-1",
			Kind:     treetypes.NodeLeaf,
			Case:     &treetypes.CaseValue{Facet: shopFacet, Value: "shop a"},
			Decision: treetypes.Exclude(),
		},
		{Type: treetypes.OpRemove, ResourceID: "crit-99"},
	})
	require.Error(t, err)
	assert.Equal(t, 2, f.NodeCount("scope-1"), "failed batch must not change state")
}

func TestMutateRejectsSubdivisionWithoutRemainder(t *testing.T) {
	f := New()

	_, err := f.Mutate(context.Background(), "scope-1", []treetypes.Operation{
		{Type: treetypes.OpCreate, TempRef: "-1", Kind: treetypes.NodeSubdivision},
	})
	require.Error(t, err)
	assert.True(t, lserrors.IsInvalid(err))
	assert.Zero(t, f.NodeCount("scope-1"))
}

func TestMutateRejectsDuplicateValueCaseInsensitive(t *testing.T) {
	f := New()
	seed(f, "scope-1")
	_, err := f.Mutate(context.Background(), "scope-1", []treetypes.Operation{
		{
			Type: treetypes.OpCreate, TempRef: "-1", ParentRef: "crit-1",
			Kind:     treetypes.NodeLeaf,
			Case:     &treetypes.CaseValue{Facet: shopFacet, Value: "shop a"},
			Decision: treetypes.Exclude(),
		},
	})
	require.NoError(t, err)

	_, err = f.Mutate(context.Background(), "scope-1", []treetypes.Operation{
		{
			Type: treetypes.OpCreate, TempRef: "-1", ParentRef: "crit-1",
			Kind:     treetypes.NodeLeaf,
			Case:     &treetypes.CaseValue{Facet: shopFacet, Value: "SHOP A"},
			Decision: treetypes.Exclude(),
		},
	})
	require.Error(t, err)
	assert.True(t, lserrors.IsConflict(err))
}

func TestMutateRemoveCascades(t *testing.T) {
	f := New()
	res, err := f.Mutate(context.Background(), "scope-1", []treetypes.Operation{
		{Type: treetypes.OpCreate, TempRef: "-1", Kind: treetypes.NodeSubdivision},
		{
			Type: treetypes.OpCreate, TempRef: "-2", ParentRef: "-1",
			Kind:     treetypes.NodeLeaf,
			Case:     &treetypes.CaseValue{Facet: shopFacet, Remainder: true},
			Decision: treetypes.Exclude(),
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Created, 2)

	_, err = f.Mutate(context.Background(), "scope-1", []treetypes.Operation{
		{Type: treetypes.OpRemove, ResourceID: res.Created[0]},
	})
	require.NoError(t, err)
	assert.Zero(t, f.NodeCount("scope-1"))
}

func TestMutateErrorInjection(t *testing.T) {
	f := New()
	f.MutateErrs = []error{lserrors.ErrConflict, nil}

	ops := []treetypes.Operation{
		{Type: treetypes.OpCreate, TempRef: "-1", Kind: treetypes.NodeSubdivision},
		{
			Type: treetypes.OpCreate, TempRef: "-2", ParentRef: "-1",
			Kind:     treetypes.NodeLeaf,
			Case:     &treetypes.CaseValue{Facet: shopFacet, Remainder: true},
			Decision: treetypes.Exclude(),
		},
	}
	_, err := f.Mutate(context.Background(), "scope-1", ops)
	require.ErrorIs(t, err, lserrors.ErrConflict)

	_, err = f.Mutate(context.Background(), "scope-1", ops)
	require.NoError(t, err)
	assert.Equal(t, 2, f.MutateCalls)
}
