package reader

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lserrors "github.com/feedops/listingsync/errors"
	"github.com/feedops/listingsync/internal/testutil"
	"github.com/feedops/listingsync/treetypes"
)

var shopFacet = treetypes.Facet{Kind: treetypes.FacetShopID, Index: 0}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seededService() *testutil.FakeTreeService {
	svc := testutil.New()
	svc.Seed("scope-1", []treetypes.NodeRecord{
		{ResourceID: "crit-1", Kind: treetypes.NodeSubdivision},
		{
			ResourceID: "crit-2", ParentID: "crit-1", Kind: treetypes.NodeLeaf,
			Case:     &treetypes.CaseValue{Facet: shopFacet, Remainder: true},
			Decision: treetypes.Exclude(),
		},
	})
	return svc
}

func TestReadBuildsTree(t *testing.T) {
	rd := New(seededService(), 0, testLogger())

	tr, err := rd.Read(context.Background(), "scope-1")
	require.NoError(t, err)
	assert.Equal(t, 2, tr.Len())
	assert.Equal(t, "crit-1", tr.Root.ResourceID)
}

func TestReadMissingScopeIsNotFound(t *testing.T) {
	rd := New(testutil.New(), 0, testLogger())

	_, err := rd.Read(context.Background(), "no-such-scope")
	require.Error(t, err)
	assert.True(t, lserrors.IsNotFound(err))
}

func TestReadWrapsSearchFailure(t *testing.T) {
	svc := seededService()
	svc.SearchErrs = []error{lserrors.ErrTransient}
	rd := New(svc, 0, testLogger())

	_, err := rd.Read(context.Background(), "scope-1")
	require.Error(t, err)
	assert.Equal(t, lserrors.CodeTransient, lserrors.Classify(err))
}

func TestReadRejectsMalformedSnapshot(t *testing.T) {
	svc := testutil.New()
	svc.Seed("scope-1", []treetypes.NodeRecord{
		{ResourceID: "crit-1", Kind: treetypes.NodeSubdivision},
		{ResourceID: "crit-2", ParentID: "crit-99", Kind: treetypes.NodeLeaf,
			Case: &treetypes.CaseValue{Facet: shopFacet, Remainder: true}},
	})
	rd := New(svc, 0, testLogger())

	_, err := rd.Read(context.Background(), "scope-1")
	require.Error(t, err)
	assert.True(t, lserrors.IsInvalid(err))
}

func TestAudit(t *testing.T) {
	rd := New(seededService(), 0, testLogger())

	n, err := rd.Audit(context.Background(), "scope-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
