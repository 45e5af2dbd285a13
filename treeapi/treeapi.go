// Package treeapi defines the remote service interface the reconciler
// drives. The interface mirrors the two remote surfaces: a read query
// returning the flat node records of a scope's tree, and an ordered mutate
// call with all-or-nothing semantics.
//
// Implementations adapt a concrete advertising/classification service.
// They should wrap transport failures with the sentinels in the errors
// package so the executor and reader can classify them.
package treeapi

import (
	"context"

	"github.com/feedops/listingsync/treetypes"
)

// TreeService is the remote query and mutate surface for listing trees.
// All methods must honor context cancellation and deadlines.
type TreeService interface {
	// Search returns the flat node records of the scope's tree. An empty
	// slice means the scope currently has no tree.
	Search(ctx context.Context, scope string) ([]treetypes.NodeRecord, error)

	// Mutate applies the operations as a single atomic request. On
	// success it returns the real identifiers of created nodes in request
	// order. On failure nothing was applied and the returned error must
	// be classifiable (wrap the errors package sentinels).
	Mutate(ctx context.Context, scope string, ops []treetypes.Operation) (*treetypes.MutateResult, error)
}
