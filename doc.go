// Package listingsync reconciles hierarchical product-targeting trees
// against desired target sets. A tree subdivides an ad group's items by
// facets (category code, cohort label, shop, item), terminating in leaves
// that include items with a bid or exclude them; every subdivision carries
// a catch-all remainder case.
//
// The client reads the committed remote tree, computes the minimal ordered
// batches that converge it on the target set, and submits them atomically
// with retry on conflicts and transient failures. Nodes created in one
// batch are referenced by later batches through placeholder resolution.
// Runs over many units checkpoint their progress so a crashed run resumes
// at the first unprocessed unit.
//
// Example usage:
//
//	client, err := listingsync.New(svc,
//	    listingsync.WithMaxAttempts(5),
//	    listingsync.WithCheckpointStore(checkpoint.NewMemory()),
//	)
//	if err != nil {
//	    return err
//	}
//
//	result, err := client.ReconcileAll(ctx, units)
package listingsync
