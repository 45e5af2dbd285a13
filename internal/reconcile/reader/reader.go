// Package reader fetches the committed listing tree of a targeting scope
// and materializes it into the in-memory model.
package reader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lserrors "github.com/feedops/listingsync/errors"
	"github.com/feedops/listingsync/internal/tree"
	"github.com/feedops/listingsync/treeapi"
)

// Reader reads remote tree snapshots.
type Reader struct {
	api     treeapi.TreeService
	timeout time.Duration
	log     *slog.Logger
}

// New creates a reader over the remote service. A zero timeout leaves the
// caller's context deadline in charge; logger must not be nil.
func New(api treeapi.TreeService, timeout time.Duration, logger *slog.Logger) *Reader {
	return &Reader{api: api, timeout: timeout, log: logger}
}

// Read fetches the scope's tree and builds the model. A scope with no tree
// yields an error classified as not-found; callers that treat absence as an
// empty tree check with errors.IsNotFound.
func (r *Reader) Read(ctx context.Context, scope string) (*tree.Tree, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	records, err := r.api.Search(ctx, scope)
	if err != nil {
		return nil, lserrors.NewScoped("read", scope, lserrors.Classify(err),
			fmt.Errorf("search listing tree: %w", err))
	}
	if len(records) == 0 {
		return nil, lserrors.NewScoped("read", scope, lserrors.CodeNotFound,
			fmt.Errorf("scope has no listing tree: %w", lserrors.ErrNotFound))
	}

	t, err := tree.Build(records)
	if err != nil {
		return nil, lserrors.NewScoped("read", scope, lserrors.CodeInvalid,
			fmt.Errorf("build tree from %d records: %w", len(records), err))
	}

	r.log.Debug("read listing tree snapshot",
		"scope", scope,
		"nodes", t.Len(),
	)
	return t, nil
}

// Audit fetches the scope's tree and checks the committed-tree invariants
// without mutating anything. It returns the node count on success.
func (r *Reader) Audit(ctx context.Context, scope string) (int, error) {
	t, err := r.Read(ctx, scope)
	if err != nil {
		return 0, err
	}
	if err := t.Validate(); err != nil {
		return t.Len(), lserrors.NewScoped("audit", scope, lserrors.CodeInvalid, err)
	}
	return t.Len(), nil
}
