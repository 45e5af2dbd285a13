// Package treetypes provides shared type definitions for the listing tree
// reconciliation module.
package treetypes

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FacetKind identifies the dimension a subdivision partitions its items on.
type FacetKind string

// Predefined facet kinds
const (
	// FacetCategoryCode partitions by product category code
	FacetCategoryCode FacetKind = "CATEGORY_CODE"

	// FacetCohortLabel partitions by cohort label
	FacetCohortLabel FacetKind = "COHORT_LABEL"

	// FacetShopID partitions by shop identifier
	FacetShopID FacetKind = "SHOP_ID"

	// FacetItemID partitions by individual item identifier
	FacetItemID FacetKind = "ITEM_ID"
)

// Facet is one partition dimension: a kind plus an ordinal index that
// distinguishes multiple facets of the same kind. Facets are comparable by
// equality only; they carry no intrinsic ordering.
type Facet struct {
	// Kind is the dimension type
	Kind FacetKind

	// Index distinguishes multiple facets of the same kind
	Index int
}

// String returns a stable human-readable form such as "SHOP_ID/0".
func (f Facet) String() string {
	return fmt.Sprintf("%s/%d", f.Kind, f.Index)
}

// NodeKind identifies whether a tree node subdivides further or terminates
// in a targeting decision.
type NodeKind string

// Predefined node kinds
const (
	// NodeSubdivision is an internal node that partitions by one facet
	NodeSubdivision NodeKind = "SUBDIVISION"

	// NodeLeaf is a terminal node carrying an include/exclude decision
	NodeLeaf NodeKind = "LEAF"
)

// Decision is the terminal targeting outcome carried by a leaf node.
// A zero Decision is an inclusion with no bid.
type Decision struct {
	// Negative marks the matched items as excluded from targeting
	Negative bool

	// BidMicros is the cost-per-click bid in micros; meaningful only for
	// inclusions
	BidMicros int64
}

// Include returns an inclusion decision with the given bid in micros.
func Include(bidMicros int64) Decision {
	return Decision{BidMicros: bidMicros}
}

// Exclude returns an exclusion decision.
func Exclude() Decision {
	return Decision{Negative: true}
}

// Equal reports whether two decisions have the same targeting effect.
// Bids are only compared for inclusions.
func (d Decision) Equal(other Decision) bool {
	if d.Negative != other.Negative {
		return false
	}
	if d.Negative {
		return true
	}
	return d.BidMicros == other.BidMicros
}

// String returns a short human-readable form, e.g. "include(bid=200000)".
func (d Decision) String() string {
	if d.Negative {
		return "exclude"
	}
	return fmt.Sprintf("include(bid=%d)", d.BidMicros)
}

// CaseValue is the value a node matches on its parent's partition facet.
// A Remainder case matches everything its siblings do not.
type CaseValue struct {
	// Facet is the partition dimension this case belongs to
	Facet Facet

	// Value is the matched facet value; empty for the Remainder case
	Value string

	// Remainder marks the catch-all case covering all unmatched values
	Remainder bool
}

// NormalizeValue lower-cases a facet value for case-insensitive comparison.
// The remote service treats differently-cased duplicates as conflicting
// creates, so all value equality during planning goes through this form.
func NormalizeValue(v string) string {
	return strings.ToLower(v)
}

// NodeRecord is the flat wire representation of one tree node as returned by
// the remote query interface.
type NodeRecord struct {
	// ResourceID is the stable remote identifier of the node
	ResourceID string

	// ParentID is the resource identifier of the parent node; empty for
	// the root
	ParentID string

	// Kind is the node kind (subdivision or leaf)
	Kind NodeKind

	// Case is the matched facet value; nil for the root
	Case *CaseValue

	// Decision is the targeting decision; meaningful only for leaves
	Decision Decision
}

// OpType identifies a mutate operation type.
type OpType string

// Predefined operation types
const (
	// OpCreate creates a node, possibly referencing a placeholder parent
	OpCreate OpType = "CREATE"

	// OpUpdate updates the decision of an existing leaf
	OpUpdate OpType = "UPDATE"

	// OpRemove removes a node by identifier; removing a subdivision
	// cascades to its children
	OpRemove OpType = "REMOVE"
)

// Operation is one entry of an atomic mutate batch submitted to the remote
// service.
type Operation struct {
	// Type is the operation type
	Type OpType

	// TempRef is the placeholder reference assigned to a created node,
	// a negative integer rendered as a string (e.g. "-1"). Set only for
	// creates.
	TempRef string

	// ParentRef is the parent reference for creates: either a committed
	// resource identifier or a placeholder; empty when creating the root.
	ParentRef string

	// Kind is the created node kind
	Kind NodeKind

	// Case is the created node's matched facet value; nil for the root
	Case *CaseValue

	// Decision is the decision for created leaves and for updates
	Decision Decision

	// ResourceID identifies the target of updates and removes
	ResourceID string
}

// Batch is one atomic set of operations. The remote service applies a batch
// all-or-nothing.
type Batch struct {
	// Ops are the operations in submission order
	Ops []Operation
}

// MutateResult is the successful outcome of one batch submission.
type MutateResult struct {
	// Created holds the real resource identifiers of created nodes in
	// request order; non-create operations contribute no entry
	Created []string
}

// PathStep selects one subdivision level to descend through (creating it if
// absent) on the way to the target level.
type PathStep struct {
	// Facet is the partition facet of this level
	Facet Facet

	// Value is the facet value to descend through
	Value string

	// Remainder is the decision for the catch-all leaf created when this
	// level is introduced fresh
	Remainder Decision
}

// IncludeTarget is one facet value to include with its bid.
type IncludeTarget struct {
	// Value is the facet value to include
	Value string

	// BidMicros is the cost-per-click bid in micros
	BidMicros int64
}

// TargetSet is the desired outcome for one targeting scope. Decisions already
// present in the remote tree and not named here are preserved.
type TargetSet struct {
	// Path lists the subdivision levels to descend through from the root,
	// outermost first
	Path []PathStep

	// Facet is the partition facet of the final level, where the include
	// and exclude values live
	Facet Facet

	// Include lists facet values to include, each with a bid
	Include []IncludeTarget

	// Exclude lists facet values to exclude
	Exclude []string

	// Remainder is the decision for the final level's catch-all leaf when
	// that level is created fresh
	Remainder Decision

	// Rebuild drops any existing tree before planning, rebuilding the
	// scope from scratch instead of merging
	Rebuild bool
}

// Unit is one unit of reconciliation work: a targeting scope plus its
// desired state.
type Unit struct {
	// Scope is the targeting scope identifier (one ad group)
	Scope string

	// Target is the desired state for the scope
	Target TargetSet
}

// UnitState is a reconciliation unit's position in its lifecycle.
type UnitState string

// Unit lifecycle states
const (
	// UnitPending means the unit has not started
	UnitPending UnitState = "PENDING"

	// UnitReading means the remote snapshot is being fetched
	UnitReading UnitState = "READING"

	// UnitPlanning means the delta is being computed
	UnitPlanning UnitState = "PLANNING"

	// UnitExecuting means planned batches are being submitted
	UnitExecuting UnitState = "EXECUTING"

	// UnitCommitted means every planned batch committed
	UnitCommitted UnitState = "COMMITTED"

	// UnitFailed means the unit ended with a classified error
	UnitFailed UnitState = "FAILED"
)

// UnitOutcome is the final status of one reconciliation unit.
type UnitOutcome struct {
	// Scope is the targeting scope identifier
	Scope string

	// State is the terminal state: UnitCommitted or UnitFailed
	State UnitState

	// Reason is the error classification code when the unit failed
	Reason string

	// Detail is the human-readable failure detail when the unit failed
	Detail string

	// Created is the number of nodes created
	Created int

	// Removed is the number of nodes removed
	Removed int

	// Updated is the number of leaf decisions updated in place
	Updated int

	// Batches is the number of batches submitted
	Batches int

	// Retries is the number of submissions beyond each batch's first
	// attempt
	Retries int

	// Duration is how long the unit took
	Duration time.Duration
}

// Committed reports whether the unit ended successfully.
func (o UnitOutcome) Committed() bool {
	return o.State == UnitCommitted
}

// RunResult summarizes one reconciliation run over many units.
type RunResult struct {
	// RunID identifies the run across restarts
	RunID string

	// Outcomes holds per-unit outcomes in work-queue order
	Outcomes []UnitOutcome

	// Committed is the number of units that committed
	Committed int

	// Failed is the number of units that failed
	Failed int

	// Skipped is the number of units skipped because a checkpoint already
	// covered them
	Skipped int

	// Duration is how long the run took
	Duration time.Duration
}

// Checkpoint records run progress so a restart resumes from the first
// unprocessed unit. It is only consistent at unit boundaries.
type Checkpoint struct {
	// RunID identifies the run this checkpoint belongs to
	RunID string `json:"run_id"`

	// NextUnit is the index of the first unit not yet processed
	NextUnit int `json:"next_unit"`

	// Outcomes holds the outcomes accumulated so far
	Outcomes []UnitOutcome `json:"outcomes"`

	// UpdatedAt is when the checkpoint was written
	UpdatedAt time.Time `json:"updated_at"`
}

// CheckpointStore persists run progress across process restarts.
type CheckpointStore interface {
	// Load returns the most recent checkpoint, or (nil, nil) when none
	// exists.
	Load() (*Checkpoint, error)

	// Save persists the checkpoint, replacing any previous one.
	Save(cp *Checkpoint) error
}

// ClientConfig holds the client configuration applied by options.
type ClientConfig struct {
	// Logger receives structured operation logs
	Logger *slog.Logger

	// MaxAttempts bounds submissions per batch, including the first
	MaxAttempts int

	// InitialBackoff is the first retry delay for retryable failures
	InitialBackoff time.Duration

	// MaxBackoff caps the retry delay
	MaxBackoff time.Duration

	// RequestDelay is the minimum pause between successive successful
	// batch submissions
	RequestDelay time.Duration

	// UnitDelay is the pause between units
	UnitDelay time.Duration

	// CallTimeout bounds each remote call; zero means no timeout
	CallTimeout time.Duration

	// CheckpointStore persists run progress; nil disables checkpointing
	CheckpointStore CheckpointStore

	// CheckpointInterval is the number of processed units between
	// checkpoint saves
	CheckpointInterval int

	// Registerer receives prometheus collectors; nil disables metrics
	Registerer prometheus.Registerer
}

// Option configures the client.
type Option func(*ClientConfig)

// PlanSummary describes a computed plan without executing it.
type PlanSummary struct {
	// Scope is the targeting scope the plan applies to
	Scope string

	// Batches are the planned batches in submission order
	Batches []Batch

	// Created is the number of nodes the plan would create
	Created int

	// Removed is the number of nodes the plan would remove
	Removed int

	// Updated is the number of leaf decisions the plan would update
	Updated int
}

// Empty reports whether the plan contains no operations, meaning the remote
// tree already matches the target set.
func (p PlanSummary) Empty() bool {
	return len(p.Batches) == 0
}
