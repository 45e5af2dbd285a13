package driver

import "github.com/feedops/listingsync/treetypes"

var unitTransitions = map[treetypes.UnitState]map[treetypes.UnitState]bool{
	treetypes.UnitPending: {
		treetypes.UnitReading: true,
	},
	treetypes.UnitReading: {
		treetypes.UnitPlanning: true,
		treetypes.UnitFailed:   true,
	},
	treetypes.UnitPlanning: {
		treetypes.UnitExecuting: true,
		treetypes.UnitCommitted: true,
		treetypes.UnitFailed:    true,
	},
	treetypes.UnitExecuting: {
		treetypes.UnitCommitted: true,
		treetypes.UnitFailed:    true,
	},
}

// CanTransition reports whether a unit may move between the two states.
// Self-transitions are allowed.
func CanTransition(from, to treetypes.UnitState) bool {
	if from == to {
		return true
	}
	return unitTransitions[from][to]
}
