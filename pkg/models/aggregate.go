package models

// AggregateUpdate is the derived view of a run's results: how many responses
// each probe has received and the summed usage cost so far. Every update
// carries the full current state rather than a diff, so any observer's view is
// self-consistent no matter when it attached.
type AggregateUpdate struct {
	ProbeCounts   map[int64]int `json:"probe_counts"`
	TotalCost     float64       `json:"total_cost"`
	ResponseCount int           `json:"response_count"`
}

// NewAggregateUpdate returns an empty aggregate. A run with no results yields
// this, not an error.
func NewAggregateUpdate() AggregateUpdate {
	return AggregateUpdate{ProbeCounts: make(map[int64]int)}
}

// Add folds one result event into the aggregate. Counting and addition are
// commutative, so ingestion order does not affect the final state.
func (a *AggregateUpdate) Add(probeID int64, usageCost float64) {
	if a.ProbeCounts == nil {
		a.ProbeCounts = make(map[int64]int)
	}
	a.ProbeCounts[probeID]++
	a.TotalCost += usageCost
	a.ResponseCount++
}

// Clone returns an independent copy, so a snapshot handed to one observer is
// never mutated by later ingestion.
func (a AggregateUpdate) Clone() AggregateUpdate {
	counts := make(map[int64]int, len(a.ProbeCounts))
	for k, v := range a.ProbeCounts {
		counts[k] = v
	}
	return AggregateUpdate{
		ProbeCounts:   counts,
		TotalCost:     a.TotalCost,
		ResponseCount: a.ResponseCount,
	}
}
