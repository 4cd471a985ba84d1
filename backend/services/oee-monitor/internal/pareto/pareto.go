package pareto

import (
	"sort"

	"plantoee/backend/services/oee-monitor/internal/models"
)

// DefaultTopN is the number of reasons kept in a result.
const DefaultTopN = 5

// Recompute ranks reasons by duration, keeps the topN and builds the cumulative
// percentage curve over that slice. Equal durations keep first-seen order. A zero
// total yields an empty result.
func Recompute(grouped *GroupedDurations, topN int) models.ParetoResult {
	if topN <= 0 {
		topN = DefaultTopN
	}
	entries := grouped.Entries()
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Duration > entries[j].Duration
	})
	if len(entries) > topN {
		entries = entries[:topN]
	}

	var total float64
	for _, e := range entries {
		total += e.Duration
	}
	if total <= 0 {
		return models.EmptyParetoResult()
	}

	res := models.ParetoResult{
		Labels:     make([]string, len(entries)),
		Values:     make([]float64, len(entries)),
		Cumulative: make([]float64, len(entries)),
	}
	var running float64
	for i, e := range entries {
		running += e.Duration
		res.Labels[i] = e.Reason
		res.Values[i] = e.Duration
		res.Cumulative[i] = running * 100 / total
	}
	res.Cumulative[len(entries)-1] = 100
	return res
}
