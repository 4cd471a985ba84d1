package pareto

import "plantoee/backend/services/oee-monitor/internal/models"

// Uncategorized groups microstops recorded without a reason.
const Uncategorized = "Unkategorisiert"

// Entry is one reason with its accumulated duration in seconds.
type Entry struct {
	Reason   string
	Duration float64
}

// GroupedDurations maps reason to accumulated seconds and remembers the order in which
// reasons were first seen, so ties rank deterministically.
type GroupedDurations struct {
	reasons []string
	totals  map[string]float64
}

// NewGroupedDurations returns an empty mapping.
func NewGroupedDurations() *GroupedDurations {
	return &GroupedDurations{totals: make(map[string]float64)}
}

// Add accumulates seconds under reason. Negative values are ignored.
func (g *GroupedDurations) Add(reason string, seconds float64) {
	if reason == "" {
		reason = Uncategorized
	}
	if seconds < 0 {
		seconds = 0
	}
	if _, ok := g.totals[reason]; !ok {
		g.reasons = append(g.reasons, reason)
	}
	g.totals[reason] += seconds
}

// Get returns the accumulated seconds for reason.
func (g *GroupedDurations) Get(reason string) float64 {
	return g.totals[reason]
}

// Len returns the number of distinct reasons.
func (g *GroupedDurations) Len() int {
	if g == nil {
		return 0
	}
	return len(g.reasons)
}

// Entries returns the reasons in first-seen order.
func (g *GroupedDurations) Entries() []Entry {
	if g == nil {
		return nil
	}
	out := make([]Entry, 0, len(g.reasons))
	for _, r := range g.reasons {
		out = append(out, Entry{Reason: r, Duration: g.totals[r]})
	}
	return out
}

// GroupByReason sums record durations per reason, in record order.
func GroupByReason(records []models.MicrostopRecord) *GroupedDurations {
	g := NewGroupedDurations()
	for _, rec := range records {
		g.Add(rec.Reason, rec.Duration())
	}
	return g
}
