// Package scheduler picks the next ready work item to dispatch, ranking by
// how much downstream work it would unlock.
package scheduler

import (
	"sort"

	"github.com/specq-run/specq/internal/graph"
	"github.com/specq-run/specq/internal/models"
)

var riskOrder = map[models.Risk]int{
	models.RiskLow:    0,
	models.RiskMedium: 1,
	models.RiskHigh:   2,
}

// PickNext selects the next work item to execute.
//
// If targetID is non-empty, it returns that item if (and only if) it is
// currently ready; otherwise it returns the highest-ranked ready item, or
// nil if none are ready. Ranking is by transitive unlock count (desc), then
// declared priority (desc), then risk (asc, low first) — ties broken
// stably by the input order.
func PickNext(items []*models.WorkItem, g *graph.Graph, targetID string) *models.WorkItem {
	if targetID != "" {
		for _, it := range items {
			if it.ID == targetID && it.Status == models.StatusReady {
				return it
			}
		}
		return nil
	}

	var ready []*models.WorkItem
	for _, it := range items {
		if it.Status == models.StatusReady {
			ready = append(ready, it)
		}
	}
	if len(ready) == 0 {
		return nil
	}

	sort.SliceStable(ready, func(i, j int) bool {
		ui, uj := g.TransitiveDependentCount(ready[i].ID), g.TransitiveDependentCount(ready[j].ID)
		if ui != uj {
			return ui > uj
		}
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority > ready[j].Priority
		}
		return riskOrder[ready[i].Risk] < riskOrder[ready[j].Risk]
	})
	return ready[0]
}
