package feed

import (
	"slices"
	"sort"

	"finboard/internal/core"
)

// sortByDateDesc orders items newest first; equal dates keep their order.
func sortByDateDesc(items []core.Expense) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Date.After(items[j].Date.Time)
	})
}

func indexOf(items []core.Expense, id string) int {
	return slices.IndexFunc(items, func(e core.Expense) bool { return e.ID == id })
}

// upsert replaces the record with e's id or appends e.
func upsert(items []core.Expense, e core.Expense) []core.Expense {
	if i := indexOf(items, e.ID); i >= 0 {
		items[i] = e
		return items
	}
	return append(items, e)
}

// mergePage folds a fetched page into items. Records confirmed locally while
// the page was in flight override the page's copy; ids deleted meanwhile are
// dropped.
func mergePage(items, page []core.Expense, touched map[string]core.Expense, removed map[string]struct{}) []core.Expense {
	for _, e := range page {
		if _, gone := removed[e.ID]; gone {
			continue
		}
		if local, ok := touched[e.ID]; ok {
			e = local
		}
		items = upsert(items, e)
	}
	sortByDateDesc(items)
	return items
}

func distinctCategories(items []core.Expense) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, e := range items {
		if _, ok := seen[e.Category]; ok {
			continue
		}
		seen[e.Category] = struct{}{}
		out = append(out, e.Category)
	}
	sort.Strings(out)
	return out
}
