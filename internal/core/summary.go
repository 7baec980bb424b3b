package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"name"`
	Amount Money  `json:"amount"`
}

// MonthOverview is a compact summary for a specific year+month.
type MonthOverview struct {
	Year       int              `json:"year"`
	Month      int              `json:"month"` // 1-12
	Total      Money            `json:"total"`
	ByCategory []CategoryAmount `json:"byCategory"`
}

// Summarize aggregates expenses falling in year+month. Categories keep the
// order of first appearance.
func Summarize(year, month int, items []Expense) MonthOverview {
	ov := MonthOverview{Year: year, Month: month, ByCategory: []CategoryAmount{}}
	idx := map[string]int{}
	for _, e := range items {
		if e.Date.Year() != year || e.Date.Month() != month {
			continue
		}
		ov.Total = ov.Total.Add(e.Amount)
		i, ok := idx[e.Category]
		if !ok {
			i = len(ov.ByCategory)
			idx[e.Category] = i
			ov.ByCategory = append(ov.ByCategory, CategoryAmount{Name: e.Category})
		}
		ov.ByCategory[i].Amount = ov.ByCategory[i].Amount.Add(e.Amount)
	}
	return ov
}
