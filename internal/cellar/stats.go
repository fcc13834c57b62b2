package cellar

import (
	"sort"

	"github.com/your-org/cellar/internal/models"
)

// ComputeStats aggregates the whole collection as of year.
func ComputeStats(wines []models.Wine, year int) models.Stats {
	st := models.Stats{
		TotalWines: len(wines),
		ByCountry:  []models.GroupCount{},
		ByStyle:    []models.GroupCount{},
	}
	countries := map[string]int{}
	styles := map[string]int{}

	for i := range wines {
		w := &wines[i]
		st.TotalBottles += w.Quantity
		if w.ReadyIn(year) {
			st.ReadyToDrink++
		}
		if w.CellaringIn(year) {
			st.NeedsCellaring++
		}
		if w.Country != "" {
			countries[w.Country] += w.Quantity
		}
		if w.Style != "" {
			styles[w.Style] += w.Quantity
		}
	}

	st.ByCountry = groupCounts(countries)
	st.ByStyle = groupCounts(styles)
	return st
}

func groupCounts(m map[string]int) []models.GroupCount {
	out := make([]models.GroupCount, 0, len(m))
	for v, n := range m {
		out = append(out, models.GroupCount{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}
