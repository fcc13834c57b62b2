package cellar

import (
	"strings"

	"github.com/your-org/cellar/internal/models"
)

// FindMatch picks the stored wine a label most likely refers to. It tries, in
// order: name+producer+vintage, name+vintage, name+producer (all exact,
// case-insensitive), then a name substring preferring the same vintage and
// the newest record. It returns nil when nothing matches.
func FindMatch(wines []models.Wine, name, producer string, vintage *int) *models.Wine {
	name = strings.TrimSpace(name)
	producer = strings.TrimSpace(producer)
	if name == "" {
		return nil
	}

	sameName := func(w *models.Wine) bool { return strings.EqualFold(w.Name, name) }
	sameProducer := func(w *models.Wine) bool { return strings.EqualFold(w.Producer, producer) }
	sameVintage := func(w *models.Wine) bool { return vintage != nil && w.Vintage != nil && *w.Vintage == *vintage }

	first := func(pred func(w *models.Wine) bool) *models.Wine {
		var best *models.Wine
		for i := range wines {
			w := &wines[i]
			if pred(w) && (best == nil || w.ID < best.ID) {
				best = w
			}
		}
		return best
	}

	if producer != "" && vintage != nil {
		if w := first(func(w *models.Wine) bool { return sameName(w) && sameProducer(w) && sameVintage(w) }); w != nil {
			return w
		}
	}
	if vintage != nil {
		if w := first(func(w *models.Wine) bool { return sameName(w) && sameVintage(w) }); w != nil {
			return w
		}
	}
	if producer != "" {
		if w := first(func(w *models.Wine) bool { return sameName(w) && sameProducer(w) }); w != nil {
			return w
		}
	}

	needle := strings.ToLower(name)
	var best *models.Wine
	for i := range wines {
		w := &wines[i]
		if !strings.Contains(strings.ToLower(w.Name), needle) {
			continue
		}
		if best == nil || fuzzyBetter(w, best, sameVintage) {
			best = w
		}
	}
	return best
}

func fuzzyBetter(a, b *models.Wine, sameVintage func(*models.Wine) bool) bool {
	if va, vb := sameVintage(a), sameVintage(b); va != vb {
		return va
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
