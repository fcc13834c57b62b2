package ai

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/your-org/cellar/internal/models"
)

const unknownWineName = "Unknown Wine"

// extractObject decodes the first JSON object in a model reply, skipping any
// markdown fence or prose around it.
func extractObject(reply string) (map[string]any, error) {
	start := strings.IndexByte(reply, '{')
	if start < 0 {
		return nil, errors.New("no JSON object in reply")
	}
	var raw map[string]any
	dec := json.NewDecoder(strings.NewReader(reply[start:]))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func cleanCandidate(raw map[string]any) *models.Candidate {
	if msg := str(raw["error"]); msg != "" {
		return models.ErrorCandidate(msg)
	}

	c := &models.Candidate{WineFields: models.NewWineFields()}
	c.Name = str(raw["name"])
	if c.Name == "" {
		c.Name = unknownWineName
	}
	c.Producer = str(raw["producer"])
	c.Country = str(raw["country"])
	c.Region = str(raw["region"])
	c.Appellation = str(raw["appellation"])
	c.Description = str(raw["description"])
	if s, ok := models.CanonicalStyle(str(raw["style"])); ok {
		c.Style = s
	}

	c.Vintage = intInRange(raw["vintage"], 1800, 2100)
	c.DrinkingWindowStart = intInRange(raw["drinking_window_start"], 1900, 2200)
	c.DrinkingWindowEnd = intInRange(raw["drinking_window_end"], 1900, 2200)
	if !c.HasWindow() {
		c.DrinkingWindowStart, c.DrinkingWindowEnd = nil, nil
	}
	c.Score = intInRange(raw["score"], 0, 100)
	if f, ok := num(raw["alcohol_percentage"]); ok && f >= 0 && f <= 100 {
		c.AlcoholPercentage = &f
	}

	c.GrapeVarieties = strList(raw["grape_varieties"])
	if notes, ok := raw["tasting_notes"].(map[string]any); ok {
		c.TastingNotes = models.TastingNotes{
			Aromas:  strList(notes["aromas"]),
			Flavors: strList(notes["flavors"]),
			Body:    str(notes["body"]),
			Tannins: str(notes["tannins"]),
			Acidity: str(notes["acidity"]),
			Finish:  str(notes["finish"]),
		}
		if len(c.TastingNotes.Aromas) == 0 {
			c.TastingNotes.Aromas = nil
		}
		if len(c.TastingNotes.Flavors) == 0 {
			c.TastingNotes.Flavors = nil
		}
	}

	// the flag follows the questions; a flag with nothing to ask is dropped
	c.ClarificationQuestions = strList(raw["clarification_questions"])
	c.NeedsClarification = c.AwaitsClarification()
	return c
}

func cleanIdentification(raw map[string]any) *models.Identification {
	if msg := str(raw["error"]); msg != "" {
		return &models.Identification{Error: msg}
	}
	id := &models.Identification{
		Name:     str(raw["name"]),
		Producer: str(raw["producer"]),
		Vintage:  intInRange(raw["vintage"], 1800, 2100),
	}
	if id.Name == "" {
		return &models.Identification{Error: "Cannot identify wine"}
	}
	return id
}

func cleanPairing(raw map[string]any, collection []models.Wine) *models.PairingResult {
	if msg := str(raw["error"]); msg != "" {
		return &models.PairingResult{Error: msg}
	}

	byID := make(map[int64]models.Wine, len(collection))
	for _, w := range collection {
		byID[w.ID] = w
	}

	res := &models.PairingResult{Suggestions: []models.PairingSuggestion{}, Tip: str(raw["tip"])}
	items, _ := raw["suggestions"].([]any)
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		id, ok := num(m["wine_id"])
		if !ok {
			continue
		}
		w, ok := byID[int64(id)]
		if !ok {
			continue
		}
		res.Suggestions = append(res.Suggestions, models.PairingSuggestion{
			WineID:     w.ID,
			WineName:   w.Name,
			Vintage:    w.Vintage,
			MatchLevel: models.MatchLevel(strings.ToLower(str(m["match_level"]))),
			Why:        str(m["why"]),
		})
	}
	return res
}

// str returns a trimmed string value, or "" for anything that is not a string.
func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func strList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		var s string
		switch t := it.(type) {
		case string:
			s = strings.TrimSpace(t)
		case json.Number:
			s = t.String()
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// num accepts JSON numbers and numeric strings.
func num(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil && !math.IsNaN(f)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil && !math.IsNaN(f)
	}
	return 0, false
}

// intInRange truncates v to an integer and keeps it only inside [lo, hi].
func intInRange(v any, lo, hi int) *int {
	f, ok := num(v)
	if !ok || f < float64(lo) || f >= float64(hi)+1 {
		return nil
	}
	n := int(math.Trunc(f))
	return &n
}
