package models

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Sort fields accepted by the list query.
const (
	SortName        = "name"
	SortVintage     = "vintage"
	SortScore       = "score"
	SortPrice       = "price"
	SortQuantity    = "quantity"
	SortWindowStart = "drinking_window_start"
	SortCreatedAt   = "created_at"
)

var sortFields = map[string]bool{
	SortName: true, SortVintage: true, SortScore: true, SortPrice: true,
	SortQuantity: true, SortWindowStart: true, SortCreatedAt: true,
}

// WineFilter predicates are ANDed; zero values disable a predicate.
type WineFilter struct {
	Search      string
	Style       string
	Country     string
	Region      string
	VintageMin  *int
	VintageMax  *int
	DrinkingNow bool
	// Year is the current year used by DrinkingNow.
	Year int
}

type WineQuery struct {
	Filter    WineFilter
	SortBy    string
	SortOrder string
}

// SortField returns a whitelisted sort column, defaulting to name.
func (q WineQuery) SortField() string {
	if sortFields[q.SortBy] {
		return q.SortBy
	}
	return SortName
}

// Descending reports whether the order is "desc" (any case).
func (q WineQuery) Descending() bool {
	return strings.EqualFold(q.SortOrder, "desc")
}

// ParseWineQuery reads the list query parameters. Blank values are ignored;
// drinking_now is enabled by "true", "1" or "on".
func ParseWineQuery(v url.Values) (WineQuery, error) {
	q := WineQuery{
		Filter: WineFilter{
			Search:  strings.TrimSpace(v.Get("search")),
			Style:   strings.TrimSpace(v.Get("style")),
			Country: strings.TrimSpace(v.Get("country")),
			Region:  strings.TrimSpace(v.Get("region")),
		},
		SortBy:    v.Get("sort_by"),
		SortOrder: v.Get("sort_order"),
	}
	switch strings.ToLower(v.Get("drinking_now")) {
	case "true", "1", "on":
		q.Filter.DrinkingNow = true
	}

	var err error
	if q.Filter.VintageMin, err = optionalInt(v, "vintage_min"); err != nil {
		return q, err
	}
	if q.Filter.VintageMax, err = optionalInt(v, "vintage_max"); err != nil {
		return q, err
	}
	return q, nil
}

// Values encodes q back into query parameters, omitting defaults.
func (q WineQuery) Values() url.Values {
	v := url.Values{}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set("search", q.Filter.Search)
	set("style", q.Filter.Style)
	set("country", q.Filter.Country)
	set("region", q.Filter.Region)
	if q.Filter.VintageMin != nil {
		v.Set("vintage_min", strconv.Itoa(*q.Filter.VintageMin))
	}
	if q.Filter.VintageMax != nil {
		v.Set("vintage_max", strconv.Itoa(*q.Filter.VintageMax))
	}
	if q.Filter.DrinkingNow {
		v.Set("drinking_now", "true")
	}
	set("sort_by", q.SortBy)
	set("sort_order", q.SortOrder)
	return v
}

func optionalInt(v url.Values, key string) (*int, error) {
	s := strings.TrimSpace(v.Get(key))
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a year", ErrValidation, key)
	}
	return &n, nil
}

type GroupCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

type Stats struct {
	TotalBottles   int          `json:"total_bottles"`
	TotalWines     int          `json:"total_wines"`
	ReadyToDrink   int          `json:"ready_to_drink"`
	NeedsCellaring int          `json:"needs_cellaring"`
	ByCountry      []GroupCount `json:"by_country"`
	ByStyle        []GroupCount `json:"by_style"`
}
