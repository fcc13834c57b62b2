package models

import (
	"encoding/json"
	"errors"
	"net/url"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseTastingNotes(t *testing.T) {
	in := "Aromas: cherry, , violet \n" +
		"BODY: Full\n" +
		"Colour: ruby\n" +
		"just some text\n" +
		"\n" +
		"Finish: Short\n" +
		"finish: Long\n" +
		"Flavors: plum,tar"

	got := ParseTastingNotes(in)
	want := TastingNotes{
		Aromas:  []string{"cherry", "violet"},
		Flavors: []string{"plum", "tar"},
		Body:    "Full",
		Finish:  "Long",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestTastingNotesTextRoundTrip(t *testing.T) {
	n := TastingNotes{
		Aromas:  []string{"rose", "tar"},
		Body:    "Full",
		Tannins: "High",
		Acidity: "Medium",
	}

	text := n.Text()
	want := "Aromas: rose, tar\nBody: Full\nTannins: High\nAcidity: Medium"
	if text != want {
		t.Fatalf("expected %q, got %q", want, text)
	}
	if back := ParseTastingNotes(text); !reflect.DeepEqual(back, n) {
		t.Fatalf("round trip mismatch: %+v", back)
	}
	if !(TastingNotes{}).IsEmpty() {
		t.Error("zero notes should be empty")
	}
}

func TestWinePatchAbsentVersusNull(t *testing.T) {
	var p WinePatch
	if err := json.Unmarshal([]byte(`{"producer": null, "vintage": 2015, "price": "12.50"}`), &p); err != nil {
		t.Fatal(err)
	}

	if p.Name.Set {
		t.Error("name should be absent")
	}
	if !p.Producer.Set || p.Producer.Value != nil {
		t.Error("producer should be set to null")
	}
	if !p.Vintage.Set || *p.Vintage.Value != 2015 {
		t.Error("vintage should be 2015")
	}

	f := WineFields{Name: "Barolo", Producer: "Conterno", Quantity: 2}
	p.Apply(&f)

	if f.Name != "Barolo" || f.Producer != "" || *f.Vintage != 2015 || f.Quantity != 2 {
		t.Fatalf("unexpected fields after apply: %+v", f)
	}
	if !f.Price.Valid || !f.Price.Decimal.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected price %v", f.Price)
	}
}

func TestWinePatchMarshalOnlySetFields(t *testing.T) {
	p := WinePatch{Name: Some("Chablis"), Score: Null[int]()}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"name":"Chablis","score":null}` {
		t.Fatalf("unexpected encoding %s", data)
	}
	if (&WinePatch{}).Empty() != true {
		t.Error("zero patch should be empty")
	}
}

func TestPatchFromRestoresFields(t *testing.T) {
	vintage := 2019
	src := WineFields{
		Name:           "Sancerre",
		Vintage:        &vintage,
		Style:          StyleWhite,
		GrapeVarieties: []string{"Sauvignon Blanc"},
		Quantity:       3,
		Price:          decimal.NewNullDecimal(decimal.RequireFromString("24.00")),
		PriceCurrency:  "EUR",
		TastingNotes:   TastingNotes{Acidity: "High"},
	}

	var dst WineFields
	p := PatchFrom(src)
	p.Apply(&dst)

	if !reflect.DeepEqual(src, dst) {
		t.Fatalf("expected %+v, got %+v", src, dst)
	}
}

func TestValidate(t *testing.T) {
	start, end := 2030, 2025
	score := 120

	tests := []struct {
		name   string
		fields WineFields
	}{
		{"empty name", WineFields{Name: "  ", Quantity: 1}},
		{"negative quantity", WineFields{Name: "x", Quantity: -1}},
		{"score range", WineFields{Name: "x", Score: &score}},
		{"inverted window", WineFields{Name: "x", DrinkingWindowStart: &start, DrinkingWindowEnd: &end}},
		{"window start only", WineFields{Name: "x", DrinkingWindowStart: &end}},
		{"window end only", WineFields{Name: "x", DrinkingWindowEnd: &start}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fields.Validate(); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	ok := NewWineFields()
	ok.Name = "Rioja"
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReadyAndCellaring(t *testing.T) {
	start, end := 2020, 2030
	f := WineFields{DrinkingWindowStart: &start, DrinkingWindowEnd: &end}

	if !f.ReadyIn(2020) || !f.ReadyIn(2030) || f.ReadyIn(2031) {
		t.Error("window bounds should be inclusive")
	}
	if !f.CellaringIn(2019) || f.CellaringIn(2020) {
		t.Error("cellaring means start strictly in the future")
	}

	open := WineFields{DrinkingWindowStart: &start}
	if open.ReadyIn(2025) {
		t.Error("a one-sided window is never ready")
	}
}

func TestCanonicalStyle(t *testing.T) {
	if s, ok := CanonicalStyle("rose"); !ok || s != StyleRose {
		t.Errorf("expected Rosé, got %q", s)
	}
	if s, ok := CanonicalStyle(" red "); !ok || s != StyleRed {
		t.Errorf("expected Red, got %q", s)
	}
	if _, ok := CanonicalStyle("Orange"); ok {
		t.Error("orange is not a known style")
	}
}

func TestMatchLevelKnown(t *testing.T) {
	if !MatchPerfect.Known() || MatchLevel("sublime").Known() {
		t.Error("unexpected known set")
	}
}

func TestParseWineQuery(t *testing.T) {
	v, _ := url.ParseQuery("search=+barolo+&style=Red&vintage_min=2010&drinking_now=on&sort_by=price&sort_order=DESC")
	q, err := ParseWineQuery(v)
	if err != nil {
		t.Fatal(err)
	}
	if q.Filter.Search != "barolo" || q.Filter.Style != "Red" || *q.Filter.VintageMin != 2010 || q.Filter.VintageMax != nil {
		t.Fatalf("unexpected filter %+v", q.Filter)
	}
	if !q.Filter.DrinkingNow || q.SortField() != SortPrice || !q.Descending() {
		t.Fatalf("unexpected query %+v", q)
	}
	if got := q.Values().Encode(); got != "drinking_now=true&search=barolo&sort_by=price&sort_order=DESC&style=Red&vintage_min=2010" {
		t.Fatalf("unexpected encoding %s", got)
	}

	v, _ = url.ParseQuery("vintage_max=soon")
	if _, err := ParseWineQuery(v); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if (WineQuery{SortBy: "colour"}).SortField() != SortName {
		t.Error("unknown sort field should fall back to name")
	}
}
