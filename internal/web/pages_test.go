package web

import (
	"errors"
	"net/url"
	"reflect"
	"testing"

	"github.com/your-org/cellar/internal/models"
)

func TestCountryOptions(t *testing.T) {
	wines := []models.Wine{
		{WineFields: models.WineFields{Country: "Italy"}},
		{WineFields: models.WineFields{Country: ""}},
		{WineFields: models.WineFields{Country: "France"}},
		{WineFields: models.WineFields{Country: "Italy"}},
	}
	if got := CountryOptions(wines); !reflect.DeepEqual(got, []string{"France", "Italy"}) {
		t.Fatalf("unexpected options %v", got)
	}
	if got := CountryOptions(nil); len(got) != 0 {
		t.Fatalf("expected no options, got %v", got)
	}
}

func TestImageURL(t *testing.T) {
	tests := map[string]string{
		"":                               "",
		"uploads/a.jpg":                  "/static/uploads/a.jpg",
		"/uploads/a.jpg":                 "/static/uploads/a.jpg",
		"https://cdn.example.com/a.jpg":  "https://cdn.example.com/a.jpg",
		"http://localhost:9000/b/a.webp": "http://localhost:9000/b/a.webp",
	}
	for in, want := range tests {
		if got := ImageURL(in); got != want {
			t.Errorf("ImageURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMatchClass(t *testing.T) {
	if got := MatchClass(models.MatchGood); got != "match-good" {
		t.Errorf("unexpected class %q", got)
	}
	if got := MatchClass(`" onmouseover="x`); got != "match-neutral" {
		t.Errorf("unknown level should be neutral, got %q", got)
	}
}

func TestPatchFromForm(t *testing.T) {
	form := url.Values{
		"name":                  {"  Barolo "},
		"vintage":               {"2015"},
		"score":                 {""},
		"quantity":              {""},
		"price":                 {"49.90"},
		"grape_varieties":       {"Nebbiolo, , "},
		"tasting_notes":         {"Body: Full"},
		"image_path":            {"uploads/x.jpg"},
		"alcohol_percentage":    {"14.5"},
		"drinking_window_start": {"2025"},
	}

	p, err := PatchFromForm(form, false)
	if err != nil {
		t.Fatal(err)
	}
	if p.ImagePath.Set {
		t.Error("edits must not touch the image")
	}

	f := models.NewWineFields()
	score := 90
	f.Score = &score
	p.Apply(&f)

	if p.Quantity.Set {
		t.Error("a blank quantity must leave the count alone")
	}
	if f.Name != "Barolo" || *f.Vintage != 2015 || f.Score != nil || f.Quantity != models.DefaultQuantity {
		t.Fatalf("unexpected fields %+v", f)
	}
	if f.Price.Decimal.String() != "49.9" || *f.AlcoholPercentage != 14.5 || *f.DrinkingWindowStart != 2025 || f.DrinkingWindowEnd != nil {
		t.Fatalf("unexpected numbers %+v", f)
	}
	if !reflect.DeepEqual(f.GrapeVarieties, []string{"Nebbiolo"}) || f.TastingNotes.Body != "Full" {
		t.Fatalf("unexpected lists %+v", f)
	}

	created, err := PatchFromForm(form, true)
	if err != nil {
		t.Fatal(err)
	}
	if created.ImagePath.Value == nil || *created.ImagePath.Value != "uploads/x.jpg" {
		t.Error("create keeps the uploaded image")
	}

	form.Set("vintage", "twenty")
	form.Set("price", "cheap")
	if _, err := PatchFromForm(form, false); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBackTo(t *testing.T) {
	if got := backTo("/?style=Red", "/wines/1"); got != "/?style=Red" {
		t.Errorf("unexpected %q", got)
	}
	for _, bad := range []string{"", "https://evil.example", "//evil.example"} {
		if got := backTo(bad, "/wines/1"); got != "/wines/1" {
			t.Errorf("backTo(%q) = %q", bad, got)
		}
	}
}

func TestTemplatesParse(t *testing.T) {
	p, err := NewPages(nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"index", "detail", "form", "wineform", "scan", "drink", "pair", "error", "header", "footer", "stepper"} {
		if p.tmpl.Lookup(name) == nil {
			t.Errorf("template %q missing", name)
		}
	}
}
