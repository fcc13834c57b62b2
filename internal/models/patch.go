package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Opt is a JSON field that distinguishes "absent" (Set == false) from an
// explicit null (Set == true, Value == nil).
type Opt[T any] struct {
	Set   bool
	Value *T
}

// Some returns a set Opt holding v.
func Some[T any](v T) Opt[T] {
	return Opt[T]{Set: true, Value: &v}
}

// Null returns a set Opt that clears the field.
func Null[T any]() Opt[T] {
	return Opt[T]{Set: true}
}

func (o *Opt[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

// WinePatch is a partial set of WineFields. It is the body of both create and
// update requests: on create it is applied over NewWineFields.
type WinePatch struct {
	Name                Opt[string]          `json:"name"`
	Producer            Opt[string]          `json:"producer"`
	Vintage             Opt[int]             `json:"vintage"`
	Style               Opt[string]          `json:"style"`
	Country             Opt[string]          `json:"country"`
	Region              Opt[string]          `json:"region"`
	Appellation         Opt[string]          `json:"appellation"`
	GrapeVarieties      Opt[[]string]        `json:"grape_varieties"`
	AlcoholPercentage   Opt[float64]         `json:"alcohol_percentage"`
	Quantity            Opt[int]             `json:"quantity"`
	DrinkingWindowStart Opt[int]             `json:"drinking_window_start"`
	DrinkingWindowEnd   Opt[int]             `json:"drinking_window_end"`
	Score               Opt[int]             `json:"score"`
	Price               Opt[decimal.Decimal] `json:"price"`
	PriceCurrency       Opt[string]          `json:"price_currency"`
	Description         Opt[string]          `json:"description"`
	TastingNotes        Opt[TastingNotes]    `json:"tasting_notes"`
	ImagePath           Opt[string]          `json:"image_path"`
	ImageRef            Opt[string]          `json:"image_ref"`
}

// Empty reports whether no field is set.
func (p *WinePatch) Empty() bool {
	return len(p.fields()) == 0
}

// MarshalJSON emits only the set fields so an encoded patch round-trips.
func (p WinePatch) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.fields())
}

func (p *WinePatch) fields() map[string]any {
	m := map[string]any{}
	add := func(key string, set bool, v any) {
		if set {
			m[key] = v
		}
	}
	add("name", p.Name.Set, p.Name)
	add("producer", p.Producer.Set, p.Producer)
	add("vintage", p.Vintage.Set, p.Vintage)
	add("style", p.Style.Set, p.Style)
	add("country", p.Country.Set, p.Country)
	add("region", p.Region.Set, p.Region)
	add("appellation", p.Appellation.Set, p.Appellation)
	add("grape_varieties", p.GrapeVarieties.Set, p.GrapeVarieties)
	add("alcohol_percentage", p.AlcoholPercentage.Set, p.AlcoholPercentage)
	add("quantity", p.Quantity.Set, p.Quantity)
	add("drinking_window_start", p.DrinkingWindowStart.Set, p.DrinkingWindowStart)
	add("drinking_window_end", p.DrinkingWindowEnd.Set, p.DrinkingWindowEnd)
	add("score", p.Score.Set, p.Score)
	add("price", p.Price.Set, p.Price)
	add("price_currency", p.PriceCurrency.Set, p.PriceCurrency)
	add("description", p.Description.Set, p.Description)
	add("tasting_notes", p.TastingNotes.Set, p.TastingNotes)
	add("image_path", p.ImagePath.Set, p.ImagePath)
	add("image_ref", p.ImageRef.Set, p.ImageRef)
	return m
}

// Apply writes every set field of p onto f. Cleared text fields become "".
func (p *WinePatch) Apply(f *WineFields) {
	applyString(&f.Name, p.Name)
	applyString(&f.Producer, p.Producer)
	applyPtr(&f.Vintage, p.Vintage)
	applyString(&f.Style, p.Style)
	applyString(&f.Country, p.Country)
	applyString(&f.Region, p.Region)
	applyString(&f.Appellation, p.Appellation)
	if p.GrapeVarieties.Set {
		f.GrapeVarieties = nil
		if p.GrapeVarieties.Value != nil {
			f.GrapeVarieties = append([]string{}, *p.GrapeVarieties.Value...)
		}
	}
	applyPtr(&f.AlcoholPercentage, p.AlcoholPercentage)
	if p.Quantity.Set {
		f.Quantity = 0
		if p.Quantity.Value != nil {
			f.Quantity = *p.Quantity.Value
		}
	}
	applyPtr(&f.DrinkingWindowStart, p.DrinkingWindowStart)
	applyPtr(&f.DrinkingWindowEnd, p.DrinkingWindowEnd)
	applyPtr(&f.Score, p.Score)
	if p.Price.Set {
		f.Price = decimal.NullDecimal{}
		if p.Price.Value != nil {
			f.Price = decimal.NewNullDecimal(*p.Price.Value)
		}
	}
	applyString(&f.PriceCurrency, p.PriceCurrency)
	applyString(&f.Description, p.Description)
	if p.TastingNotes.Set {
		f.TastingNotes = TastingNotes{}
		if p.TastingNotes.Value != nil {
			f.TastingNotes = *p.TastingNotes.Value
		}
	}
	applyString(&f.ImagePath, p.ImagePath)
	applyString(&f.ImageRef, p.ImageRef)
}

// PatchFrom returns a patch that sets every field to the value in f.
func PatchFrom(f WineFields) WinePatch {
	p := WinePatch{
		Name:                Some(f.Name),
		Producer:            Some(f.Producer),
		Vintage:             fromPtr(f.Vintage),
		Style:               Some(f.Style),
		Country:             Some(f.Country),
		Region:              Some(f.Region),
		Appellation:         Some(f.Appellation),
		GrapeVarieties:      Some(append([]string{}, f.GrapeVarieties...)),
		AlcoholPercentage:   fromPtr(f.AlcoholPercentage),
		Quantity:            Some(f.Quantity),
		DrinkingWindowStart: fromPtr(f.DrinkingWindowStart),
		DrinkingWindowEnd:   fromPtr(f.DrinkingWindowEnd),
		Score:               fromPtr(f.Score),
		Price:               Null[decimal.Decimal](),
		PriceCurrency:       Some(f.PriceCurrency),
		Description:         Some(f.Description),
		TastingNotes:        Some(f.TastingNotes),
		ImagePath:           Some(f.ImagePath),
		ImageRef:            Some(f.ImageRef),
	}
	if f.Price.Valid {
		p.Price = Some(f.Price.Decimal)
	}
	return p
}

func applyString(dst *string, o Opt[string]) {
	if !o.Set {
		return
	}
	*dst = ""
	if o.Value != nil {
		*dst = *o.Value
	}
}

func applyPtr[T any](dst **T, o Opt[T]) {
	if !o.Set {
		return
	}
	*dst = nil
	if o.Value != nil {
		v := *o.Value
		*dst = &v
	}
}

func fromPtr[T any](v *T) Opt[T] {
	if v == nil {
		return Null[T]()
	}
	return Some(*v)
}
