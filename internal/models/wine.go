package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrValidation marks input rejected before it reaches the store.
var ErrValidation = errors.New("validation failed")

const (
	DefaultQuantity = 1
	DefaultCurrency = "USD"
)

// Known wine styles. Style is free text; these are the values the
// recognition service is allowed to produce.
const (
	StyleRed       = "Red"
	StyleWhite     = "White"
	StyleRose      = "Rosé"
	StyleSparkling = "Sparkling"
	StyleDessert   = "Dessert"
	StyleFortified = "Fortified"
)

var KnownStyles = []string{StyleRed, StyleWhite, StyleRose, StyleSparkling, StyleDessert, StyleFortified}

// CanonicalStyle maps s onto a known style, ignoring case. "Rose" matches Rosé.
func CanonicalStyle(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "rose") {
		return StyleRose, true
	}
	for _, k := range KnownStyles {
		if strings.EqualFold(s, k) {
			return k, true
		}
	}
	return "", false
}

// WineFields are the user-editable attributes shared by stored records and
// analysis candidates.
type WineFields struct {
	Name                string              `json:"name"`
	Producer            string              `json:"producer"`
	Vintage             *int                `json:"vintage"`
	Style               string              `json:"style"`
	Country             string              `json:"country"`
	Region              string              `json:"region"`
	Appellation         string              `json:"appellation"`
	GrapeVarieties      []string            `json:"grape_varieties"`
	AlcoholPercentage   *float64            `json:"alcohol_percentage"`
	Quantity            int                 `json:"quantity"`
	DrinkingWindowStart *int                `json:"drinking_window_start"`
	DrinkingWindowEnd   *int                `json:"drinking_window_end"`
	Score               *int                `json:"score"`
	Price               decimal.NullDecimal `json:"price"`
	PriceCurrency       string              `json:"price_currency"`
	Description         string              `json:"description"`
	TastingNotes        TastingNotes        `json:"tasting_notes"`
	ImagePath           string              `json:"image_path"`
	ImageRef            string              `json:"image_ref,omitempty"`
}

// Wine is one logical collection entry, not one bottle.
type Wine struct {
	ID int64 `json:"id"`
	WineFields
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewWineFields returns an empty record with the creation defaults applied.
func NewWineFields() WineFields {
	return WineFields{
		Quantity:       DefaultQuantity,
		PriceCurrency:  DefaultCurrency,
		GrapeVarieties: []string{},
	}
}

// Normalize trims text fields and fills defaults that may not be blank.
func (f *WineFields) Normalize() {
	f.Name = strings.TrimSpace(f.Name)
	f.Producer = strings.TrimSpace(f.Producer)
	f.Style = strings.TrimSpace(f.Style)
	f.Country = strings.TrimSpace(f.Country)
	f.Region = strings.TrimSpace(f.Region)
	f.Appellation = strings.TrimSpace(f.Appellation)
	f.PriceCurrency = strings.ToUpper(strings.TrimSpace(f.PriceCurrency))
	if f.PriceCurrency == "" {
		f.PriceCurrency = DefaultCurrency
	}
	if f.GrapeVarieties == nil {
		f.GrapeVarieties = []string{}
	}
}

// Validate enforces the record invariants.
func (f *WineFields) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("%w: wine name is required", ErrValidation)
	}
	if f.Quantity < 0 {
		return fmt.Errorf("%w: quantity cannot be negative", ErrValidation)
	}
	if f.Score != nil && (*f.Score < 0 || *f.Score > 100) {
		return fmt.Errorf("%w: score must be between 0 and 100", ErrValidation)
	}
	if f.AlcoholPercentage != nil && (*f.AlcoholPercentage < 0 || *f.AlcoholPercentage > 100) {
		return fmt.Errorf("%w: alcohol percentage must be between 0 and 100", ErrValidation)
	}
	if (f.DrinkingWindowStart == nil) != (f.DrinkingWindowEnd == nil) {
		return fmt.Errorf("%w: drinking window needs both a start and an end year", ErrValidation)
	}
	if f.HasWindow() && *f.DrinkingWindowStart > *f.DrinkingWindowEnd {
		return fmt.Errorf("%w: drinking window starts after it ends", ErrValidation)
	}
	if f.Price.Valid && f.Price.Decimal.IsNegative() {
		return fmt.Errorf("%w: price cannot be negative", ErrValidation)
	}
	return nil
}

// HasWindow reports whether both drinking window bounds are set.
func (f *WineFields) HasWindow() bool {
	return f.DrinkingWindowStart != nil && f.DrinkingWindowEnd != nil
}

// ReadyIn reports whether year falls inside the drinking window.
// A record without both bounds is never ready.
func (f *WineFields) ReadyIn(year int) bool {
	return f.HasWindow() && *f.DrinkingWindowStart <= year && year <= *f.DrinkingWindowEnd
}

// CellaringIn reports whether the drinking window opens after year.
func (f *WineFields) CellaringIn(year int) bool {
	return f.DrinkingWindowStart != nil && *f.DrinkingWindowStart > year
}
