package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/your-org/cellar/internal/models"
)

var (
	ErrNotFound  = errors.New("wine not found")
	ErrNoChanges = errors.New("no fields to update")
)

// WineStore persists wine records. Implementations must make AdjustQuantity a
// single atomic statement.
type WineStore interface {
	ListWines(ctx context.Context, q models.WineQuery) ([]models.Wine, error)
	GetWine(ctx context.Context, id int64) (*models.Wine, error)
	CreateWine(ctx context.Context, f models.WineFields) (*models.Wine, error)
	UpdateWine(ctx context.Context, id int64, p models.WinePatch) (*models.Wine, error)
	AdjustQuantity(ctx context.Context, id int64, delta int) (*models.Wine, error)
	DeleteWine(ctx context.Context, id int64) error
	Ping(ctx context.Context) error
	Close()
}

const wineColumns = `id, name, producer, vintage, style, country, region, appellation,
	grape_varieties, alcohol_percentage, quantity, drinking_window_start, drinking_window_end,
	score, price, price_currency, description, tasting_notes, image_path, image_ref,
	created_at, updated_at`

// editableColumns is the column order of wineArgs.
var editableColumns = []string{
	"name", "producer", "vintage", "style", "country", "region", "appellation",
	"grape_varieties", "alcohol_percentage", "quantity", "drinking_window_start",
	"drinking_window_end", "score", "price", "price_currency", "description",
	"tasting_notes", "image_path", "image_ref",
}

// bindFunc renders the nth (1-based) placeholder of a dialect.
type bindFunc func(n int) string

func bindQuestion(int) string { return "?" }
func bindDollar(n int) string { return fmt.Sprintf("$%d", n) }

// dialect is what the list query needs to know about a backend. lower must
// fold case across all of Unicode, not just ASCII.
type dialect struct {
	bind  bindFunc
	lower string
}

var (
	sqliteDialect   = dialect{bind: bindQuestion, lower: sqliteLowerFunc}
	postgresDialect = dialect{bind: bindDollar, lower: "LOWER"}
)

func insertSQL(bind bindFunc, extra ...string) string {
	cols := append(append([]string{}, editableColumns...), extra...)
	marks := make([]string, len(cols))
	for i := range cols {
		marks[i] = bind(i + 1)
	}
	return fmt.Sprintf("INSERT INTO wines (%s) VALUES (%s)", strings.Join(cols, ", "), strings.Join(marks, ", "))
}

// updateSQL sets every editable column plus updated_at; the id is the last argument.
func updateSQL(bind bindFunc) string {
	sets := make([]string, 0, len(editableColumns)+1)
	n := 1
	for _, c := range editableColumns {
		sets = append(sets, fmt.Sprintf("%s = %s", c, bind(n)))
		n++
	}
	sets = append(sets, fmt.Sprintf("updated_at = %s", bind(n)))
	return fmt.Sprintf("UPDATE wines SET %s WHERE id = %s", strings.Join(sets, ", "), bind(n+1))
}

var sortColumns = map[string]string{
	models.SortName:        "LOWER(name)",
	models.SortVintage:     "vintage",
	models.SortScore:       "score",
	models.SortPrice:       "price",
	models.SortQuantity:    "quantity",
	models.SortWindowStart: "drinking_window_start",
	models.SortCreatedAt:   "created_at",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// buildListQuery renders the filtered, ordered list query. NULL sort keys go
// last in both directions and ties fall back to id.
func buildListQuery(q models.WineQuery, d dialect) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return d.bind(len(args))
	}

	f := q.Filter
	if s := strings.TrimSpace(f.Search); s != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
		where = append(where, fmt.Sprintf(
			`(%[1]s(name) LIKE %[2]s ESCAPE '\' OR %[1]s(COALESCE(producer, '')) LIKE %[3]s ESCAPE '\')`,
			d.lower, arg(pattern), arg(pattern)))
	}
	if f.Style != "" {
		where = append(where, "style = "+arg(f.Style))
	}
	if f.Country != "" {
		where = append(where, "country = "+arg(f.Country))
	}
	if f.Region != "" {
		where = append(where, "region = "+arg(f.Region))
	}
	if f.VintageMin != nil {
		where = append(where, "vintage >= "+arg(*f.VintageMin))
	}
	if f.VintageMax != nil {
		where = append(where, "vintage <= "+arg(*f.VintageMax))
	}
	if f.DrinkingNow {
		year := f.Year
		if year == 0 {
			year = time.Now().Year()
		}
		where = append(where, fmt.Sprintf(
			"drinking_window_start IS NOT NULL AND drinking_window_end IS NOT NULL AND drinking_window_start <= %s AND drinking_window_end >= %s",
			arg(year), arg(year)))
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(wineColumns)
	b.WriteString(" FROM wines")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}

	col := sortColumns[q.SortField()]
	dir := "ASC"
	if q.Descending() {
		dir = "DESC"
	}
	fmt.Fprintf(&b, " ORDER BY (%s IS NULL), %s %s, id ASC", col, col, dir)
	return b.String(), args
}

// wineArgs returns the values of editableColumns for f. Empty text is stored
// as NULL.
func wineArgs(f models.WineFields) ([]any, error) {
	grapes := f.GrapeVarieties
	if grapes == nil {
		grapes = []string{}
	}
	grapesJSON, err := json.Marshal(grapes)
	if err != nil {
		return nil, fmt.Errorf("encode grape varieties: %w", err)
	}

	var notes any
	if !f.TastingNotes.IsEmpty() {
		data, err := json.Marshal(f.TastingNotes)
		if err != nil {
			return nil, fmt.Errorf("encode tasting notes: %w", err)
		}
		notes = string(data)
	}

	var price any
	if f.Price.Valid {
		price = f.Price.Decimal.String()
	}

	currency := f.PriceCurrency
	if currency == "" {
		currency = models.DefaultCurrency
	}

	return []any{
		f.Name,
		nullString(f.Producer),
		nullInt(f.Vintage),
		nullString(f.Style),
		nullString(f.Country),
		nullString(f.Region),
		nullString(f.Appellation),
		string(grapesJSON),
		nullFloat(f.AlcoholPercentage),
		f.Quantity,
		nullInt(f.DrinkingWindowStart),
		nullInt(f.DrinkingWindowEnd),
		nullInt(f.Score),
		price,
		currency,
		nullString(f.Description),
		notes,
		nullString(f.ImagePath),
		nullString(f.ImageRef),
	}, nil
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type rowScanner interface {
	Scan(dest ...any) error
}

// wineRow holds the nullable intermediates of one scanned row.
type wineRow struct {
	w models.Wine

	producer, style, country, region, appellation *string
	description, notes, imagePath, imageRef       *string
	price, currency, grapes                       *string
}

// scan reads one row; created and updated receive the timestamp columns in
// whatever representation the driver produces.
func (r *wineRow) scan(row rowScanner, created, updated any) error {
	return row.Scan(
		&r.w.ID, &r.w.Name, &r.producer, &r.w.Vintage, &r.style, &r.country, &r.region, &r.appellation,
		&r.grapes, &r.w.AlcoholPercentage, &r.w.Quantity, &r.w.DrinkingWindowStart, &r.w.DrinkingWindowEnd,
		&r.w.Score, &r.price, &r.currency, &r.description, &r.notes, &r.imagePath, &r.imageRef,
		created, updated,
	)
}

func (r *wineRow) wine() (*models.Wine, error) {
	w := r.w
	w.Producer = deref(r.producer)
	w.Style = deref(r.style)
	w.Country = deref(r.country)
	w.Region = deref(r.region)
	w.Appellation = deref(r.appellation)
	w.Description = deref(r.description)
	w.ImagePath = deref(r.imagePath)
	w.ImageRef = deref(r.imageRef)
	w.PriceCurrency = deref(r.currency)
	if w.PriceCurrency == "" {
		w.PriceCurrency = models.DefaultCurrency
	}

	w.GrapeVarieties = []string{}
	if g := deref(r.grapes); g != "" {
		if err := json.Unmarshal([]byte(g), &w.GrapeVarieties); err != nil {
			return nil, fmt.Errorf("decode grape varieties of wine %d: %w", w.ID, err)
		}
	}
	if n := deref(r.notes); n != "" {
		if err := json.Unmarshal([]byte(n), &w.TastingNotes); err != nil {
			return nil, fmt.Errorf("decode tasting notes of wine %d: %w", w.ID, err)
		}
	}
	if p := deref(r.price); p != "" {
		d, err := decimal.NewFromString(p)
		if err != nil {
			return nil, fmt.Errorf("decode price of wine %d: %w", w.ID, err)
		}
		w.Price = decimal.NewNullDecimal(d)
	}
	return &w, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// applyPatch validates p against the current record and returns the new field set.
func applyPatch(current *models.Wine, p models.WinePatch) (models.WineFields, error) {
	if p.Empty() {
		return models.WineFields{}, ErrNoChanges
	}
	f := current.WineFields
	p.Apply(&f)
	f.Normalize()
	if err := f.Validate(); err != nil {
		return models.WineFields{}, err
	}
	return f, nil
}
