// Package web renders the collection as HTML pages. All user text goes
// through html/template, which escapes it by context.
package web

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/your-org/cellar/internal/cellar"
	"github.com/your-org/cellar/internal/models"
	"github.com/your-org/cellar/internal/storage"
)

//go:embed templates/*.html
var templateFS embed.FS

// Pages serves the HTML interface on top of the cellar service.
type Pages struct {
	svc       *cellar.Service
	tmpl      *template.Template
	maxUpload int64
}

func NewPages(svc *cellar.Service) (*Pages, error) {
	tmpl, err := template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Pages{svc: svc, tmpl: tmpl, maxUpload: 16 << 20}, nil
}

var funcs = template.FuncMap{
	"imageURL":   ImageURL,
	"matchClass": MatchClass,
	"join":       strings.Join,
	"stepperArgs": func(w any, back string) map[string]any {
		return map[string]any{"Wine": w, "Back": back}
	},
	"money": func(p models.WineFields) string {
		if !p.Price.Valid {
			return ""
		}
		return p.Price.Decimal.StringFixed(2) + " " + p.PriceCurrency
	},
}

// Register mounts the pages on r. Photo uploads are capped at maxUpload
// bytes, and every page that calls the recognition service is wrapped by
// aiLimit.
func (p *Pages) Register(r *gin.Engine, maxUpload int64, aiLimit ...gin.HandlerFunc) {
	if maxUpload > 0 {
		p.maxUpload = maxUpload
	}
	r.SetHTMLTemplate(p.tmpl)
	limited := func(h gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, aiLimit...), h)
	}

	r.GET("/", p.Index)
	r.GET("/wines/new", p.NewForm)
	r.POST("/wines/new", p.Create)
	r.GET("/wines/scan", p.ScanForm)
	r.POST("/wines/scan", limited(p.Scan)...)
	r.POST("/wines/scan/clarify", limited(p.Clarify)...)
	r.GET("/wines/:id", p.Detail)
	r.GET("/wines/:id/edit", p.EditForm)
	r.POST("/wines/:id/edit", p.Update)
	r.POST("/wines/:id/quantity", p.Quantity)
	r.POST("/wines/:id/merge", p.Merge)
	r.POST("/wines/:id/delete", p.Delete)
	r.GET("/pair", limited(p.Pair)...)
	r.GET("/drink", p.DrinkForm)
	r.POST("/drink", limited(p.Drink)...)
}

// ImageURL resolves a stored image path. Absolute URLs are used as-is,
// anything else lives under /static/.
func ImageURL(path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return "/static/" + strings.TrimLeft(path, "/")
}

// MatchClass returns the CSS class for a pairing level; unknown levels get the
// neutral style.
func MatchClass(level models.MatchLevel) string {
	if !level.Known() {
		return "match-neutral"
	}
	return "match-" + string(level)
}

// CountryOptions returns the distinct countries of wines, sorted.
func CountryOptions(wines []models.Wine) []string {
	seen := map[string]bool{}
	var out []string
	for _, w := range wines {
		if w.Country != "" && !seen[w.Country] {
			seen[w.Country] = true
			out = append(out, w.Country)
		}
	}
	sort.Strings(out)
	return out
}

type sortOption struct {
	Value string
	Label string
}

var sortOptions = []sortOption{
	{models.SortName, "Name"},
	{models.SortVintage, "Vintage"},
	{models.SortScore, "Score"},
	{models.SortPrice, "Price"},
	{models.SortQuantity, "Quantity"},
	{models.SortWindowStart, "Drinking window"},
	{models.SortCreatedAt, "Date added"},
}

func (p *Pages) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.HTML(http.StatusNotFound, "error", gin.H{"Title": "Not found", "Message": "Wine not found"})
	case errors.Is(err, models.ErrValidation):
		c.HTML(http.StatusBadRequest, "error", gin.H{"Title": "Invalid request", "Message": err.Error()})
	default:
		slog.Error("page failed", "path", c.Request.URL.Path, "error", err)
		c.HTML(http.StatusInternalServerError, "error", gin.H{"Title": "Error", "Message": "Something went wrong"})
	}
}

func pageID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, storage.ErrNotFound
	}
	return id, nil
}

func (p *Pages) Index(c *gin.Context) {
	ctx := c.Request.Context()
	q, err := models.ParseWineQuery(c.Request.URL.Query())
	if err != nil {
		p.fail(c, err)
		return
	}
	wines, err := p.svc.ListWines(ctx, q)
	if err != nil {
		p.fail(c, err)
		return
	}
	stats, err := p.svc.Stats(ctx)
	if err != nil {
		p.fail(c, err)
		return
	}

	countries := CountryOptions(wines)
	if q.Filter.Country != "" && !contains(countries, q.Filter.Country) {
		countries = append(countries, q.Filter.Country)
		sort.Strings(countries)
	}

	c.HTML(http.StatusOK, "index", gin.H{
		"Title":       "My Wine Collection",
		"Stats":       stats,
		"Wines":       wines,
		"Query":       q,
		"SortBy":      q.SortField(),
		"Desc":        q.Descending(),
		"Countries":   countries,
		"Styles":      models.KnownStyles,
		"SortOptions": sortOptions,
		"Back":        c.Request.URL.RequestURI(),
	})
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (p *Pages) Detail(c *gin.Context) {
	id, err := pageID(c)
	if err != nil {
		p.fail(c, err)
		return
	}
	w, err := p.svc.GetWine(c.Request.Context(), id)
	if err != nil {
		p.fail(c, err)
		return
	}
	c.HTML(http.StatusOK, "detail", gin.H{
		"Title":  w.Name,
		"Wine":   w,
		"Notes":  w.TastingNotes.Lines(),
		"WineID": w.ID,
		"Back":   c.Request.URL.RequestURI(),
	})
}

// wineForm is what the add and edit forms round-trip.
type wineForm struct {
	Action string
	Fields models.WineFields
	// Grapes and Notes are the text forms of their fields.
	Grapes string
	Notes  string
	Error  string
}

func newWineForm(action string, f models.WineFields) wineForm {
	return wineForm{
		Action: action,
		Fields: f,
		Grapes: strings.Join(f.GrapeVarieties, ", "),
		Notes:  f.TastingNotes.Text(),
	}
}

func (p *Pages) NewForm(c *gin.Context) {
	f := models.NewWineFields()
	f.ImagePath = c.Query("image_path")
	f.ImageRef = c.Query("image_ref")
	c.HTML(http.StatusOK, "form", gin.H{"Title": "Add wine", "Form": newWineForm("/wines/new", f)})
}

func (p *Pages) Create(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		p.fail(c, fmt.Errorf("%w: %v", models.ErrValidation, err))
		return
	}
	patch, err := PatchFromForm(c.Request.PostForm, true)
	if err == nil {
		var w *models.Wine
		if w, err = p.svc.CreateWine(c.Request.Context(), patch); err == nil {
			c.Redirect(http.StatusSeeOther, fmt.Sprintf("/wines/%d", w.ID))
			return
		}
	}
	if !errors.Is(err, models.ErrValidation) {
		p.fail(c, err)
		return
	}
	p.formError(c, "Add wine", "/wines/new", models.NewWineFields(), patch, err)
}

func (p *Pages) EditForm(c *gin.Context) {
	id, err := pageID(c)
	if err != nil {
		p.fail(c, err)
		return
	}
	w, err := p.svc.GetWine(c.Request.Context(), id)
	if err != nil {
		p.fail(c, err)
		return
	}
	c.HTML(http.StatusOK, "form", gin.H{
		"Title": "Edit " + w.Name,
		"Form":  newWineForm(fmt.Sprintf("/wines/%d/edit", w.ID), w.WineFields),
	})
}

func (p *Pages) Update(c *gin.Context) {
	id, err := pageID(c)
	if err != nil {
		p.fail(c, err)
		return
	}
	if err := c.Request.ParseForm(); err != nil {
		p.fail(c, fmt.Errorf("%w: %v", models.ErrValidation, err))
		return
	}
	current, err := p.svc.GetWine(c.Request.Context(), id)
	if err != nil {
		p.fail(c, err)
		return
	}

	patch, err := PatchFromForm(c.Request.PostForm, false)
	if err == nil {
		if _, err = p.svc.UpdateWine(c.Request.Context(), id, patch); err == nil {
			c.Redirect(http.StatusSeeOther, fmt.Sprintf("/wines/%d", id))
			return
		}
	}
	if !errors.Is(err, models.ErrValidation) {
		p.fail(c, err)
		return
	}
	p.formError(c, "Edit "+current.Name, fmt.Sprintf("/wines/%d/edit", id), current.WineFields, patch, err)
}

// formError re-renders a form with what the user typed and the reason it was
// rejected.
func (p *Pages) formError(c *gin.Context, title, action string, base models.WineFields, patch models.WinePatch, err error) {
	patch.Apply(&base)
	form := newWineForm(action, base)
	form.Grapes = c.PostForm("grape_varieties")
	form.Notes = c.PostForm("tasting_notes")
	form.Error = err.Error()
	c.HTML(http.StatusBadRequest, "form", gin.H{"Title": title, "Form": form})
}

// PatchFromForm converts the wine form into a patch that sets every field the
// form carries. Blank numeric inputs clear the field. Image fields are only
// taken on create.
func PatchFromForm(form url.Values, create bool) (models.WinePatch, error) {
	text := func(key string) models.Opt[string] {
		return models.Some(strings.TrimSpace(form.Get(key)))
	}

	p := models.WinePatch{
		Name:           text("name"),
		Producer:       text("producer"),
		Style:          text("style"),
		Country:        text("country"),
		Region:         text("region"),
		Appellation:    text("appellation"),
		PriceCurrency:  text("price_currency"),
		Description:    text("description"),
		GrapeVarieties: models.Some(splitComma(form.Get("grape_varieties"))),
		TastingNotes:   models.Some(models.ParseTastingNotes(form.Get("tasting_notes"))),
	}
	if create {
		p.ImagePath = text("image_path")
		p.ImageRef = text("image_ref")
	}

	var errs []string
	intField := func(key, label string) models.Opt[int] {
		s := strings.TrimSpace(form.Get(key))
		if s == "" {
			return models.Null[int]()
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			errs = append(errs, label+" must be a whole number")
			return models.Null[int]()
		}
		return models.Some(n)
	}
	p.Vintage = intField("vintage", "vintage")
	p.DrinkingWindowStart = intField("drinking_window_start", "drinking window start")
	p.DrinkingWindowEnd = intField("drinking_window_end", "drinking window end")
	p.Score = intField("score", "score")

	// blank keeps the current count, or the creation default of one
	if strings.TrimSpace(form.Get("quantity")) != "" {
		p.Quantity = intField("quantity", "quantity")
	}

	p.AlcoholPercentage = models.Null[float64]()
	if s := strings.TrimSpace(form.Get("alcohol_percentage")); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			errs = append(errs, "alcohol percentage must be a number")
		} else {
			p.AlcoholPercentage = models.Some(v)
		}
	}

	p.Price = models.Null[decimal.Decimal]()
	if s := strings.TrimSpace(form.Get("price")); s != "" {
		d, err := decimal.NewFromString(s)
		if err != nil {
			errs = append(errs, "price must be a number")
		} else {
			p.Price = models.Some(d)
		}
	}

	if len(errs) > 0 {
		return p, fmt.Errorf("%w: %s", models.ErrValidation, strings.Join(errs, "; "))
	}
	return p, nil
}

func splitComma(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (p *Pages) Quantity(c *gin.Context) {
	id, err := pageID(c)
	if err != nil {
		p.fail(c, err)
		return
	}
	delta, err := strconv.Atoi(c.PostForm("delta"))
	if err != nil || (delta != 1 && delta != -1) {
		p.fail(c, fmt.Errorf("%w: delta must be 1 or -1", models.ErrValidation))
		return
	}
	if _, err := p.svc.AdjustQuantity(c.Request.Context(), id, delta); err != nil {
		p.fail(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, backTo(c.PostForm("back"), fmt.Sprintf("/wines/%d", id)))
}

// backTo only follows local paths.
func backTo(back, fallback string) string {
	if strings.HasPrefix(back, "/") && !strings.HasPrefix(back, "//") {
		return back
	}
	return fallback
}

func (p *Pages) Delete(c *gin.Context) {
	id, err := pageID(c)
	if err != nil {
		p.fail(c, err)
		return
	}
	if c.PostForm("confirm") != "yes" {
		w, err := p.svc.GetWine(c.Request.Context(), id)
		if err != nil {
			p.fail(c, err)
			return
		}
		c.HTML(http.StatusBadRequest, "detail", gin.H{
			"Title":  w.Name,
			"Wine":   w,
			"Notes":  w.TastingNotes.Lines(),
			"WineID": w.ID,
			"Back":   fmt.Sprintf("/wines/%d", w.ID),
			"Error":  "Tick the confirmation box to delete this wine.",
		})
		return
	}
	if err := p.svc.DeleteWine(c.Request.Context(), id); err != nil {
		p.fail(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (p *Pages) Pair(c *gin.Context) {
	food := strings.TrimSpace(c.Query("food"))
	data := gin.H{"Title": "Food pairing", "Food": food}
	if food == "" {
		c.HTML(http.StatusOK, "pair", data)
		return
	}

	res, err := p.svc.Pair(c.Request.Context(), food)
	if err != nil {
		p.fail(c, err)
		return
	}
	data["Result"] = res
	c.HTML(http.StatusOK, "pair", data)
}
