package cellar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/your-org/cellar/internal/models"
	"github.com/your-org/cellar/internal/observability"
	"github.com/your-org/cellar/internal/storage"
)

var (
	ErrUnidentified    = errors.New("wine could not be identified")
	ErrNotInCollection = errors.New("wine not found in collection")
	ErrNoneLeft        = errors.New("no bottles left of this wine")
)

// Recognizer is the external label recognition service.
type Recognizer interface {
	Analyze(ctx context.Context, image []byte, mediaType, styleHint string) *models.Candidate
	Identify(ctx context.Context, image []byte, mediaType string) *models.Identification
	SuggestPairings(ctx context.Context, food string, collection []models.Wine) *models.PairingResult
}

// Notifier receives every committed change.
type Notifier interface {
	Notify(ctx context.Context, evt models.WineEvent)
}

// Image is an uploaded label photo.
type Image struct {
	Data      []byte
	Ext       string
	MediaType string
}

// NewImage checks filename against the allowed upload types.
func NewImage(filename string, data []byte) (Image, error) {
	ext, err := storage.ImageExt(filename)
	if err != nil {
		return Image{}, err
	}
	return Image{Data: data, Ext: ext, MediaType: storage.AllowedImageExts[ext]}, nil
}

// Clarification re-runs analysis with the owner's style answer. ImagePath and
// ImageRef point at the upload stored by the first pass.
type Clarification struct {
	Image     Image
	Style     string
	ImagePath string
	ImageRef  string
}

type DrinkOutcome struct {
	Identified       *models.Identification
	Wine             *models.Wine
	PreviousQuantity int
	NewQuantity      int
}

type Service struct {
	store  storage.WineStore
	images storage.ImageStore
	ai     Recognizer
	notify Notifier
	now    func() time.Time
}

func NewService(store storage.WineStore, images storage.ImageStore, ai Recognizer, notify Notifier) *Service {
	return &Service{
		store:  store,
		images: images,
		ai:     ai,
		notify: notify,
		now:    time.Now,
	}
}

// SetClock replaces the clock used for "current year" decisions.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) year() int {
	return s.now().Year()
}

func (s *Service) emit(ctx context.Context, action models.WineAction, id int64, w *models.Wine) {
	observability.WineMutations.WithLabelValues(string(action)).Inc()
	if s.notify == nil {
		return
	}
	s.notify.Notify(ctx, models.WineEvent{Action: action, WineID: id, Wine: w, At: s.now().UTC()})
}

func (s *Service) ListWines(ctx context.Context, q models.WineQuery) ([]models.Wine, error) {
	if q.Filter.DrinkingNow && q.Filter.Year == 0 {
		q.Filter.Year = s.year()
	}
	return s.store.ListWines(ctx, q)
}

func (s *Service) GetWine(ctx context.Context, id int64) (*models.Wine, error) {
	return s.store.GetWine(ctx, id)
}

// CreateWine applies p over the creation defaults and stores the result.
func (s *Service) CreateWine(ctx context.Context, p models.WinePatch) (*models.Wine, error) {
	f := models.NewWineFields()
	p.Apply(&f)
	f.Normalize()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	w, err := s.store.CreateWine(ctx, f)
	if err != nil {
		return nil, err
	}
	slog.Info("wine created", "id", w.ID, "name", w.Name)
	s.emit(ctx, models.ActionCreated, w.ID, w)
	return w, nil
}

func (s *Service) UpdateWine(ctx context.Context, id int64, p models.WinePatch) (*models.Wine, error) {
	w, err := s.store.UpdateWine(ctx, id, p)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, models.ActionUpdated, w.ID, w)
	return w, nil
}

func (s *Service) AdjustQuantity(ctx context.Context, id int64, delta int) (*models.Wine, error) {
	w, err := s.store.AdjustQuantity(ctx, id, delta)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, models.ActionQuantity, w.ID, w)
	return w, nil
}

// DeleteWine removes the record and then its stored image. A failed image
// delete is logged, not returned.
func (s *Service) DeleteWine(ctx context.Context, id int64) error {
	w, err := s.store.GetWine(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteWine(ctx, id); err != nil {
		return err
	}
	if ref := imageRef(w); ref != "" && s.images != nil {
		if err := s.images.Delete(ctx, ref); err != nil {
			slog.Warn("delete wine image", "id", id, "ref", ref, "error", err)
		}
	}
	slog.Info("wine deleted", "id", id, "name", w.Name)
	s.emit(ctx, models.ActionDeleted, id, nil)
	return nil
}

// imageRef falls back to image_path for records written before refs existed.
func imageRef(w *models.Wine) string {
	if w.ImageRef != "" {
		return w.ImageRef
	}
	if strings.HasPrefix(w.ImagePath, "uploads/") {
		return w.ImagePath
	}
	return ""
}

func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	wines, err := s.store.ListWines(ctx, models.WineQuery{})
	if err != nil {
		return models.Stats{}, err
	}
	return ComputeStats(wines, s.year()), nil
}

// Analyze reads a label photo into a candidate. The upload is stored even when
// analysis fails so a manual entry can keep it; duplicates are looked up only
// for clean, unambiguous readings.
func (s *Service) Analyze(ctx context.Context, img Image) (*models.Candidate, error) {
	cand := s.ai.Analyze(ctx, img.Data, img.MediaType, "")
	cand.MediaType = img.MediaType

	if s.images != nil {
		stored, err := s.images.Save(ctx, img.Data, img.Ext)
		if err != nil {
			slog.Error("store label image", "error", err)
		} else {
			observability.ImagesStored.WithLabelValues(s.images.Backend()).Inc()
			cand.ImagePath = stored.Path
			cand.ImageRef = stored.Ref
		}
	}

	if err := s.markDuplicate(ctx, cand); err != nil {
		return nil, err
	}
	return cand, nil
}

// AnalyzeClarified re-runs analysis with a confirmed style. The confirmed
// style wins over whatever the model says, and the first pass's stored image
// is reused.
func (s *Service) AnalyzeClarified(ctx context.Context, c Clarification) (*models.Candidate, error) {
	style := strings.TrimSpace(c.Style)
	if style == "" {
		return nil, fmt.Errorf("%w: style is required", models.ErrValidation)
	}
	if canon, ok := models.CanonicalStyle(style); ok {
		style = canon
	}

	cand := s.ai.Analyze(ctx, c.Image.Data, c.Image.MediaType, style)
	cand.MediaType = c.Image.MediaType
	if !cand.Failed() {
		cand.Style = style
	}
	cand.ImagePath = c.ImagePath
	cand.ImageRef = c.ImageRef

	if err := s.markDuplicate(ctx, cand); err != nil {
		return nil, err
	}
	return cand, nil
}

func (s *Service) markDuplicate(ctx context.Context, cand *models.Candidate) error {
	if cand.Failed() || cand.AwaitsClarification() {
		return nil
	}
	wines, err := s.store.ListWines(ctx, models.WineQuery{})
	if err != nil {
		return fmt.Errorf("load collection for duplicate check: %w", err)
	}
	if match := FindMatch(wines, cand.Name, cand.Producer, cand.Vintage); match != nil {
		cand.IsDuplicate = true
		cand.ExistingWine = match
	}
	return nil
}

// Drink identifies the bottle in img and takes one off its quantity. On
// ErrNotInCollection and ErrNoneLeft the outcome still carries what was found.
func (s *Service) Drink(ctx context.Context, img Image) (*DrinkOutcome, error) {
	id := s.ai.Identify(ctx, img.Data, img.MediaType)
	out := &DrinkOutcome{Identified: id}
	if id.Error != "" {
		return out, ErrUnidentified
	}

	wines, err := s.store.ListWines(ctx, models.WineQuery{})
	if err != nil {
		return nil, err
	}
	match := FindMatch(wines, id.Name, id.Producer, id.Vintage)
	if match == nil {
		return out, ErrNotInCollection
	}
	out.Wine = match
	out.PreviousQuantity = match.Quantity
	if match.Quantity <= 0 {
		return out, ErrNoneLeft
	}

	updated, err := s.store.AdjustQuantity(ctx, match.ID, -1)
	if err != nil {
		return nil, err
	}
	out.Wine = updated
	out.NewQuantity = updated.Quantity
	slog.Info("bottle drunk", "id", updated.ID, "name", updated.Name, "left", updated.Quantity)
	s.emit(ctx, models.ActionDrunk, updated.ID, updated)
	return out, nil
}

// Pair asks for pairings among the wines currently in stock.
func (s *Service) Pair(ctx context.Context, food string) (*models.PairingResult, error) {
	if strings.TrimSpace(food) == "" {
		return nil, fmt.Errorf("%w: please describe the food", models.ErrValidation)
	}
	wines, err := s.store.ListWines(ctx, models.WineQuery{})
	if err != nil {
		return nil, err
	}
	inStock := wines[:0]
	for _, w := range wines {
		if w.Quantity > 0 {
			inStock = append(inStock, w)
		}
	}
	if len(inStock) == 0 {
		return &models.PairingResult{Error: "Your collection is empty", Suggestions: []models.PairingSuggestion{}}, nil
	}
	return s.ai.SuggestPairings(ctx, food, inStock), nil
}

// Ready checks the store and image backend.
func (s *Service) Ready(ctx context.Context) map[string]error {
	checks := map[string]error{"database": s.store.Ping(ctx)}
	if s.images != nil {
		checks["images"] = s.images.Ping(ctx)
	}
	return checks
}
