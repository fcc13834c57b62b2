// Package workflow drives the add-wine flow against the HTTP API: upload a
// label, review the reading, answer a clarification, resolve a duplicate and
// commit.
package workflow

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/your-org/cellar/internal/models"
	"github.com/your-org/cellar/pkg/dto"
)

// State is a step of the flow. A failed upload is not a resting state: the
// controller returns to Idle and reports the failure through Err.
type State int

const (
	Idle State = iota
	Uploading
	AwaitingClarification
	AwaitingDuplicateDecision
	ReadyToCommit
	Committed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Uploading:
		return "uploading"
	case AwaitingClarification:
		return "awaiting_clarification"
	case AwaitingDuplicateDecision:
		return "awaiting_duplicate_decision"
	case ReadyToCommit:
		return "ready_to_commit"
	case Committed:
		return "committed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrInvalidTransition = errors.New("action not allowed in the current state")
	// ErrStaleResponse is returned when a reply arrives for a session that
	// was cancelled or replaced. The reply is discarded.
	ErrStaleResponse = errors.New("response belongs to a superseded session")
	// ErrCommittedAfterCancel is returned when the flow was cancelled while a
	// write was in flight and the server applied it anyway. Committed reports
	// the written record.
	ErrCommittedAfterCancel = errors.New("change was saved before the cancel took effect")
	ErrNameRequired         = errors.New("wine name is required")
	ErrBadQuantity          = errors.New("quantity must be at least 1")
)

// AnalysisError is a reading the recognition service could not produce.
type AnalysisError struct {
	Message string
}

func (e *AnalysisError) Error() string { return e.Message }

// Backend is the slice of the HTTP API the flow needs.
type Backend interface {
	Analyze(ctx context.Context, filename string, data []byte) (*models.Candidate, error)
	AnalyzeClarified(ctx context.Context, req dto.ClarifyRequest) (*models.Candidate, error)
	CreateWine(ctx context.Context, p models.WinePatch) (*models.Wine, error)
	UpdateWine(ctx context.Context, id int64, p models.WinePatch) (*models.Wine, error)
	AdjustQuantity(ctx context.Context, id int64, delta int) (*models.Wine, error)
}

type upload struct {
	filename string
	data     []byte
}

// Controller holds one add-wine flow. Its methods may be called from several
// goroutines; the lock is released while a request is in flight.
type Controller struct {
	backend Backend

	mu        sync.Mutex
	state     State
	session   string
	busy      bool
	image     *upload
	candidate *models.Candidate
	form      models.WineFields
	editingID int64
	err       error
	committed *models.Wine
}

func NewController(backend Backend) *Controller {
	return &Controller{backend: backend, form: models.NewWineFields()}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err is the failure that last sent the flow back to Idle, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Candidate returns a copy of the reading under review, or nil.
func (c *Controller) Candidate() *models.Candidate {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.candidate == nil {
		return nil
	}
	cand := *c.candidate
	return &cand
}

func (c *Controller) Form() models.WineFields {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.form
}

// Committed returns the record written by the last commit.
func (c *Controller) Committed() *models.Wine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.committed
}

// EditForm changes the form while it is editable.
func (c *Controller) EditForm(fn func(f *models.WineFields)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Idle, AwaitingClarification, AwaitingDuplicateDecision, ReadyToCommit:
	default:
		return c.invalid("edit form")
	}
	if c.busy {
		return c.invalid("edit form")
	}
	fn(&c.form)
	return nil
}

// Edit loads an existing record so Save updates it instead of creating one.
func (c *Controller) Edit(w *models.Wine) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle || c.busy {
		return c.invalid("edit")
	}
	c.form = w.WineFields
	c.editingID = w.ID
	c.state = ReadyToCommit
	return nil
}

func (c *Controller) invalid(action string) error {
	return fmt.Errorf("%w: %s in %s", ErrInvalidTransition, action, c.state)
}

// begin starts a new session; responses for older sessions become stale.
func (c *Controller) begin() string {
	c.session = uuid.NewString()
	return c.session
}

// SubmitImage uploads a label for analysis and retains the bytes for a
// possible clarified re-analysis. A failed analysis returns to Idle with the
// error kept in Err and the form left for manual entry. Submitting while an
// earlier analysis is still running supersedes it: the older reply comes
// back as ErrStaleResponse and never touches the form.
func (c *Controller) SubmitImage(ctx context.Context, filename string, data []byte) error {
	c.mu.Lock()
	switch c.state {
	case Idle, Uploading, AwaitingClarification, AwaitingDuplicateDecision, ReadyToCommit:
	default:
		defer c.mu.Unlock()
		return c.invalid("submit image")
	}
	if c.busy {
		defer c.mu.Unlock()
		return c.invalid("submit image")
	}
	c.image = &upload{filename: filename, data: data}
	c.candidate = nil
	c.err = nil
	c.editingID = 0
	c.state = Uploading
	session := c.begin()
	c.mu.Unlock()

	cand, err := c.backend.Analyze(ctx, filename, data)
	return c.resolve(session, cand, err)
}

// Review starts the flow from a reading obtained elsewhere. No image bytes are
// retained, so a clarification is applied to the form directly.
func (c *Controller) Review(cand *models.Candidate) error {
	c.mu.Lock()
	if c.state != Idle || c.busy {
		defer c.mu.Unlock()
		return c.invalid("review")
	}
	c.image = nil
	c.state = Uploading
	session := c.begin()
	c.mu.Unlock()

	return c.resolve(session, cand, nil)
}

// AnswerClarification applies the owner's style answer. With retained bytes
// the label is analysed once more with the hint; without, the answer goes
// straight into the form.
func (c *Controller) AnswerClarification(ctx context.Context, style string) error {
	style = strings.TrimSpace(style)
	if canon, ok := models.CanonicalStyle(style); ok {
		style = canon
	}

	c.mu.Lock()
	if c.state != AwaitingClarification || c.busy {
		defer c.mu.Unlock()
		return c.invalid("answer clarification")
	}
	if style == "" {
		c.mu.Unlock()
		return fmt.Errorf("%w: style is required", models.ErrValidation)
	}

	if c.image == nil {
		defer c.mu.Unlock()
		c.form.Style = style
		if c.candidate != nil {
			c.candidate.NeedsClarification = false
			c.candidate.ClarificationQuestions = []string{}
		}
		c.state = ReadyToCommit
		return nil
	}

	req := dto.ClarifyRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(c.image.data),
		MediaType:   mediaType(c.candidate, c.image.filename),
		Style:       style,
	}
	if c.candidate != nil {
		req.ImagePath = c.candidate.ImagePath
		req.ImageRef = c.candidate.ImageRef
	}
	c.candidate = nil
	c.state = Uploading
	session := c.begin()
	c.mu.Unlock()

	cand, err := c.backend.AnalyzeClarified(ctx, req)
	return c.resolve(session, cand, err)
}

func mediaType(cand *models.Candidate, filename string) string {
	if cand != nil && cand.MediaType != "" {
		return cand.MediaType
	}
	if mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); mt != "" {
		return mt
	}
	return "image/jpeg"
}

// resolve moves an Uploading session on according to the reading.
func (c *Controller) resolve(session string, cand *models.Candidate, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if session != c.session || c.state != Uploading {
		return ErrStaleResponse
	}

	if err == nil && cand != nil && cand.Failed() {
		err = &AnalysisError{Message: cand.Error}
	}
	if err == nil && cand == nil {
		err = &AnalysisError{Message: "empty response from the recognition service"}
	}
	if err != nil {
		c.err = err
		// the form stays usable for manual entry, keeping any stored upload
		c.form = models.NewWineFields()
		if cand != nil {
			c.form.ImagePath = cand.ImagePath
			c.form.ImageRef = cand.ImageRef
		}
		c.candidate = nil
		c.image = nil
		c.state = Idle
		return err
	}

	c.candidate = cand
	c.form = cand.WineFields
	c.form.Normalize()
	if c.form.Quantity < 1 {
		c.form.Quantity = models.DefaultQuantity
	}

	switch {
	case cand.AwaitsClarification():
		c.state = AwaitingClarification
	case cand.IsDuplicate && cand.ExistingWine != nil:
		c.state = AwaitingDuplicateDecision
	default:
		c.state = ReadyToCommit
	}
	return nil
}

// MergeDuplicate adds qty bottles to the existing record instead of creating
// a new one.
func (c *Controller) MergeDuplicate(ctx context.Context, qty int) error {
	c.mu.Lock()
	if c.state != AwaitingDuplicateDecision || c.busy {
		defer c.mu.Unlock()
		return c.invalid("merge duplicate")
	}
	if qty < 1 {
		c.mu.Unlock()
		return ErrBadQuantity
	}
	existingID := c.candidate.ExistingWine.ID
	c.busy = true
	session := c.session
	c.mu.Unlock()

	w, err := c.backend.AdjustQuantity(ctx, existingID, qty)
	return c.commit(session, w, err)
}

// KeepAsNew drops the duplicate flag; the reading is saved as a new record.
func (c *Controller) KeepAsNew() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != AwaitingDuplicateDecision || c.busy {
		return c.invalid("keep as new")
	}
	c.candidate.IsDuplicate = false
	c.candidate.ExistingWine = nil
	c.state = ReadyToCommit
	return nil
}

// Save creates a record from the form, or updates the record being edited.
// It is allowed from ReadyToCommit and from Idle for manual entry.
func (c *Controller) Save(ctx context.Context) error {
	c.mu.Lock()
	if (c.state != ReadyToCommit && c.state != Idle) || c.busy {
		defer c.mu.Unlock()
		return c.invalid("save")
	}
	if strings.TrimSpace(c.form.Name) == "" {
		c.mu.Unlock()
		return ErrNameRequired
	}
	patch := models.PatchFrom(c.form)
	editingID := c.editingID
	c.busy = true
	session := c.session
	c.mu.Unlock()

	var (
		w   *models.Wine
		err error
	)
	if editingID != 0 {
		w, err = c.backend.UpdateWine(ctx, editingID, patch)
	} else {
		w, err = c.backend.CreateWine(ctx, patch)
	}
	return c.commit(session, w, err)
}

func (c *Controller) commit(session string, w *models.Wine, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false

	if err != nil {
		// state unchanged; mutations are not retried automatically
		return err
	}
	if session != c.session {
		// cancelled mid-write; the flow stays reset but the write happened
		c.committed = w
		return ErrCommittedAfterCancel
	}
	c.committed = w
	c.candidate = nil
	c.image = nil
	c.state = Committed
	return nil
}

// Cancel abandons the flow from any state but Committed. An analysis still in
// flight becomes stale; a write already sent may still land, in which case it
// finishes with ErrCommittedAfterCancel.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Committed {
		return c.invalid("cancel")
	}
	c.reset()
	return nil
}

// Reset starts over from any state.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
	c.committed = nil
}

func (c *Controller) reset() {
	c.begin()
	c.state = Idle
	c.candidate = nil
	c.image = nil
	c.form = models.NewWineFields()
	c.editingID = 0
	c.err = nil
}
