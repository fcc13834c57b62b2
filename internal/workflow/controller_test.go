package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/your-org/cellar/internal/models"
	"github.com/your-org/cellar/pkg/dto"
)

type fakeBackend struct {
	mu sync.Mutex

	analyze      func() (*models.Candidate, error)
	clarified    func(req dto.ClarifyRequest) (*models.Candidate, error)
	beforeCreate func()
	quantities   map[int64]int

	analyzeCalls   int
	clarifiedCalls int
	clarifyReqs    []dto.ClarifyRequest
	created        []models.WinePatch
	updated        map[int64]models.WinePatch
	adjusted       map[int64]int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		quantities: map[int64]int{},
		updated:    map[int64]models.WinePatch{},
		adjusted:   map[int64]int{},
	}
}

func (f *fakeBackend) Analyze(context.Context, string, []byte) (*models.Candidate, error) {
	f.mu.Lock()
	f.analyzeCalls++
	fn := f.analyze
	f.mu.Unlock()
	return fn()
}

func (f *fakeBackend) AnalyzeClarified(_ context.Context, req dto.ClarifyRequest) (*models.Candidate, error) {
	f.mu.Lock()
	f.clarifiedCalls++
	f.clarifyReqs = append(f.clarifyReqs, req)
	fn := f.clarified
	f.mu.Unlock()
	return fn(req)
}

func (f *fakeBackend) CreateWine(_ context.Context, p models.WinePatch) (*models.Wine, error) {
	if f.beforeCreate != nil {
		f.beforeCreate()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, p)
	w := &models.Wine{ID: int64(100 + len(f.created)), WineFields: models.NewWineFields()}
	p.Apply(&w.WineFields)
	return w, nil
}

func (f *fakeBackend) UpdateWine(_ context.Context, id int64, p models.WinePatch) (*models.Wine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated[id] = p
	w := &models.Wine{ID: id}
	p.Apply(&w.WineFields)
	return w, nil
}

func (f *fakeBackend) AdjustQuantity(_ context.Context, id int64, delta int) (*models.Wine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adjusted[id] += delta
	f.quantities[id] += delta
	return &models.Wine{ID: id, WineFields: models.WineFields{Name: "Barolo", Quantity: f.quantities[id]}}, nil
}

func candidate(name string) *models.Candidate {
	return &models.Candidate{
		WineFields: models.WineFields{
			Name:           name,
			Quantity:       1,
			GrapeVarieties: []string{},
			ImagePath:      "uploads/label.png",
			ImageRef:       "uploads/label.png",
		},
		ClarificationQuestions: []string{},
		MediaType:              "image/png",
	}
}

func TestClarificationTriggersExactlyOneReanalysis(t *testing.T) {
	b := newFakeBackend()
	b.analyze = func() (*models.Candidate, error) {
		c := candidate("Mystery Cuvée")
		c.NeedsClarification = true
		c.ClarificationQuestions = []string{"Is this a red or white wine?"}
		return c, nil
	}
	b.clarified = func(req dto.ClarifyRequest) (*models.Candidate, error) {
		c := candidate("Mystery Cuvée")
		c.Style = req.Style
		return c, nil
	}

	ctl := NewController(b)
	if err := ctl.SubmitImage(context.Background(), "label.png", []byte("png")); err != nil {
		t.Fatal(err)
	}
	if ctl.State() != AwaitingClarification {
		t.Fatalf("expected awaiting clarification, got %s", ctl.State())
	}
	if ctl.Form().Name != "Mystery Cuvée" {
		t.Error("form should be prefilled from the candidate")
	}

	if err := ctl.AnswerClarification(context.Background(), "red"); err != nil {
		t.Fatal(err)
	}
	if b.analyzeCalls != 1 || b.clarifiedCalls != 1 {
		t.Fatalf("expected 1 analyze and 1 clarified call, got %d and %d", b.analyzeCalls, b.clarifiedCalls)
	}
	req := b.clarifyReqs[0]
	if req.Style != models.StyleRed || req.MediaType != "image/png" || req.ImagePath != "uploads/label.png" || req.ImageBase64 != "cG5n" {
		t.Fatalf("unexpected clarify request %+v", req)
	}
	if ctl.State() != ReadyToCommit || ctl.Form().Style != models.StyleRed {
		t.Fatalf("expected ready with style Red, got %s / %q", ctl.State(), ctl.Form().Style)
	}

	if err := ctl.Save(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ctl.State() != Committed || len(b.created) != 1 {
		t.Fatalf("expected one create, got %d (state %s)", len(b.created), ctl.State())
	}
	if ctl.Committed().ImagePath != "uploads/label.png" {
		t.Error("the stored upload should be saved with the record")
	}
}

func TestClarificationWithoutImageMakesNoCalls(t *testing.T) {
	b := newFakeBackend()
	ctl := NewController(b)

	c := candidate("Cuvée X")
	c.ClarificationQuestions = []string{"Red or white?"}
	if err := ctl.Review(c); err != nil {
		t.Fatal(err)
	}
	if ctl.State() != AwaitingClarification {
		t.Fatalf("expected awaiting clarification, got %s", ctl.State())
	}

	if err := ctl.AnswerClarification(context.Background(), "White"); err != nil {
		t.Fatal(err)
	}
	if b.analyzeCalls+b.clarifiedCalls != 0 {
		t.Fatal("no network calls expected")
	}
	if ctl.State() != ReadyToCommit || ctl.Form().Style != models.StyleWhite {
		t.Fatalf("unexpected state %s / %q", ctl.State(), ctl.Form().Style)
	}
}

func TestMergeDuplicateAddsToExisting(t *testing.T) {
	b := newFakeBackend()
	b.quantities[7] = 3
	b.analyze = func() (*models.Candidate, error) {
		c := candidate("Barolo")
		c.IsDuplicate = true
		c.ExistingWine = &models.Wine{ID: 7, WineFields: models.WineFields{Name: "Barolo", Quantity: 3}}
		return c, nil
	}

	ctl := NewController(b)
	if err := ctl.SubmitImage(context.Background(), "barolo.jpg", []byte("jpg")); err != nil {
		t.Fatal(err)
	}
	if ctl.State() != AwaitingDuplicateDecision {
		t.Fatalf("expected duplicate decision, got %s", ctl.State())
	}

	if err := ctl.MergeDuplicate(context.Background(), 0); !errors.Is(err, ErrBadQuantity) {
		t.Fatalf("expected ErrBadQuantity, got %v", err)
	}
	if err := ctl.MergeDuplicate(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	if ctl.State() != Committed || ctl.Committed().Quantity != 5 {
		t.Fatalf("expected 5 bottles committed, got %+v in %s", ctl.Committed(), ctl.State())
	}
	if b.adjusted[7] != 2 || len(b.created) != 0 {
		t.Fatalf("expected +2 on wine 7 and no create, got %v / %d", b.adjusted, len(b.created))
	}
	if ctl.Candidate() != nil {
		t.Error("candidate should be discarded after merge")
	}
}

func TestKeepAsNewCreatesRecord(t *testing.T) {
	b := newFakeBackend()
	b.analyze = func() (*models.Candidate, error) {
		c := candidate("Barolo")
		c.IsDuplicate = true
		c.ExistingWine = &models.Wine{ID: 7}
		return c, nil
	}

	ctl := NewController(b)
	if err := ctl.SubmitImage(context.Background(), "barolo.jpg", []byte("jpg")); err != nil {
		t.Fatal(err)
	}
	if err := ctl.KeepAsNew(); err != nil {
		t.Fatal(err)
	}
	if ctl.State() != ReadyToCommit || ctl.Candidate().IsDuplicate {
		t.Fatalf("expected ready without duplicate flag, got %s", ctl.State())
	}
	if err := ctl.Save(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(b.created) != 1 || len(b.adjusted) != 0 {
		t.Fatalf("expected one create and no adjust, got %d / %v", len(b.created), b.adjusted)
	}
}

func TestFailedAnalysisFallsBackToManualEntry(t *testing.T) {
	b := newFakeBackend()
	b.analyze = func() (*models.Candidate, error) {
		c := models.ErrorCandidate("Not a wine label image")
		c.ImagePath = "uploads/cat.png"
		return c, nil
	}

	ctl := NewController(b)
	err := ctl.SubmitImage(context.Background(), "cat.png", []byte("png"))
	var aerr *AnalysisError
	if !errors.As(err, &aerr) || aerr.Message != "Not a wine label image" {
		t.Fatalf("expected the service message, got %v", err)
	}
	if ctl.State() != Idle || ctl.Err() == nil {
		t.Fatalf("expected idle with error, got %s", ctl.State())
	}
	if ctl.Form().ImagePath != "uploads/cat.png" {
		t.Error("stored upload should stay in the form")
	}

	if err := ctl.Save(context.Background()); !errors.Is(err, ErrNameRequired) {
		t.Fatalf("expected ErrNameRequired, got %v", err)
	}
	if len(b.created) != 0 {
		t.Fatal("no create expected for a nameless form")
	}

	if err := ctl.EditForm(func(f *models.WineFields) { f.Name = "House Red" }); err != nil {
		t.Fatal(err)
	}
	if err := ctl.Save(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ctl.State() != Committed || ctl.Committed().ImagePath != "uploads/cat.png" {
		t.Fatalf("unexpected commit %+v", ctl.Committed())
	}
}

func TestTransportErrorReturnsToIdle(t *testing.T) {
	b := newFakeBackend()
	boom := errors.New("connection refused")
	b.analyze = func() (*models.Candidate, error) { return nil, boom }

	ctl := NewController(b)
	if err := ctl.SubmitImage(context.Background(), "x.jpg", nil); !errors.Is(err, boom) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if ctl.State() != Idle || !errors.Is(ctl.Err(), boom) {
		t.Fatalf("expected idle with error, got %s", ctl.State())
	}
}

func TestCancelMakesInFlightReplyStale(t *testing.T) {
	b := newFakeBackend()
	release := make(chan struct{})
	started := make(chan struct{})
	b.analyze = func() (*models.Candidate, error) {
		close(started)
		<-release
		return candidate("Late Harvest"), nil
	}

	ctl := NewController(b)
	done := make(chan error, 1)
	go func() {
		done <- ctl.SubmitImage(context.Background(), "x.jpg", []byte("jpg"))
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("analyze never started")
	}
	if ctl.State() != Uploading {
		t.Fatalf("expected uploading, got %s", ctl.State())
	}
	if err := ctl.Cancel(); err != nil {
		t.Fatal(err)
	}
	close(release)

	select {
	case err := <-done:
		if !errors.Is(err, ErrStaleResponse) {
			t.Fatalf("expected stale response, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("submit never returned")
	}
	if ctl.State() != Idle || ctl.Candidate() != nil || ctl.Form().Name != "" {
		t.Fatal("cancelled flow should stay idle and empty")
	}
}

func TestNewUploadSupersedesInFlightAnalysis(t *testing.T) {
	b := newFakeBackend()
	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	b.analyze = func() (*models.Candidate, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
			return candidate("Old"), nil
		}
		return candidate("New"), nil
	}

	ctl := NewController(b)
	done := make(chan error, 1)
	go func() {
		done <- ctl.SubmitImage(context.Background(), "old.jpg", []byte("old"))
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("first analyze never started")
	}
	if err := ctl.SubmitImage(context.Background(), "new.jpg", []byte("new")); err != nil {
		t.Fatalf("second upload while the first is in flight: %v", err)
	}
	if ctl.State() != ReadyToCommit || ctl.Form().Name != "New" {
		t.Fatalf("expected the second reading, got %s / %q", ctl.State(), ctl.Form().Name)
	}

	close(release)
	select {
	case err := <-done:
		if !errors.Is(err, ErrStaleResponse) {
			t.Fatalf("expected the first reply to be stale, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("first submit never returned")
	}
	if ctl.State() != ReadyToCommit || ctl.Form().Name != "New" {
		t.Fatalf("late reply overwrote the form: %s / %q", ctl.State(), ctl.Form().Name)
	}
}

func TestFlagWithoutQuestionsGoesToDuplicateDecision(t *testing.T) {
	b := newFakeBackend()
	b.analyze = func() (*models.Candidate, error) {
		c := candidate("Barolo")
		c.NeedsClarification = true
		c.IsDuplicate = true
		c.ExistingWine = &models.Wine{ID: 7, WineFields: models.WineFields{Name: "Barolo", Quantity: 3}}
		return c, nil
	}

	ctl := NewController(b)
	if err := ctl.SubmitImage(context.Background(), "barolo.jpg", []byte("jpg")); err != nil {
		t.Fatal(err)
	}
	if ctl.State() != AwaitingDuplicateDecision {
		t.Fatalf("expected the merge offer, got %s", ctl.State())
	}
}

func TestCancelDuringSaveReportsTheWrite(t *testing.T) {
	b := newFakeBackend()
	release := make(chan struct{})
	started := make(chan struct{})
	b.beforeCreate = func() {
		close(started)
		<-release
	}

	ctl := NewController(b)
	if err := ctl.EditForm(func(f *models.WineFields) { f.Name = "Sancerre" }); err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- ctl.Save(context.Background()) }()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("create never started")
	}
	if err := ctl.Cancel(); err != nil {
		t.Fatal(err)
	}
	close(release)

	select {
	case err := <-done:
		if !errors.Is(err, ErrCommittedAfterCancel) {
			t.Fatalf("expected ErrCommittedAfterCancel, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("save never returned")
	}
	if w := ctl.Committed(); w == nil || w.Name != "Sancerre" {
		t.Fatalf("the landed write should be reported, got %+v", w)
	}
	if ctl.State() != Idle || len(b.created) != 1 {
		t.Fatalf("expected idle after cancel with one create, got %s / %d", ctl.State(), len(b.created))
	}
}

func TestInvalidTransitions(t *testing.T) {
	b := newFakeBackend()
	ctl := NewController(b)

	if err := ctl.MergeDuplicate(context.Background(), 1); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("merge in idle: %v", err)
	}
	if err := ctl.KeepAsNew(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("keep as new in idle: %v", err)
	}
	if err := ctl.AnswerClarification(context.Background(), "Red"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("answer in idle: %v", err)
	}

	if err := ctl.Edit(&models.Wine{ID: 3, WineFields: models.WineFields{Name: "Rioja", Quantity: 1}}); err != nil {
		t.Fatal(err)
	}
	if err := ctl.Save(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := b.updated[3]; !ok || len(b.created) != 0 {
		t.Fatal("editing should update, not create")
	}
	if err := ctl.Cancel(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancel after commit: %v", err)
	}
	ctl.Reset()
	if ctl.State() != Idle {
		t.Fatal("reset should return to idle")
	}
}
