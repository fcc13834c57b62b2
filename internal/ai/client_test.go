package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/your-org/cellar/internal/config"
	"github.com/your-org/cellar/internal/models"
)

// fakeMessagesAPI answers every request with reply as the model text.
func fakeMessagesAPI(t *testing.T, reply string, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" || r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing auth headers")
		}
		var req messagesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": reply}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testClient(url string) *Client {
	return NewClient(config.AIConfig{
		BaseURL:           url,
		APIKey:            "test-key",
		Model:             "test-model",
		Version:           "2023-06-01",
		Timeout:           2 * time.Second,
		MaxTokens:         100,
		MaxImageDimension: 1568,
	})
}

func TestExtractObjectFromFence(t *testing.T) {
	reply := "```json\n{\"name\": \"Barolo\", \"vintage\": 2016}\n```\nEnjoy!"
	raw, err := extractObject(reply)
	if err != nil {
		t.Fatal(err)
	}
	if raw["name"] != "Barolo" {
		t.Fatalf("unexpected object %v", raw)
	}

	if _, err := extractObject("I cannot help with that"); err == nil {
		t.Fatal("expected an error when no object is present")
	}
}

func TestCleanCandidateRanges(t *testing.T) {
	raw, err := extractObject(`{
		"name": "",
		"producer": "  ",
		"style": "rose",
		"vintage": "1750",
		"drinking_window_start": 2024.0,
		"drinking_window_end": 2301,
		"score": 101,
		"alcohol_percentage": "13.5",
		"grape_varieties": ["Grenache", "", null],
		"tasting_notes": {"aromas": ["strawberry"], "body": "Light"},
		"needs_clarification": true,
		"clarification_questions": ["Is this wine red or white?"]
	}`)
	if err != nil {
		t.Fatal(err)
	}

	c := cleanCandidate(raw)
	if c.Name != unknownWineName || c.Producer != "" || c.Style != models.StyleRose {
		t.Fatalf("unexpected text fields %+v", c.WineFields)
	}
	if c.Vintage != nil || c.Score != nil {
		t.Fatal("out of range numbers should be dropped")
	}
	if c.DrinkingWindowStart != nil || c.DrinkingWindowEnd != nil {
		t.Fatal("a window left with one bound should be dropped whole")
	}
	if c.AlcoholPercentage == nil || *c.AlcoholPercentage != 13.5 {
		t.Fatal("expected alcohol 13.5")
	}
	if len(c.GrapeVarieties) != 1 || c.TastingNotes.Body != "Light" {
		t.Fatalf("unexpected lists %+v", c.WineFields)
	}
	if !c.NeedsClarification || len(c.ClarificationQuestions) != 1 || c.Quantity != 1 {
		t.Fatalf("unexpected control fields %+v", c)
	}
}

func TestCleanCandidateFlagFollowsQuestions(t *testing.T) {
	c := cleanCandidate(map[string]any{"name": "Barolo", "needs_clarification": true, "clarification_questions": []any{}})
	if c.NeedsClarification || c.AwaitsClarification() {
		t.Fatalf("a flag without questions must be dropped: %+v", c)
	}

	c = cleanCandidate(map[string]any{"name": "Barolo", "clarification_questions": []any{"Is this wine red or white?"}})
	if !c.NeedsClarification {
		t.Fatal("questions imply the flag")
	}
}

func TestAnalyzeMapsReply(t *testing.T) {
	srv := fakeMessagesAPI(t, "```\n{\"name\": \"Chablis Premier Cru\", \"style\": \"White\", \"vintage\": 2020}\n```", nil)
	c := testClient(srv.URL)

	cand := c.Analyze(context.Background(), []byte("not really an image"), "image/jpeg", "")
	if cand.Failed() {
		t.Fatalf("unexpected error %q", cand.Error)
	}
	if cand.Name != "Chablis Premier Cru" || *cand.Vintage != 2020 || cand.Style != models.StyleWhite {
		t.Fatalf("unexpected candidate %+v", cand.WineFields)
	}
}

func TestAnalyzeServiceErrorBecomesCandidate(t *testing.T) {
	srv := fakeMessagesAPI(t, `{"error": "Not a wine label image"}`, nil)
	cand := testClient(srv.URL).Analyze(context.Background(), []byte("x"), "image/png", "")
	if cand.Error != "Not a wine label image" {
		t.Fatalf("expected service error to surface verbatim, got %q", cand.Error)
	}
}

func TestAnalyzeWithStyleHintClearsStyleQuestion(t *testing.T) {
	srv := fakeMessagesAPI(t, `{"name": "Santenay", "style": null, "needs_clarification": true,
		"clarification_questions": ["Is this wine red or white?"]}`, nil)

	cand := testClient(srv.URL).Analyze(context.Background(), []byte("x"), "image/jpeg", "red")
	if cand.Style != models.StyleRed {
		t.Fatalf("expected confirmed style Red, got %q", cand.Style)
	}
	if cand.NeedsClarification || len(cand.ClarificationQuestions) != 0 {
		t.Fatalf("style question should be resolved: %+v", cand.ClarificationQuestions)
	}
}

func TestAnalyzeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.timeout = 50 * time.Millisecond

	cand := c.Analyze(context.Background(), []byte("x"), "image/jpeg", "")
	if cand.Error != "The recognition service timed out" {
		t.Fatalf("expected timeout candidate, got %q", cand.Error)
	}
}

func TestMissingAPIKey(t *testing.T) {
	c := NewClient(config.AIConfig{BaseURL: "http://127.0.0.1:1"})
	id := c.Identify(context.Background(), []byte("x"), "image/jpeg")
	if id.Error == "" {
		t.Fatal("expected an error without an API key")
	}
}

func TestIdentify(t *testing.T) {
	srv := fakeMessagesAPI(t, `{"name": "Barolo", "producer": "Conterno", "vintage": 2016}`, nil)
	id := testClient(srv.URL).Identify(context.Background(), []byte("x"), "image/jpeg")
	if id.Error != "" || id.Name != "Barolo" || id.Producer != "Conterno" || *id.Vintage != 2016 {
		t.Fatalf("unexpected identification %+v", id)
	}
}

func TestSuggestPairingsDropsUnknownWines(t *testing.T) {
	srv := fakeMessagesAPI(t, `{"suggestions": [
		{"wine_id": 1, "wine_name": "whatever", "match_level": "Perfect", "why": "Tannins meet fat"},
		{"wine_id": 99, "wine_name": "Ghost", "match_level": "good", "why": "Does not exist"},
		{"wine_id": "2", "match_level": "sublime", "why": "Acid cuts through"}
	], "tip": "Decant an hour ahead"}`, nil)

	vintage := 2016
	collection := []models.Wine{
		{ID: 1, WineFields: models.WineFields{Name: "Barolo", Vintage: &vintage, Quantity: 2}},
		{ID: 2, WineFields: models.WineFields{Name: "Chablis", Quantity: 1}},
	}

	res := testClient(srv.URL).SuggestPairings(context.Background(), "braised short ribs", collection)
	if res.Error != "" {
		t.Fatal(res.Error)
	}
	if len(res.Suggestions) != 2 {
		t.Fatalf("expected 2 suggestions, got %+v", res.Suggestions)
	}
	first := res.Suggestions[0]
	if first.WineName != "Barolo" || first.MatchLevel != models.MatchPerfect || *first.Vintage != 2016 {
		t.Fatalf("unexpected first suggestion %+v", first)
	}
	if res.Suggestions[1].MatchLevel.Known() {
		t.Fatal("unknown match levels pass through unvalidated")
	}
	if !strings.Contains(res.Tip, "Decant") {
		t.Fatalf("unexpected tip %q", res.Tip)
	}
}

func TestSuggestPairingsEmptyCollectionSkipsService(t *testing.T) {
	var calls int32
	srv := fakeMessagesAPI(t, `{}`, &calls)

	res := testClient(srv.URL).SuggestPairings(context.Background(), "oysters", nil)
	if res.Error != "Your collection is empty" {
		t.Fatalf("unexpected result %+v", res)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatal("service must not be called for an empty collection")
	}
}
