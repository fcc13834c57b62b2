package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/your-org/cellar/pkg/client"
	"github.com/your-org/cellar/pkg/dto"
)

func newApp(t *testing.T, handler http.Handler, input string) (*app, *bytes.Buffer) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	out := &bytes.Buffer{}
	return &app{
		api: client.New(srv.URL, time.Second),
		in:  bufio.NewScanner(strings.NewReader(input)),
		out: out,
	}, out
}

func labelFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "label.jpg")
	if err := os.WriteFile(path, []byte("jpeg-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAddMergesDuplicate(t *testing.T) {
	var delta int
	created := false
	mux := http.NewServeMux()
	mux.HandleFunc("/api/analyze", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"Barolo","producer":"Vietti","vintage":2016,"quantity":1,
			"clarification_questions":[],"is_duplicate":true,
			"existing_wine":{"id":7,"name":"Barolo","producer":"Vietti","vintage":2016,"quantity":3}}`))
	})
	mux.HandleFunc("/api/wines/7/quantity", func(w http.ResponseWriter, r *http.Request) {
		var req dto.QuantityRequest
		json.NewDecoder(r.Body).Decode(&req)
		delta = *req.Delta
		w.Write([]byte(`{"id":7,"name":"Barolo","quantity":5}`))
	})
	mux.HandleFunc("/api/wines", func(w http.ResponseWriter, r *http.Request) {
		created = true
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":8,"name":"Barolo","quantity":1}`))
	})

	a, out := newApp(t, mux, "m\n2\n")
	if err := a.run(context.Background(), []string{"add", labelFile(t)}); err != nil {
		t.Fatal(err)
	}
	if delta != 2 || created {
		t.Fatalf("expected a merge of 2 and no create, got delta=%d created=%v", delta, created)
	}
	if !strings.Contains(out.String(), "saved #7 Barolo (5 in cellar)") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}

func TestAddFallsBackToManualEntry(t *testing.T) {
	var got map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/api/analyze", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"Unknown Wine","error":"Not a wine label image","clarification_questions":[],"image_path":"uploads/x.jpg"}`))
	})
	mux.HandleFunc("/api/wines", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":1,"name":"House Red","quantity":2}`))
	})

	// blank name first, then a real one
	a, out := newApp(t, mux, "\n\ny\nHouse Red\n2\ny\n")
	if err := a.run(context.Background(), []string{"add", labelFile(t)}); err != nil {
		t.Fatal(err)
	}
	if got["name"] != "House Red" || got["quantity"] != float64(2) || got["image_path"] != "uploads/x.jpg" {
		t.Fatalf("unexpected create body %v", got)
	}
	for _, want := range []string{"Not a wine label image", "a name is required", "saved #1 House Red"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRemoveRequiresConfirmation(t *testing.T) {
	deleted := false
	mux := http.NewServeMux()
	mux.HandleFunc("/api/wines/3", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			deleted = true
			w.Write([]byte(`{"message":"Wine deleted successfully"}`))
			return
		}
		w.Write([]byte(`{"id":3,"name":"Chablis","quantity":1}`))
	})

	a, out := newApp(t, mux, "n\n")
	if err := a.run(context.Background(), []string{"rm", "3"}); err != nil {
		t.Fatal(err)
	}
	if deleted || !strings.Contains(out.String(), "kept") {
		t.Fatalf("expected nothing deleted, output:\n%s", out.String())
	}

	a, _ = newApp(t, mux, "")
	if err := a.run(context.Background(), []string{"rm", "-yes", "3"}); err != nil {
		t.Fatal(err)
	}
	if !deleted {
		t.Fatal("expected the wine to be deleted")
	}
}

func TestUnknownCommand(t *testing.T) {
	a, _ := newApp(t, http.NotFoundHandler(), "")
	if err := a.run(context.Background(), []string{"frobnicate"}); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected a usage error, got %v", err)
	}
}
