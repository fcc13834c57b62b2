package storage

import (
	"strconv"
	"strings"
	"testing"

	"github.com/your-org/cellar/internal/models"
)

func TestBuildListQueryDollarPlaceholders(t *testing.T) {
	q := models.WineQuery{
		Filter: models.WineFilter{
			Search:      "bar",
			Style:       "Red",
			VintageMin:  intp(2000),
			DrinkingNow: true,
			Year:        2026,
		},
		SortBy:    models.SortVintage,
		SortOrder: "desc",
	}

	sql, args := buildListQuery(q, postgresDialect)

	for _, want := range []string{
		"LOWER(name) LIKE $1", "LIKE $2", "style = $3", "vintage >= $4",
		"drinking_window_start <= $5", "drinking_window_end >= $6",
		"ORDER BY (vintage IS NULL), vintage DESC, id ASC",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("query missing %q:\n%s", want, sql)
		}
	}
	if len(args) != 6 {
		t.Fatalf("expected 6 args, got %d", len(args))
	}
	if args[0] != "%bar%" || args[5] != 2026 {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestBuildListQuerySQLiteFoldsUnicode(t *testing.T) {
	sql, args := buildListQuery(models.WineQuery{Filter: models.WineFilter{Search: "Échezeaux"}}, sqliteDialect)
	if !strings.Contains(sql, "unicode_lower(name) LIKE ?") || strings.Contains(sql, "LOWER(") {
		t.Fatalf("sqlite search must use the unicode fold:\n%s", sql)
	}
	if args[0] != "%échezeaux%" {
		t.Fatalf("unexpected pattern %v", args[0])
	}
}

func TestUpdateSQLPutsIDLast(t *testing.T) {
	sql := updateSQL(bindDollar)
	n := len(editableColumns)
	if !strings.HasSuffix(sql, "WHERE id = $"+strconv.Itoa(n+2)) {
		t.Fatalf("unexpected update statement %s", sql)
	}
	if !strings.Contains(sql, "updated_at = $"+strconv.Itoa(n+1)) {
		t.Fatalf("updated_at placeholder missing: %s", sql)
	}
}

func TestImageExt(t *testing.T) {
	if ext, err := ImageExt("Label.JPG"); err != nil || ext != "jpg" {
		t.Fatalf("expected jpg, got %q (%v)", ext, err)
	}
	if _, err := ImageExt("notes.pdf"); err == nil {
		t.Fatal("pdf should be rejected")
	}
}
