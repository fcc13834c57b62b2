package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"modernc.org/sqlite"

	"github.com/your-org/cellar/internal/models"
)

// sqliteTime is fixed width so text ordering matches time ordering.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS wines (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	producer TEXT,
	vintage INTEGER,
	style TEXT,
	country TEXT,
	region TEXT,
	appellation TEXT,
	grape_varieties TEXT NOT NULL DEFAULT '[]',
	alcohol_percentage REAL,
	quantity INTEGER NOT NULL DEFAULT 1 CHECK (quantity >= 0),
	drinking_window_start INTEGER,
	drinking_window_end INTEGER,
	score INTEGER,
	price NUMERIC,
	price_currency TEXT NOT NULL DEFAULT 'USD',
	description TEXT,
	tasting_notes TEXT,
	image_path TEXT,
	image_ref TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_wines_name ON wines(name);
CREATE INDEX IF NOT EXISTS idx_wines_style ON wines(style);
CREATE INDEX IF NOT EXISTS idx_wines_country ON wines(country);
`

// sqliteLowerFunc lowercases every letter; the built-in LOWER only folds ASCII.
const sqliteLowerFunc = "unicode_lower"

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(sqliteLowerFunc, 1, unicodeLower)
}

func unicodeLower(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

// SQLiteStore is the single-file backend used by default.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer keeps AUTOINCREMENT and the quantity floor race free.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Close() {
	if err := s.db.Close(); err != nil {
		slog.Error("close sqlite", "error", err)
	}
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) timestamp() string {
	return s.now().UTC().Format(sqliteTime)
}

func (s *SQLiteStore) ListWines(ctx context.Context, q models.WineQuery) ([]models.Wine, error) {
	query, args := buildListQuery(q, sqliteDialect)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list wines: %w", err)
	}
	defer rows.Close()

	wines := []models.Wine{}
	for rows.Next() {
		w, err := scanSQLiteWine(rows)
		if err != nil {
			return nil, err
		}
		wines = append(wines, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list wines: %w", err)
	}
	return wines, nil
}

func (s *SQLiteStore) GetWine(ctx context.Context, id int64) (*models.Wine, error) {
	return getSQLiteWine(ctx, s.db, id)
}

func (s *SQLiteStore) CreateWine(ctx context.Context, f models.WineFields) (*models.Wine, error) {
	args, err := wineArgs(f)
	if err != nil {
		return nil, err
	}
	ts := s.timestamp()
	args = append(args, ts, ts)

	res, err := s.db.ExecContext(ctx, insertSQL(bindQuestion, "created_at", "updated_at"), args...)
	if err != nil {
		return nil, fmt.Errorf("create wine: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create wine: %w", err)
	}
	return s.GetWine(ctx, id)
}

func (s *SQLiteStore) UpdateWine(ctx context.Context, id int64, p models.WinePatch) (*models.Wine, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	current, err := getSQLiteWine(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	fields, err := applyPatch(current, p)
	if err != nil {
		return nil, err
	}
	args, err := wineArgs(fields)
	if err != nil {
		return nil, err
	}
	args = append(args, s.timestamp(), id)

	if _, err := tx.ExecContext(ctx, updateSQL(bindQuestion), args...); err != nil {
		return nil, fmt.Errorf("update wine %d: %w", id, err)
	}
	updated, err := getSQLiteWine(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return updated, nil
}

func (s *SQLiteStore) AdjustQuantity(ctx context.Context, id int64, delta int) (*models.Wine, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE wines SET quantity = MAX(quantity + ?, 0), updated_at = ? WHERE id = ? RETURNING `+wineColumns,
		delta, s.timestamp(), id)
	w, err := scanSQLiteWine(row)
	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("adjust quantity of wine %d: %w", id, err)
	}
	return w, nil
}

func (s *SQLiteStore) DeleteWine(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM wines WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete wine %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete wine %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type sqliteQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getSQLiteWine(ctx context.Context, q sqliteQuerier, id int64) (*models.Wine, error) {
	row := q.QueryRowContext(ctx, `SELECT `+wineColumns+` FROM wines WHERE id = ?`, id)
	return scanSQLiteWine(row)
}

func scanSQLiteWine(row rowScanner) (*models.Wine, error) {
	var (
		r                wineRow
		created, updated string
	)
	if err := r.scan(row, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan wine: %w", err)
	}
	w, err := r.wine()
	if err != nil {
		return nil, err
	}
	if w.CreatedAt, err = time.Parse(sqliteTime, created); err != nil {
		return nil, fmt.Errorf("parse created_at of wine %d: %w", w.ID, err)
	}
	if w.UpdatedAt, err = time.Parse(sqliteTime, updated); err != nil {
		return nil, fmt.Errorf("parse updated_at of wine %d: %w", w.ID, err)
	}
	return w, nil
}
