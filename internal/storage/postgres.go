package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/cellar/internal/config"
	"github.com/your-org/cellar/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS wines (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	producer TEXT,
	vintage INTEGER,
	style TEXT,
	country TEXT,
	region TEXT,
	appellation TEXT,
	grape_varieties TEXT NOT NULL DEFAULT '[]',
	alcohol_percentage DOUBLE PRECISION,
	quantity INTEGER NOT NULL DEFAULT 1 CHECK (quantity >= 0),
	drinking_window_start INTEGER,
	drinking_window_end INTEGER,
	score INTEGER,
	price NUMERIC(12, 2),
	price_currency TEXT NOT NULL DEFAULT 'USD',
	description TEXT,
	tasting_notes TEXT,
	image_path TEXT,
	image_ref TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_wines_name ON wines(name);
CREATE INDEX IF NOT EXISTS idx_wines_style ON wines(style);
CREATE INDEX IF NOT EXISTS idx_wines_country ON wines(country);
`

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(context.Background(), postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) ListWines(ctx context.Context, q models.WineQuery) ([]models.Wine, error) {
	query, args := buildListQuery(q, postgresDialect)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list wines: %w", err)
	}
	defer rows.Close()

	wines := []models.Wine{}
	for rows.Next() {
		w, err := scanPostgresWine(rows)
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

func (s *PostgresStore) GetWine(ctx context.Context, id int64) (*models.Wine, error) {
	return scanPostgresWine(s.pool.QueryRow(ctx,
		`SELECT `+wineColumns+` FROM wines WHERE id = $1`, id))
}

func (s *PostgresStore) CreateWine(ctx context.Context, f models.WineFields) (*models.Wine, error) {
	args, err := wineArgs(f)
	if err != nil {
		return nil, err
	}
	w, err := scanPostgresWine(s.pool.QueryRow(ctx,
		insertSQL(bindDollar)+` RETURNING `+wineColumns, args...))
	if err != nil {
		return nil, fmt.Errorf("create wine: %w", err)
	}
	return w, nil
}

func (s *PostgresStore) UpdateWine(ctx context.Context, id int64, p models.WinePatch) (*models.Wine, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanPostgresWine(tx.QueryRow(ctx,
		`SELECT `+wineColumns+` FROM wines WHERE id = $1 FOR UPDATE`, id))
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
	args = append(args, time.Now().UTC(), id)

	updated, err := scanPostgresWine(tx.QueryRow(ctx,
		updateSQL(bindDollar)+` RETURNING `+wineColumns, args...))
	if err != nil {
		return nil, fmt.Errorf("update wine %d: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) AdjustQuantity(ctx context.Context, id int64, delta int) (*models.Wine, error) {
	w, err := scanPostgresWine(s.pool.QueryRow(ctx,
		`UPDATE wines SET quantity = GREATEST(quantity + $1, 0), updated_at = now()
		 WHERE id = $2 RETURNING `+wineColumns, delta, id))
	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("adjust quantity of wine %d: %w", id, err)
	}
	return w, nil
}

func (s *PostgresStore) DeleteWine(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM wines WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete wine %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPostgresWine(row pgx.Row) (*models.Wine, error) {
	var r wineRow
	if err := r.scan(row, &r.w.CreatedAt, &r.w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan wine: %w", err)
	}
	return r.wine()
}
