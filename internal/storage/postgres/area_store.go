// Package postgres provides the Postgres-backed area store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/area-listing-scraper/internal/scraper"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for area rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of pgxpool.Pool the store needs.
type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Ping(context.Context) error
	Close()
}

// AreaStore reads and seeds area rows in Postgres.
type AreaStore struct {
	pool  pool
	table string
}

// NewAreaStore connects a pool using cfg.
func NewAreaStore(ctx context.Context, cfg Config) (*AreaStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("areas.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewAreaStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewAreaStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewAreaStoreWithPool(p pool, table string) (*AreaStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "areas"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &AreaStore{pool: p, table: table}, nil
}

// Migrate creates the area table when missing.
func (s *AreaStore) Migrate(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGINT PRIMARY KEY,
	prefecture TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL,
	url TEXT NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

// LookupArea returns the area with id or scraper.ErrNotFound.
func (s *AreaStore) LookupArea(ctx context.Context, id int64) (scraper.AreaRef, error) {
	query := fmt.Sprintf(`SELECT id, prefecture, name, url FROM %s WHERE id = $1`, s.table)
	var area scraper.AreaRef
	err := s.pool.QueryRow(ctx, query, id).Scan(&area.ID, &area.Prefecture, &area.Name, &area.StartURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return scraper.AreaRef{}, scraper.ErrNotFound
	}
	if err != nil {
		return scraper.AreaRef{}, fmt.Errorf("lookup area %d: %w", id, err)
	}
	return area, nil
}

// ListAreas returns every area ordered by id.
func (s *AreaStore) ListAreas(ctx context.Context) ([]scraper.AreaRef, error) {
	query := fmt.Sprintf(`SELECT id, prefecture, name, url FROM %s ORDER BY id`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list areas: %w", err)
	}
	defer rows.Close()

	areas := []scraper.AreaRef{}
	for rows.Next() {
		var area scraper.AreaRef
		if err := rows.Scan(&area.ID, &area.Prefecture, &area.Name, &area.StartURL); err != nil {
			return nil, fmt.Errorf("scan area: %w", err)
		}
		areas = append(areas, area)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate areas: %w", err)
	}
	return areas, nil
}

// SeedAreas replaces the table contents in one transaction. Areas without an
// id are numbered by position starting at 1.
func (s *AreaStore) SeedAreas(ctx context.Context, areas []scraper.AreaRef) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin seed: %w", err)
	}
	if err := s.seed(ctx, tx, areas); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return 0, fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	return len(areas), nil
}

func (s *AreaStore) seed(ctx context.Context, tx pgx.Tx, areas []scraper.AreaRef) error {
	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table)); err != nil {
		return fmt.Errorf("clear areas: %w", err)
	}
	insert := fmt.Sprintf(`INSERT INTO %s (id, prefecture, name, url) VALUES ($1, $2, $3, $4)`, s.table)
	for i, area := range areas {
		id := area.ID
		if id == 0 {
			id = int64(i + 1)
		}
		if _, err := tx.Exec(ctx, insert, id, area.Prefecture, area.Name, area.StartURL); err != nil {
			return fmt.Errorf("insert area %q: %w", area.Name, err)
		}
	}
	return nil
}

// Ping checks connectivity.
func (s *AreaStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (s *AreaStore) Close() {
	s.pool.Close()
}
