// Package sqlite provides a single-file area store for local runs.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	// Registers the pure-Go "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/JakeFAU/area-listing-scraper/internal/scraper"
)

// AreaStore keeps area rows in a SQLite database file.
type AreaStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*AreaStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	store := &AreaStore{db: db}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *AreaStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS areas (
	id INTEGER PRIMARY KEY,
	prefecture TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL,
	url TEXT NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("create areas table: %w", err)
	}
	return nil
}

// LookupArea returns the area with id or scraper.ErrNotFound.
func (s *AreaStore) LookupArea(ctx context.Context, id int64) (scraper.AreaRef, error) {
	var area scraper.AreaRef
	err := s.db.QueryRowContext(ctx, `SELECT id, prefecture, name, url FROM areas WHERE id = ?`, id).
		Scan(&area.ID, &area.Prefecture, &area.Name, &area.StartURL)
	if errors.Is(err, sql.ErrNoRows) {
		return scraper.AreaRef{}, scraper.ErrNotFound
	}
	if err != nil {
		return scraper.AreaRef{}, fmt.Errorf("lookup area %d: %w", id, err)
	}
	return area, nil
}

// ListAreas returns every area ordered by id.
func (s *AreaStore) ListAreas(ctx context.Context) ([]scraper.AreaRef, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, prefecture, name, url FROM areas ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list areas: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM areas`); err != nil {
		return 0, fmt.Errorf("clear areas: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO areas (id, prefecture, name, url) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()
	for i, area := range areas {
		id := area.ID
		if id == 0 {
			id = int64(i + 1)
		}
		if _, err := stmt.ExecContext(ctx, id, area.Prefecture, area.Name, area.StartURL); err != nil {
			return 0, fmt.Errorf("insert area %q: %w", area.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	return len(areas), nil
}

// Ping checks the database handle.
func (s *AreaStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *AreaStore) Close() {
	_ = s.db.Close()
}
