// Package filesignal stores cancellation signals as one file per job token.
// The file body holds the creation timestamp; the file's modification time is
// used when the body cannot be parsed.
package filesignal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JakeFAU/area-listing-scraper/internal/cancel"
)

const suffix = ".cancel"

// Store keeps signals under a directory.
type Store struct {
	dir string
}

// New creates the signal directory if needed.
func New(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("signal directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create signal directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(token string) (string, error) {
	if !cancel.ValidToken(token) {
		return "", cancel.ErrInvalidToken
	}
	return filepath.Join(s.dir, token+suffix), nil
}

// Create writes the signal file.
func (s *Store) Create(_ context.Context, token string, at time.Time) error {
	p, err := s.path(token)
	if err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, []byte(at.UTC().Format(time.RFC3339Nano)), 0o600); err != nil {
		return fmt.Errorf("failed to write signal file: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("failed to publish signal file: %w", err)
	}
	return nil
}

// Lookup reads the signal's creation time.
func (s *Store) Lookup(_ context.Context, token string) (time.Time, bool, error) {
	p, err := s.path(token)
	if err != nil {
		return time.Time{}, false, err
	}
	return readSignal(p)
}

func readSignal(p string) (time.Time, bool, error) {
	data, err := os.ReadFile(p) // #nosec G304 -- path is built from a validated token.
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to read signal file: %w", err)
	}
	if at, perr := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(data))); perr == nil {
		return at, true, nil
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to stat signal file: %w", err)
	}
	return info.ModTime(), true, nil
}

// Delete removes the signal file.
func (s *Store) Delete(_ context.Context, token string) error {
	p, err := s.path(token)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove signal file: %w", err)
	}
	return nil
}

// Sweep removes signal files created before cutoff.
func (s *Store) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list signal directory: %w", err)
	}
	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed, fmt.Errorf("sweep interrupted: %w", ctx.Err())
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		p := filepath.Join(s.dir, entry.Name())
		at, ok, err := readSignal(p)
		if err != nil || !ok || !at.Before(cutoff) {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("failed to remove signal file: %w", err)
		}
		removed++
	}
	return removed, nil
}
