package server

import (
	"context"
	"fmt"
	"os"

	"github.com/JakeFAU/area-listing-scraper/internal/storage"
)

// SeedFromCSV replaces the areas in store with the rows of the CSV at path.
func SeedFromCSV(ctx context.Context, store storage.AreaStore, path string) (int, error) {
	// #nosec G304 -- path comes from operator configuration.
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open area csv: %w", err)
	}
	defer func() { _ = f.Close() }()

	areas, err := storage.LoadAreasCSV(f)
	if err != nil {
		return 0, err
	}
	n, err := store.SeedAreas(ctx, areas)
	if err != nil {
		return 0, fmt.Errorf("seed areas: %w", err)
	}
	return n, nil
}
