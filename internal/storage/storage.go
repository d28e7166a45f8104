// Package storage defines the persistence contracts shared by the blob and
// area store backends.
package storage

import (
	"context"
	"errors"
	"io"

	"github.com/JakeFAU/area-listing-scraper/internal/scraper"
)

// ErrObjectNotFound is returned by GetObject for missing objects.
var ErrObjectNotFound = errors.New("object not found")

// BlobStore writes and reads report artifacts.
type BlobStore interface {
	// PutObject stores data under path and returns a backend URI.
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	// GetObject opens the object at path. Missing objects yield ErrObjectNotFound.
	GetObject(ctx context.Context, path string) (io.ReadCloser, error)
}

// AreaStore resolves, lists, and seeds area metadata.
type AreaStore interface {
	scraper.AreaStore
	// ListAreas returns every area ordered by id.
	ListAreas(ctx context.Context) ([]scraper.AreaRef, error)
	// SeedAreas replaces the area table with areas and reports rows written.
	SeedAreas(ctx context.Context, areas []scraper.AreaRef) (int, error)
	// Close releases the backend.
	Close()
}
