package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/area-listing-scraper/internal/scraper"
)

// AreaStore keeps areas in a map keyed by id.
type AreaStore struct {
	mu    sync.RWMutex
	areas map[int64]scraper.AreaRef
}

// NewAreaStore returns a store preloaded with areas.
func NewAreaStore(areas ...scraper.AreaRef) *AreaStore {
	s := &AreaStore{areas: make(map[int64]scraper.AreaRef)}
	_, _ = s.SeedAreas(context.Background(), areas)
	return s
}

// LookupArea returns the area with id or scraper.ErrNotFound.
func (s *AreaStore) LookupArea(_ context.Context, id int64) (scraper.AreaRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	area, ok := s.areas[id]
	if !ok {
		return scraper.AreaRef{}, scraper.ErrNotFound
	}
	return area, nil
}

// ListAreas returns every area ordered by id.
func (s *AreaStore) ListAreas(context.Context) ([]scraper.AreaRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scraper.AreaRef, 0, len(s.areas))
	for _, area := range s.areas {
		out = append(out, area)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SeedAreas replaces the stored areas. Areas without an id are numbered by
// position starting at 1.
func (s *AreaStore) SeedAreas(_ context.Context, areas []scraper.AreaRef) (int, error) {
	next := make(map[int64]scraper.AreaRef, len(areas))
	for i, area := range areas {
		if area.ID == 0 {
			area.ID = int64(i + 1)
		}
		next[area.ID] = area
	}
	s.mu.Lock()
	s.areas = next
	s.mu.Unlock()
	return len(areas), nil
}

// Close implements storage.AreaStore.
func (s *AreaStore) Close() {}
