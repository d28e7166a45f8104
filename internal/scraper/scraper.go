package scraper

import (
	"context"

	"go.uber.org/zap"
)

// Config parameterises a Scraper.
type Config struct {
	// Workers bounds the listing and record fan-out pools.
	Workers int
	// Selectors locate fields in listing and record markup.
	Selectors Selectors
	// ExcludedCategorySegment marks records in an excluded category when it
	// occurs in the canonical URL.
	ExcludedCategorySegment string
}

// Scraper reads the listing site through a Fetcher. It holds no job state;
// one Scraper serves every job.
type Scraper struct {
	fetcher         Fetcher
	cancel          CancelChecker
	selectors       Selectors
	workers         int
	excludedSegment string
	logger          *zap.Logger
}

// New builds a Scraper.
func New(fetcher Fetcher, cancel CancelChecker, cfg Config, logger *zap.Logger) *Scraper {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{
		fetcher:         fetcher,
		cancel:          cancel,
		selectors:       cfg.Selectors.WithDefaults(),
		workers:         cfg.Workers,
		excludedSegment: cfg.ExcludedCategorySegment,
		logger:          logger,
	}
}

// cancelled treats a finished context like an active signal.
func (s *Scraper) cancelled(ctx context.Context, token string) bool {
	if ctx.Err() != nil {
		return true
	}
	return s.cancel != nil && s.cancel.Cancelled(ctx, token)
}
