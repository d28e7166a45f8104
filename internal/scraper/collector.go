package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/area-listing-scraper/internal/dispatcher"
	"github.com/JakeFAU/area-listing-scraper/internal/metrics"
	"github.com/JakeFAU/area-listing-scraper/internal/progress"
)

// CollectURLs scans every listing page of an area on the worker pool and
// returns the union of record URLs found. A url_progress event is emitted per
// completed page in completion order. Cancellation is checked before each
// completion is processed; once seen, draining stops, undispatched pages are
// abandoned, and ErrCancelled is returned.
func (s *Scraper) CollectURLs(
	ctx context.Context,
	finalURL string,
	pageCount int,
	token string,
	emit progress.Emitter,
) ([]string, error) {
	if emit == nil {
		emit = progress.EmitterFunc(func(progress.Event) {})
	}
	pages := PageURLs(finalURL, pageCount)
	if len(pages) == 0 {
		return []string{}, nil
	}

	batch := dispatcher.Run(ctx, s.workers, pages, func(ctx context.Context, pageURL string) ([]string, error) {
		metrics.IncActiveTasks("listing")
		defer metrics.DecActiveTasks("listing")
		return s.listingURLs(ctx, pageURL, token)
	})
	defer batch.Stop()

	seen := make(map[string]struct{})
	unique := make([]string, 0)
	current := 0
	for res := range batch.Results() {
		if s.cancelled(ctx, token) {
			return nil, ErrCancelled
		}
		current++
		emit.Emit(progress.URLProgress(token, current, pageCount))
		if res.Err != nil {
			logFn := s.logger.Error
			if noResult(res.Err) {
				logFn = s.logger.Warn
			}
			logFn("listing page yielded no urls",
				zap.String("job_token", token),
				zap.String("url", res.Input),
				zap.Error(res.Err),
			)
			continue
		}
		for _, u := range res.Value {
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			unique = append(unique, u)
		}
	}
	return unique, nil
}

// listingURLs reads one listing page. An unreachable page yields no URLs and
// no error.
func (s *Scraper) listingURLs(ctx context.Context, pageURL, token string) ([]string, error) {
	page, err := s.fetcher.Fetch(ctx, pageURL, token)
	if err != nil {
		if errors.Is(err, ErrUpstreamUnreachable) {
			return nil, nil
		}
		return nil, err
	}
	base, err := url.Parse(page.FinalURL)
	if err != nil || page.FinalURL == "" {
		base, err = url.Parse(pageURL)
		if err != nil {
			return nil, fmt.Errorf("parse listing url %q: %w", pageURL, err)
		}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse listing page %s: %w", pageURL, err)
	}
	var out []string
	doc.Find(s.selectors.ListingLink).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		if abs, ok := resolveHref(base, href); ok {
			out = append(out, abs)
		}
	})
	return out, nil
}

func resolveHref(base *url.URL, href string) (string, bool) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}
