package scraper

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	slashPagesPattern = regexp.MustCompile(`\d[\d,]*\s*/\s*(\d[\d,]*)\s*ページ`)
	totalItemsPattern = regexp.MustCompile(`全\s*(\d[\d,]*)\s*件`)
)

// ResolvePages fetches the first listing page of an area and returns the
// number of listing pages together with the post-redirect URL. An error
// means the first page could not be fetched at all.
func (s *Scraper) ResolvePages(ctx context.Context, areaURL, token string) (int, string, error) {
	page, err := s.fetcher.Fetch(ctx, areaURL, token)
	if err != nil {
		return 0, "", fmt.Errorf("resolve pages: %w", err)
	}
	finalURL := page.FinalURL
	if finalURL == "" {
		finalURL = areaURL
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return 0, "", fmt.Errorf("parse area page: %w", err)
	}
	indicator := doc.Find(s.selectors.Pagination).First()
	if indicator.Length() == 0 {
		return 1, finalURL, nil
	}
	return ParsePageCount(indicator.Text()), finalURL, nil
}

// ParsePageCount reads a pagination indicator. The "k/Nページ" form wins over
// the "全M件" form; unrecognised text means a single page.
func ParsePageCount(text string) int {
	text = strings.TrimSpace(text)
	if m := slashPagesPattern.FindStringSubmatch(text); m != nil {
		if n, ok := atoiGrouped(m[1]); ok {
			return n
		}
	}
	if m := totalItemsPattern.FindStringSubmatch(text); m != nil {
		if total, ok := atoiGrouped(m[1]); ok {
			return (total + ItemsPerPage - 1) / ItemsPerPage
		}
	}
	return 1
}

func atoiGrouped(s string) (int, bool) {
	n, err := strconv.Atoi(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return 0, false
	}
	return n, true
}

// PageURLs lists every listing page for an area. Page 1 is finalURL itself;
// later pages append "/PN<k>.html" to it without its trailing slash.
func PageURLs(finalURL string, pageCount int) []string {
	if pageCount <= 0 {
		return nil
	}
	urls := make([]string, 0, pageCount)
	urls = append(urls, finalURL)
	base := strings.TrimSuffix(finalURL, "/")
	for k := 2; k <= pageCount; k++ {
		urls = append(urls, fmt.Sprintf("%s/PN%d.html", base, k))
	}
	return urls
}
