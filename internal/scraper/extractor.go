package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

var singleStylistPattern = regexp.MustCompile(`スタイリスト\s*[：:]?\s*[1１]\s*人`)

const assistantKeyword = "アシスタント"

// ExtractRecord reads one record page, follows its phone-page link, and
// classifies the result. An unreachable record page or a cancellation yields
// a wrapped sentinel; callers treat either as an absent record.
func (s *Scraper) ExtractRecord(ctx context.Context, recordURL, token string) (*RecordDetail, error) {
	page, err := s.fetcher.Fetch(ctx, recordURL, token)
	if err != nil {
		return nil, fmt.Errorf("extract record: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse record page %s: %w", recordURL, err)
	}

	base, err := url.Parse(page.FinalURL)
	if err != nil || page.FinalURL == "" {
		base, err = url.Parse(recordURL)
		if err != nil {
			return nil, fmt.Errorf("parse record url %q: %w", recordURL, err)
		}
	}

	phone, err := s.phoneNumber(ctx, doc, base, token)
	if err != nil {
		return nil, err
	}

	table := doc.Find(s.selectors.DataTable).First()
	related := hrefs(doc.Find(s.selectors.RelatedLinks))
	detail := RecordDetail{
		Name:             strings.TrimSpace(doc.Find(s.selectors.Name).First().Text()),
		Phone:            phone,
		Address:          labelledCell(table, s.selectors.AddressLabel),
		StaffCountText:   labelledCell(table, s.selectors.StaffLabel),
		RelatedLinks:     related,
		RelatedLinkCount: len(related),
		CanonicalURL:     CanonicalURL(recordURL),
	}
	hasFeature := doc.Find(s.selectors.SpecialFeature).Length() > 0
	detail.ExclusionReasons = ExclusionReasons(detail, hasFeature, s.excludedSegment)
	return &detail, nil
}

// phoneNumber fetches the phone page linked from doc. A missing link or an
// unreachable phone page yields an empty number; cancellation is returned.
func (s *Scraper) phoneNumber(ctx context.Context, doc *goquery.Document, base *url.URL, token string) (string, error) {
	href, ok := doc.Find(s.selectors.PhonePageLink).First().Attr("href")
	if !ok {
		return "", nil
	}
	phoneURL, ok := resolveHref(base, href)
	if !ok {
		return "", nil
	}
	page, err := s.fetcher.Fetch(ctx, phoneURL, token)
	if err != nil {
		if errors.Is(err, ErrUpstreamUnreachable) {
			s.logger.Warn("phone page unreachable",
				zap.String("job_token", token),
				zap.String("url", phoneURL),
			)
			return "", nil
		}
		return "", fmt.Errorf("fetch phone page: %w", err)
	}
	phoneDoc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return "", fmt.Errorf("parse phone page %s: %w", phoneURL, err)
	}
	return strings.TrimSpace(phoneDoc.Find(s.selectors.PhoneNumber).First().Text()), nil
}

// labelledCell returns the text of the first data cell whose preceding header
// cell contains label.
func labelledCell(table *goquery.Selection, label string) string {
	if label == "" {
		return ""
	}
	var out string
	table.Find("th").EachWithBreak(func(_ int, th *goquery.Selection) bool {
		if !strings.Contains(th.Text(), label) {
			return true
		}
		td := th.NextAllFiltered("td").First()
		if td.Length() == 0 {
			return true
		}
		out = strings.TrimSpace(td.Text())
		return false
	})
	return out
}

func hrefs(sel *goquery.Selection) []string {
	out := make([]string, 0, sel.Length())
	sel.Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok {
			out = append(out, href)
		}
	})
	return out
}

// CanonicalURL strips the query string and fragment from raw.
func CanonicalURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexAny(raw, "?#"); i >= 0 {
			return raw[:i]
		}
		return raw
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// ExclusionReasons evaluates every rule independently and returns the reasons
// that fired, in rule order.
func ExclusionReasons(detail RecordDetail, hasSpecialFeature bool, excludedSegment string) []Reason {
	var reasons []Reason
	if !hasSpecialFeature {
		reasons = append(reasons, ReasonEPRP)
	}
	if excludedSegment != "" && strings.Contains(detail.CanonicalURL, excludedSegment) {
		reasons = append(reasons, ReasonCategory)
	}
	if strings.TrimSpace(detail.Phone) == "" {
		reasons = append(reasons, ReasonNoPhone)
	}
	if IsSingleStylist(detail.StaffCountText) {
		reasons = append(reasons, ReasonStaffCount)
	}
	if detail.RelatedLinkCount >= TooManyLinksThreshold {
		reasons = append(reasons, ReasonTooManyLinks)
	}
	return reasons
}

// IsSingleStylist reports whether staff text describes exactly one stylist
// and no assistant.
func IsSingleStylist(text string) bool {
	return singleStylistPattern.MatchString(text) && !strings.Contains(text, assistantKeyword)
}
