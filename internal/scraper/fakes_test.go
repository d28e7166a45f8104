package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/area-listing-scraper/internal/progress"
)

// siteGetter serves canned pages keyed by URL. Unknown URLs fail like a
// dead upstream.
type siteGetter struct {
	mu        sync.Mutex
	pages     map[string]string
	redirects map[string]string
	status    map[string]int
	calls     map[string]int
	hook      func(url string)
}

func newSiteGetter() *siteGetter {
	return &siteGetter{
		pages:     map[string]string{},
		redirects: map[string]string{},
		status:    map[string]int{},
		calls:     map[string]int{},
	}
}

func (g *siteGetter) Get(_ context.Context, url string) (Page, error) {
	g.mu.Lock()
	g.calls[url]++
	hook := g.hook
	final := url
	if to, ok := g.redirects[url]; ok {
		final = to
	}
	body, ok := g.pages[final]
	code, hasCode := g.status[final]
	g.mu.Unlock()

	if hook != nil {
		hook(url)
	}
	if !ok {
		return Page{}, fmt.Errorf("dial %s: connection refused", url)
	}
	if !hasCode {
		code = 200
	}
	return Page{URL: url, FinalURL: final, StatusCode: code, Body: []byte(body)}, nil
}

func (g *siteGetter) set(url, body string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pages[url] = body
}

func (g *siteGetter) totalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		n += c
	}
	return n
}

func (g *siteGetter) callsTo(url string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[url]
}

// signalSet is an in-memory CancelSignals.
type signalSet struct {
	mu      sync.Mutex
	tokens  map[string]bool
	cleared []string
}

func newSignalSet() *signalSet {
	return &signalSet{tokens: map[string]bool{}}
}

func (s *signalSet) Cancelled(_ context.Context, token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[token]
}

func (s *signalSet) Clear(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	s.cleared = append(s.cleared, token)
	return nil
}

func (s *signalSet) request(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = true
}

func (s *signalSet) active(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[token]
}

func (s *signalSet) clearedTokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cleared...)
}

type areaMap map[int64]AreaRef

func (m areaMap) LookupArea(_ context.Context, id int64) (AreaRef, error) {
	area, ok := m[id]
	if !ok {
		return AreaRef{}, ErrNotFound
	}
	return area, nil
}

type writtenSheet struct {
	name  string
	sheet Sheet
}

type reportRecorder struct {
	mu      sync.Mutex
	written []writtenSheet
	err     error
}

func (r *reportRecorder) WriteSpreadsheet(_ context.Context, sheet Sheet, fileName string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.written = append(r.written, writtenSheet{name: fileName, sheet: sheet})
	return "mem://" + fileName, nil
}

type staticIDs struct {
	id  string
	err error
}

func (s staticIDs) NewID() (string, error) {
	return s.id, s.err
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

type publishRecorder struct {
	mu       sync.Mutex
	topics   []string
	payloads []any
	err      error
}

func (p *publishRecorder) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return "msg-1", nil
}

var errBoom = errors.New("boom")

// eventLog records emitted events.
type eventLog struct {
	mu     sync.Mutex
	events []progress.Event
	onEmit func(progress.Event)
}

func (l *eventLog) Emit(evt progress.Event) {
	l.mu.Lock()
	l.events = append(l.events, evt)
	hook := l.onEmit
	l.mu.Unlock()
	if hook != nil {
		hook(evt)
	}
}

func (l *eventLog) types() []progress.Type {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]progress.Type, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}

func (l *eventLog) ofType(t progress.Type) []progress.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []progress.Event
	for _, e := range l.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

const siteRoot = "https://beauty.test"

func listingHTML(indicator string, hrefs ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	if indicator != "" {
		b.WriteString(`<p class="pa bottom0 taR">` + indicator + `</p>`)
	}
	b.WriteString("<ul>")
	for _, h := range hrefs {
		b.WriteString(`<li><h3 class="slnName"><a href="` + h + `">salon</a></h3></li>`)
	}
	b.WriteString("</ul></body></html>")
	return b.String()
}

type recordFixture struct {
	name      string
	address   string
	staff     string
	phonePath string
	links     int
	noFeature bool
}

func recordHTML(f recordFixture) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	if !f.noFeature {
		b.WriteString(`<div class="slnTopImgCarousel"><img src="x.jpg"></div>`)
	}
	b.WriteString(`<p class="detailTitle"><a href="#">` + f.name + `</a></p>`)
	b.WriteString(`<table class="slnDataTbl">`)
	b.WriteString(`<tr><th>電話番号</th><td><a href="` + f.phonePath + `">電話番号を表示</a></td></tr>`)
	b.WriteString(`<tr><th>住所</th><td> ` + f.address + ` </td></tr>`)
	b.WriteString(`<tr><th class="w120">スタッフ数</th><td>` + f.staff + `</td></tr>`)
	b.WriteString(`</table>`)
	for i := 0; i < f.links; i++ {
		fmt.Fprintf(&b, `<a class="slnDataLink" href="https://sns.test/%d">link</a>`, i)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func phoneHTML(number string) string {
	return `<html><body><table><tr><th>電話番号</th><td class="fs16 b">` + number + `</td></tr></table></body></html>`
}

func newTestScraper(getter Getter, signals CancelChecker, workers int) *Scraper {
	fetcher := NewPacedFetcher(getter, signals, nil, FetchConfig{Attempts: 2}, nil)
	return New(fetcher, signals, Config{Workers: workers, ExcludedCategorySegment: "/kr/"}, nil)
}
