package scraper

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/area-listing-scraper/internal/progress"
)

func TestCollectURLsUnionsPages(t *testing.T) {
	t.Parallel()

	base := siteRoot + "/svcSA/salon/"
	g := newSiteGetter()
	g.set(base, listingHTML("1/3ページ", "/slnH001/", "/slnH002/?cstt=1"))
	g.set(base+"PN2.html", listingHTML("2/3ページ", "/slnH002/?cstt=1", "https://beauty.test/slnH003/"))
	g.set(base+"PN3.html", listingHTML("3/3ページ", "../../slnH004/"))
	s := newTestScraper(g, newSignalSet(), 2)
	log := &eventLog{}

	urls, err := s.CollectURLs(context.Background(), base, 3, "tok", log)
	require.NoError(t, err)
	sort.Strings(urls)
	assert.Equal(t, []string{
		siteRoot + "/slnH001/",
		siteRoot + "/slnH002/?cstt=1",
		siteRoot + "/slnH003/",
		siteRoot + "/slnH004/",
	}, urls)

	progressEvents := log.ofType(progress.TypeURLProgress)
	require.Len(t, progressEvents, 3)
	for i, evt := range progressEvents {
		assert.Equal(t, progress.Counter{Current: i + 1, Total: 3}, evt.Payload)
	}
}

func TestCollectURLsSkipsUnreachablePages(t *testing.T) {
	t.Parallel()

	base := siteRoot + "/svcSA/salon"
	g := newSiteGetter()
	g.set(base, listingHTML("1/2ページ", "/slnH001/"))
	s := newTestScraper(g, newSignalSet(), 2)
	log := &eventLog{}

	urls, err := s.CollectURLs(context.Background(), base, 2, "tok", log)
	require.NoError(t, err)
	assert.Equal(t, []string{siteRoot + "/slnH001/"}, urls)
	assert.Len(t, log.ofType(progress.TypeURLProgress), 2)
	assert.Equal(t, 2, g.callsTo(base+"/PN2.html"))
}

func TestCollectURLsStopsOnCancellation(t *testing.T) {
	t.Parallel()

	base := siteRoot + "/svcSA/salon/"
	g := newSiteGetter()
	signals := newSignalSet()
	for _, u := range PageURLs(base, 6) {
		g.set(u, listingHTML("", "/slnH001/"))
	}
	g.hook = func(string) { signals.request("tok") }
	s := newTestScraper(g, signals, 1)
	log := &eventLog{}

	urls, err := s.CollectURLs(context.Background(), base, 6, "tok", log)
	require.ErrorIs(t, err, ErrCancelled)
	assert.Nil(t, urls)
	assert.Empty(t, log.ofType(progress.TypeURLProgress))
	assert.LessOrEqual(t, g.totalCalls(), 2, "undispatched pages are abandoned")
}

func TestCollectURLsNoPages(t *testing.T) {
	t.Parallel()

	s := newTestScraper(newSiteGetter(), newSignalSet(), 1)
	urls, err := s.CollectURLs(context.Background(), siteRoot, 0, "tok", nil)
	require.NoError(t, err)
	assert.Empty(t, urls)
}
