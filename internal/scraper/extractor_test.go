package scraper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractRecordFields(t *testing.T) {
	t.Parallel()

	g := newSiteGetter()
	g.set(siteRoot+"/slnH001/", recordHTML(recordFixture{
		name:      "Salon Aoyama",
		address:   "東京都港区南青山1-1-1",
		staff:     "スタイリスト5人 アシスタント2人",
		phonePath: "/slnH001/tel/",
		links:     2,
	}))
	g.set(siteRoot+"/slnH001/tel/", phoneHTML(" 03-1234-5678 "))
	s := newTestScraper(g, newSignalSet(), 1)

	detail, err := s.ExtractRecord(context.Background(), siteRoot+"/slnH001/", "tok")
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, "Salon Aoyama", detail.Name)
	assert.Equal(t, "東京都港区南青山1-1-1", detail.Address)
	assert.Equal(t, "スタイリスト5人 アシスタント2人", detail.StaffCountText)
	assert.Equal(t, "03-1234-5678", detail.Phone)
	assert.Equal(t, []string{"https://sns.test/0", "https://sns.test/1"}, detail.RelatedLinks)
	assert.Equal(t, 2, detail.RelatedLinkCount)
	assert.Equal(t, siteRoot+"/slnH001/", detail.CanonicalURL)
	assert.Empty(t, detail.ExclusionReasons)
	assert.False(t, detail.IsExcluded())
}

func TestExtractRecordStripsQueryFromCanonicalURL(t *testing.T) {
	t.Parallel()

	g := newSiteGetter()
	g.set(siteRoot+"/kr/slnH009/?cstt=3", recordHTML(recordFixture{name: "Relax", staff: "スタイリスト：1人", links: 4}))
	s := newTestScraper(g, newSignalSet(), 1)

	detail, err := s.ExtractRecord(context.Background(), siteRoot+"/kr/slnH009/?cstt=3", "tok")
	require.NoError(t, err)
	assert.Equal(t, siteRoot+"/kr/slnH009/", detail.CanonicalURL)
	assert.Equal(t, []Reason{ReasonCategory, ReasonNoPhone, ReasonStaffCount, ReasonTooManyLinks}, detail.ExclusionReasons)
}

func TestExtractRecordMissingFeatureSection(t *testing.T) {
	t.Parallel()

	g := newSiteGetter()
	g.set(siteRoot+"/slnH002/", recordHTML(recordFixture{name: "Plain", phonePath: "/slnH002/tel/", noFeature: true}))
	g.set(siteRoot+"/slnH002/tel/", phoneHTML("06-0000-0000"))
	s := newTestScraper(g, newSignalSet(), 1)

	detail, err := s.ExtractRecord(context.Background(), siteRoot+"/slnH002/", "tok")
	require.NoError(t, err)
	assert.Equal(t, []Reason{ReasonEPRP}, detail.ExclusionReasons)
}

func TestExtractRecordUnreachablePhonePage(t *testing.T) {
	t.Parallel()

	g := newSiteGetter()
	g.set(siteRoot+"/slnH003/", recordHTML(recordFixture{name: "NoTel", phonePath: "/slnH003/tel/"}))
	s := newTestScraper(g, newSignalSet(), 1)

	detail, err := s.ExtractRecord(context.Background(), siteRoot+"/slnH003/", "tok")
	require.NoError(t, err)
	assert.Empty(t, detail.Phone)
	assert.Equal(t, []Reason{ReasonNoPhone}, detail.ExclusionReasons)
	assert.Equal(t, 2, g.callsTo(siteRoot+"/slnH003/tel/"), "phone page follows the fetch retry contract")
}

func TestExtractRecordUnreachable(t *testing.T) {
	t.Parallel()

	s := newTestScraper(newSiteGetter(), newSignalSet(), 1)
	detail, err := s.ExtractRecord(context.Background(), siteRoot+"/gone/", "tok")
	require.ErrorIs(t, err, ErrUpstreamUnreachable)
	assert.Nil(t, detail)
}

func TestExtractRecordCancelledDuringPhoneFetch(t *testing.T) {
	t.Parallel()

	g := newSiteGetter()
	signals := newSignalSet()
	g.set(siteRoot+"/slnH004/", recordHTML(recordFixture{name: "Late", phonePath: "/slnH004/tel/"}))
	g.set(siteRoot+"/slnH004/tel/", phoneHTML("03-9999-9999"))
	g.hook = func(url string) {
		if url == siteRoot+"/slnH004/" {
			signals.request("tok")
		}
	}
	s := newTestScraper(g, signals, 1)

	detail, err := s.ExtractRecord(context.Background(), siteRoot+"/slnH004/", "tok")
	require.ErrorIs(t, err, ErrCancelled)
	assert.Nil(t, detail)
	assert.Zero(t, g.callsTo(siteRoot+"/slnH004/tel/"))
}

func TestIsSingleStylist(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"スタイリスト1人":          true,
		"スタイリスト 1人":         true,
		"スタイリスト：1人":         true,
		"スタイリスト:1人":         true,
		"スタイリスト１人":          true,
		"総数1人(スタイリスト1人)":    true,
		"スタイリスト1人 アシスタント1人": false,
		"スタイリスト10人":         false,
		"スタイリスト2人":          false,
		"":                  false,
	}
	for text, want := range cases {
		assert.Equal(t, want, IsSingleStylist(text), text)
	}
}

func TestExclusionReasonsNoPhoneAndLinks(t *testing.T) {
	t.Parallel()

	reasons := ExclusionReasons(RecordDetail{
		Phone:            "  ",
		RelatedLinkCount: 4,
		CanonicalURL:     siteRoot + "/slnH001/",
	}, true, "/kr/")
	assert.ElementsMatch(t, []Reason{ReasonNoPhone, ReasonTooManyLinks}, reasons)

	assert.Empty(t, ExclusionReasons(RecordDetail{Phone: "03", RelatedLinkCount: 3}, true, ""))
}

func TestCanonicalURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://beauty.test/slnH1/", CanonicalURL("https://beauty.test/slnH1/?cstt=1&pn=2"))
	assert.Equal(t, "https://beauty.test/slnH1/", CanonicalURL("https://beauty.test/slnH1/#map"))
	assert.Equal(t, "https://beauty.test/slnH1/", CanonicalURL("https://beauty.test/slnH1/"))
}
