package report_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/area-listing-scraper/internal/report"
	"github.com/JakeFAU/area-listing-scraper/internal/scraper"
	"github.com/JakeFAU/area-listing-scraper/internal/storage"
	"github.com/JakeFAU/area-listing-scraper/internal/storage/memory"
)

var _ scraper.ReportSink = (*report.ExcelSink)(nil)

func TestWriteSpreadsheetRoundTrip(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	sink := report.NewExcelSink(blobs, nil)

	sheet := scraper.ExcludedSheet([]scraper.RecordDetail{{
		Name:             "Salon A",
		Phone:            "03-1111-2222",
		Address:          "東京都港区",
		StaffCountText:   "スタイリスト1人",
		RelatedLinks:     []string{"https://a.test/1", "https://a.test/2"},
		RelatedLinkCount: 2,
		CanonicalURL:     "https://beauty.test/slnH000000001/",
		ExclusionReasons: []scraper.Reason{scraper.ReasonEPRP, scraper.ReasonStaffCount},
	}})

	uri, err := sink.WriteSpreadsheet(context.Background(), sheet, "excluded_青山_20251019.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "memory://excluded_青山_20251019.xlsx", uri)

	rc, err := blobs.GetObject(context.Background(), "excluded_青山_20251019.xlsx")
	require.NoError(t, err)
	f, err := excelize.OpenReader(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	defer func() { _ = f.Close() }()

	require.Equal(t, []string{scraper.ExcludedSheetTitle}, f.GetSheetList())
	rows, err := f.GetRows(scraper.ExcludedSheetTitle)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, scraper.ExcludedColumns, rows[0])
	assert.Equal(t, string(scraper.ReasonEPRP)+","+string(scraper.ReasonStaffCount), rows[1][0])
	assert.Equal(t, "Salon A", rows[1][1])
	assert.Equal(t, "https://a.test/1\nhttps://a.test/2", rows[1][5])
	assert.Equal(t, "2", rows[1][6])
}

func TestRenderEmptySheetKeepsHeader(t *testing.T) {
	t.Parallel()

	buf, err := report.Render(scraper.TargetSheet(nil))
	require.NoError(t, err)

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(scraper.TargetSheetTitle)
	require.NoError(t, err)
	require.Equal(t, [][]string{scraper.TargetColumns}, rows)
}

func TestWriteSpreadsheetStoreFailure(t *testing.T) {
	t.Parallel()

	blobs := &storage.MockBlobStore{}
	blobs.On("PutObject", mock.Anything, "a_20251019.xlsx", report.ContentType, mock.Anything).
		Return("", errors.New("bucket gone"))

	_, err := report.NewExcelSink(blobs, nil).WriteSpreadsheet(context.Background(), scraper.TargetSheet(nil), "a_20251019.xlsx")
	require.ErrorContains(t, err, "bucket gone")
	blobs.AssertExpectations(t)
}
