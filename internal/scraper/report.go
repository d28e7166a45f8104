package scraper

import (
	"regexp"
	"strings"
	"time"

	"github.com/JakeFAU/area-listing-scraper/internal/progress"
)

// Sheet titles and file naming for generated reports.
const (
	TargetSheetTitle   = "サロンリスト"
	ExcludedSheetTitle = "除外リスト"
	ExcludedFilePrefix = "excluded_"
	PreviewLimit       = 5
)

// TargetColumns is the fixed column order of the target sheet.
var TargetColumns = []string{"サロン名", "電話番号", "住所", "スタッフ数", "関連リンク", "関連リンク数", "サロンURL"}

// ExcludedColumns prepends the exclusion reason column to TargetColumns.
var ExcludedColumns = append([]string{"除外理由"}, TargetColumns...)

var unsafeFileChars = regexp.MustCompile(`[\\/*?:"<>|]`)

// Dedup collapses records sharing (phone, canonical URL), keeping the first
// occurrence in slice order. Slice order follows pool completion order, so
// which duplicate survives can differ between runs.
func Dedup(records []RecordDetail) []RecordDetail {
	seen := make(map[[2]string]struct{}, len(records))
	out := make([]RecordDetail, 0, len(records))
	for _, r := range records {
		key := r.DedupKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Partition splits records by IsExcluded, preserving order within each side.
func Partition(records []RecordDetail) ClassifiedResultSet {
	set := ClassifiedResultSet{Target: []RecordDetail{}, Excluded: []RecordDetail{}}
	for _, r := range records {
		if r.IsExcluded() {
			set.Excluded = append(set.Excluded, r)
		} else {
			set.Target = append(set.Target, r)
		}
	}
	return set
}

// Preview returns up to PreviewLimit leading target rows without
// classification fields.
func Preview(target []RecordDetail) []progress.PreviewRow {
	n := min(len(target), PreviewLimit)
	rows := make([]progress.PreviewRow, 0, n)
	for _, r := range target[:n] {
		rows = append(rows, progress.PreviewRow{
			Name:             r.Name,
			Phone:            r.Phone,
			Address:          r.Address,
			StaffCount:       r.StaffCountText,
			RelatedLinks:     strings.Join(r.RelatedLinks, "\n"),
			RelatedLinkCount: r.RelatedLinkCount,
			URL:              r.CanonicalURL,
		})
	}
	return rows
}

// TargetSheet renders the target rows.
func TargetSheet(records []RecordDetail) Sheet {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, baseRow(r))
	}
	return Sheet{Title: TargetSheetTitle, Columns: TargetColumns, Rows: rows}
}

// ExcludedSheet renders the excluded rows with their comma-joined reasons.
func ExcludedSheet(records []RecordDetail) Sheet {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		reasons := make([]string, 0, len(r.ExclusionReasons))
		for _, reason := range r.ExclusionReasons {
			reasons = append(reasons, string(reason))
		}
		rows = append(rows, append([]any{strings.Join(reasons, ",")}, baseRow(r)...))
	}
	return Sheet{Title: ExcludedSheetTitle, Columns: ExcludedColumns, Rows: rows}
}

func baseRow(r RecordDetail) []any {
	return []any{
		r.Name,
		r.Phone,
		r.Address,
		r.StaffCountText,
		strings.Join(r.RelatedLinks, "\n"),
		r.RelatedLinkCount,
		r.CanonicalURL,
	}
}

// ReportFileName names the target report for an area on a given day.
func ReportFileName(areaName string, at time.Time) string {
	return SanitizeFileName(areaName) + "_" + at.Format("20060102") + ".xlsx"
}

// SanitizeFileName replaces characters that are unsafe in file names.
func SanitizeFileName(name string) string {
	return unsafeFileChars.ReplaceAllString(name, "_")
}
