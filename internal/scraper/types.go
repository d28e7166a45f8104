package scraper

import (
	"time"

	"github.com/JakeFAU/area-listing-scraper/internal/progress"
)

// ItemsPerPage is the listing site's fixed page size.
const ItemsPerPage = 20

// AreaRef identifies the area a job scrapes. It is read once per job.
type AreaRef struct {
	ID         int64
	Prefecture string
	Name       string
	StartURL   string
}

// Page is one fetched document.
type Page struct {
	// URL is the requested address.
	URL string
	// FinalURL is the address after redirects.
	FinalURL string
	// StatusCode is the HTTP status of the final response.
	StatusCode int
	// Body holds the raw response bytes.
	Body []byte
	// Duration is the wall time of the request, pacing excluded.
	Duration time.Duration
}

// Reason names an exclusion rule.
type Reason string

// Exclusion reasons in evaluation order.
const (
	ReasonEPRP         Reason = "EPRP"
	ReasonCategory     Reason = "category"
	ReasonNoPhone      Reason = "no-phone"
	ReasonStaffCount   Reason = "staff-count"
	ReasonTooManyLinks Reason = "too-many-links"
)

// TooManyLinksThreshold is the related-link count that excludes a record.
const TooManyLinksThreshold = 4

// RecordDetail is one extracted business record. It is not modified after
// extraction.
type RecordDetail struct {
	Name             string
	Phone            string
	Address          string
	StaffCountText   string
	RelatedLinks     []string
	RelatedLinkCount int
	CanonicalURL     string
	ExclusionReasons []Reason
}

// IsExcluded reports whether any exclusion reason fired.
func (r RecordDetail) IsExcluded() bool {
	return len(r.ExclusionReasons) > 0
}

// DedupKey is the composite identity used to collapse duplicates.
func (r RecordDetail) DedupKey() [2]string {
	return [2]string{r.Phone, r.CanonicalURL}
}

// ClassifiedResultSet partitions deduplicated records by IsExcluded.
type ClassifiedResultSet struct {
	Target   []RecordDetail
	Excluded []RecordDetail
}

// JobReport describes the files produced by a successful job.
type JobReport struct {
	TargetFileName   string
	ExcludedFileName string
	PreviewRows      []progress.PreviewRow
}

// Sheet is a single-worksheet table handed to a ReportSink.
type Sheet struct {
	Title   string
	Columns []string
	Rows    [][]any
}

// Selectors holds the markup selectors used to read the listing site. They
// are loaded from a versionable document rather than compiled in.
type Selectors struct {
	Pagination     string `json:"pagination" yaml:"pagination" mapstructure:"pagination"`
	ListingLink    string `json:"listing_link" yaml:"listing_link" mapstructure:"listing_link"`
	Name           string `json:"name" yaml:"name" mapstructure:"name"`
	DataTable      string `json:"data_table" yaml:"data_table" mapstructure:"data_table"`
	AddressLabel   string `json:"address_label" yaml:"address_label" mapstructure:"address_label"`
	StaffLabel     string `json:"staff_label" yaml:"staff_label" mapstructure:"staff_label"`
	PhonePageLink  string `json:"phone_page_link" yaml:"phone_page_link" mapstructure:"phone_page_link"`
	PhoneNumber    string `json:"phone_number" yaml:"phone_number" mapstructure:"phone_number"`
	RelatedLinks   string `json:"related_links" yaml:"related_links" mapstructure:"related_links"`
	SpecialFeature string `json:"special_feature" yaml:"special_feature" mapstructure:"special_feature"`
}

// DefaultSelectors returns the selectors for the current listing site markup.
func DefaultSelectors() Selectors {
	return Selectors{
		Pagination:     "p.pa.bottom0.taR",
		ListingLink:    "h3.slnName a",
		Name:           "p.detailTitle a",
		DataTable:      "table.slnDataTbl",
		AddressLabel:   "住所",
		StaffLabel:     "スタッフ数",
		PhonePageLink:  "a[href*='/tel/']",
		PhoneNumber:    "td.fs16.b",
		RelatedLinks:   "a.slnDataLink",
		SpecialFeature: "div.slnTopImgCarousel",
	}
}

// WithDefaults fills empty selectors from DefaultSelectors.
func (s Selectors) WithDefaults() Selectors {
	d := DefaultSelectors()
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&s.Pagination, d.Pagination)
	fill(&s.ListingLink, d.ListingLink)
	fill(&s.Name, d.Name)
	fill(&s.DataTable, d.DataTable)
	fill(&s.AddressLabel, d.AddressLabel)
	fill(&s.StaffLabel, d.StaffLabel)
	fill(&s.PhonePageLink, d.PhonePageLink)
	fill(&s.PhoneNumber, d.PhoneNumber)
	fill(&s.RelatedLinks, d.RelatedLinks)
	fill(&s.SpecialFeature, d.SpecialFeature)
	return s
}
