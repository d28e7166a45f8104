package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JakeFAU/area-listing-scraper/internal/scraper"
)

// LoadAreasCSV reads seed rows with a "prefecture,name,url" header. Column
// order follows the header; extra columns are ignored.
func LoadAreasCSV(r io.Reader) ([]scraper.AreaRef, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	index := map[string]int{}
	for i, col := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))] = i
	}
	for _, required := range []string{"prefecture", "name", "url"} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("csv header missing %q column", required)
		}
	}

	var areas []scraper.AreaRef
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		get := func(col string) string {
			i := index[col]
			if i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		area := scraper.AreaRef{Prefecture: get("prefecture"), Name: get("name"), StartURL: get("url")}
		if area.Name == "" || area.StartURL == "" {
			return nil, fmt.Errorf("csv line %d: name and url are required", line)
		}
		areas = append(areas, area)
	}
	return areas, nil
}
