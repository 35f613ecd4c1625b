package corpus

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/spacebio/engine/internal/publication"
)

// Column names in the record table. Only title is required.
const (
	ColumnTitle     = "title"
	ColumnAuthors   = "authors"
	ColumnYear      = "year"
	ColumnAbstract  = "abstract_text"
	ColumnSourceURL = "source_url"
)

// columnAliases maps alternative header spellings to canonical names.
var columnAliases = map[string]string{
	"abstract": ColumnAbstract,
	"url":      ColumnSourceURL,
	"link":     ColumnSourceURL,
}

// ReadRecords reads the record table at path.
func ReadRecords(path string) ([]publication.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: record table %s not found", ErrDataUnavailable, path)
		}
		return nil, fmt.Errorf("%w: opening record table: %v", ErrDataUnavailable, err)
	}
	defer f.Close()

	records, err := ParseRecords(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// ParseRecords parses a CSV record table. The first row is the header.
// Record IDs are assigned from row position.
func ParseRecords(r io.Reader) ([]publication.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // checked per row below for a better message

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: record table is empty", ErrDataIntegrity)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrDataIntegrity, err)
	}

	cols := indexColumns(header)
	titleCol, ok := cols[ColumnTitle]
	if !ok {
		return nil, fmt.Errorf("%w: record table has no %q column", ErrDataIntegrity, ColumnTitle)
	}

	var records []publication.Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDataIntegrity, err)
		}
		if len(row) != len(header) {
			return nil, fmt.Errorf("%w: line %d has %d fields, header has %d",
				ErrDataIntegrity, line, len(row), len(header))
		}

		title := strings.TrimSpace(row[titleCol])
		if title == "" {
			return nil, fmt.Errorf("%w: line %d has an empty title", ErrDataIntegrity, line)
		}

		rec := publication.Record{
			ID:    len(records),
			Title: title,
		}
		if i, ok := cols[ColumnAuthors]; ok {
			rec.Authors = cleanCell(row[i])
		}
		if rec.Authors == "" {
			rec.Authors = publication.NotSpecified
		}
		if i, ok := cols[ColumnYear]; ok {
			rec.Year = publication.ParseYear(row[i])
		}
		if i, ok := cols[ColumnAbstract]; ok {
			rec.Abstract = cleanCell(row[i])
		}
		if i, ok := cols[ColumnSourceURL]; ok {
			rec.SourceURL = cleanCell(row[i])
		}
		records = append(records, rec)
	}

	return records, nil
}

// indexColumns maps canonical column names to their positions.
// The first occurrence of a name wins.
func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if alias, ok := columnAliases[name]; ok {
			name = alias
		}
		if _, seen := cols[name]; !seen {
			cols[name] = i
		}
	}
	return cols
}

// cleanCell trims a cell and maps the scraper's missing-value markers to "".
func cleanCell(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "n/a", "nan", "none":
		return ""
	}
	return s
}
