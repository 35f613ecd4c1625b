package storage

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/spacebio/engine/internal/publication"
)

// YearCount is the number of publications from one year.
type YearCount struct {
	Year  int `json:"year"`
	Count int `json:"count"`
}

// Stats summarises the publication table.
type Stats struct {
	Total        int         `json:"total"`
	WithAbstract int         `json:"with_abstract"`
	UnknownYear  int         `json:"unknown_year"`
	YearFrom     int         `json:"year_from,omitempty"`
	YearTo       int         `json:"year_to,omitempty"`
	Years        []YearCount `json:"years"`
}

// YearDistribution returns publication counts per known year, ascending.
func (d *DB) YearDistribution() ([]YearCount, error) {
	rows, err := d.db.Query(`
		SELECT pub_year, COUNT(*)
		FROM publications
		WHERE pub_year IS NOT NULL
		GROUP BY pub_year
		ORDER BY pub_year
	`)
	if err != nil {
		return nil, fmt.Errorf("counting years: %w", err)
	}
	defer rows.Close()

	years := []YearCount{}
	for rows.Next() {
		var yc YearCount
		if err := rows.Scan(&yc.Year, &yc.Count); err != nil {
			return nil, err
		}
		years = append(years, yc)
	}
	return years, rows.Err()
}

// Stats computes corpus statistics.
func (d *DB) Stats() (*Stats, error) {
	var s Stats
	err := d.db.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(abstract),
			COUNT(*) - COUNT(pub_year)
		FROM publications
	`).Scan(&s.Total, &s.WithAbstract, &s.UnknownYear)
	if err != nil {
		return nil, fmt.Errorf("counting publications: %w", err)
	}

	years, err := d.YearDistribution()
	if err != nil {
		return nil, err
	}
	s.Years = years
	if len(years) > 0 {
		s.YearFrom = years[0].Year
		s.YearTo = years[len(years)-1].Year
	}
	return &s, nil
}

// IndexMetadata describes the embedding matrix built for the table.
type IndexMetadata struct {
	ModelName   string    `json:"model"`
	Dimensions  int       `json:"dimensions"`
	Records     int       `json:"records"`
	RecordsHash string    `json:"records_hash"`
	BuiltAt     time.Time `json:"built_at"`
}

// SaveIndexMetadata replaces the stored index metadata.
func (d *DB) SaveIndexMetadata(meta IndexMetadata) error {
	_, err := d.db.Exec(`
		INSERT OR REPLACE INTO index_metadata (id, model_name, dimensions, records, records_hash, built_at)
		VALUES (1, ?, ?, ?, ?, ?)
	`, meta.ModelName, meta.Dimensions, meta.Records, meta.RecordsHash, meta.BuiltAt.Unix())
	return err
}

// GetIndexMetadata returns the stored index metadata, or nil when no index
// has been recorded.
func (d *DB) GetIndexMetadata() (*IndexMetadata, error) {
	var meta IndexMetadata
	var builtAt int64
	err := d.db.QueryRow(`
		SELECT model_name, dimensions, records, records_hash, built_at
		FROM index_metadata
		WHERE id = 1
	`).Scan(&meta.ModelName, &meta.Dimensions, &meta.Records, &meta.RecordsHash, &builtAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	meta.BuiltAt = time.Unix(builtAt, 0).UTC()
	return &meta, nil
}

// RecordsHash fingerprints the text that feeds the embeddings, so an index
// can be checked against the current record table.
func RecordsHash(records []publication.Record) string {
	h := sha256.New()
	for _, rec := range records {
		h.Write([]byte(strconv.Itoa(rec.ID)))
		h.Write([]byte{0})
		h.Write([]byte(rec.EmbeddingText()))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
