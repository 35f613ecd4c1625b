// Package storage keeps a SQLite copy of the publication table for browsing,
// keyword search and corpus statistics.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/spacebio/engine/internal/publication"
)

// DB wraps a SQLite database connection.
type DB struct {
	db *sql.DB
}

// DefaultListLimit is used by ListAll when no positive limit is given.
const DefaultListLimit = 50

// selectPubFields contains the standard field list for SELECT queries.
const selectPubFields = `p.id, p.title, p.authors, p.pub_year, p.abstract, p.source_url`

// OpenDB opens or creates a SQLite database at the given path.
func OpenDB(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS publications (
			id INTEGER PRIMARY KEY,
			title TEXT NOT NULL,
			authors TEXT,
			pub_year INTEGER,
			abstract TEXT,
			source_url TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_publications_year ON publications(pub_year) WHERE pub_year IS NOT NULL;

		-- rowid mirrors publications.id
		CREATE VIRTUAL TABLE IF NOT EXISTS publications_fts USING fts5(
			title,
			abstract,
			authors
		);

		-- Describes the embedding matrix the table was last indexed with
		CREATE TABLE IF NOT EXISTS index_metadata (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			model_name TEXT NOT NULL,
			dimensions INTEGER NOT NULL,
			records INTEGER NOT NULL,
			records_hash TEXT NOT NULL,
			built_at INTEGER NOT NULL
		);
	`

	_, err := db.Exec(schema)
	return err
}

// RebuildFromRecords clears the publication tables and reloads them from
// records. It runs in a single transaction.
func (d *DB) RebuildFromRecords(records []publication.Record) (int, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("starting rebuild: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM publications"); err != nil {
		return 0, fmt.Errorf("clearing publications table: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM publications_fts"); err != nil {
		return 0, fmt.Errorf("clearing publications_fts table: %w", err)
	}

	pubStmt, err := tx.Prepare(`
		INSERT INTO publications (id, title, authors, pub_year, abstract, source_url)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing publications insert: %w", err)
	}
	defer pubStmt.Close()

	ftsStmt, err := tx.Prepare(`
		INSERT INTO publications_fts (rowid, title, abstract, authors)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing fts insert: %w", err)
	}
	defer ftsStmt.Close()

	for _, rec := range records {
		_, err = pubStmt.Exec(
			rec.ID, rec.Title, nullableStringValue(rec.Authors), nullableYear(rec.Year),
			nullableStringValue(rec.Abstract), nullableStringValue(rec.SourceURL),
		)
		if err != nil {
			return 0, fmt.Errorf("inserting publication %d: %w", rec.ID, err)
		}

		if _, err := ftsStmt.Exec(rec.ID, rec.Title, rec.Abstract, rec.Authors); err != nil {
			return 0, fmt.Errorf("inserting fts for %d: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing rebuild: %w", err)
	}
	return len(records), nil
}

// GetByID retrieves a publication by its ID. Returns nil, nil when absent.
func (d *DB) GetByID(id int) (*publication.Record, error) {
	row := d.db.QueryRow(`SELECT `+selectPubFields+` FROM publications p WHERE p.id = ?`, id)
	return scanRecord(row)
}

// Search performs a full-text search over titles, abstracts and authors.
// Results are ordered by FTS5 relevance.
func (d *DB) Search(query string, limit int) ([]publication.Record, error) {
	return d.SearchWithFilters(SearchFilters{Keyword: query}, limit)
}

// SearchFilters contains optional filters for SearchWithFilters.
type SearchFilters struct {
	Keyword  string // General keyword search across all text fields
	Title    string // Search in title only (FTS)
	Author   string // Author name, prefix matching
	YearFrom int    // Minimum publication year (0 = no minimum)
	YearTo   int    // Maximum publication year (0 = no maximum)
}

// SearchWithFilters returns publications matching ALL specified criteria.
// With no text criteria, results are ordered by ID.
func (d *DB) SearchWithFilters(filters SearchFilters, limit int) ([]publication.Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var ftsTerms []string
	var args []interface{}

	if q := prepareFTSQuery(filters.Keyword); q != "" {
		ftsTerms = append(ftsTerms, q)
	}
	if q := prepareFTSQuery(filters.Title); q != "" {
		ftsTerms = append(ftsTerms, "title:"+q)
	}
	if q := prepareAuthorQuery(filters.Author); q != "" {
		ftsTerms = append(ftsTerms, "authors:"+q)
	}

	var query, order string
	if len(ftsTerms) > 0 {
		query = `SELECT ` + selectPubFields + `
			FROM publications_fts
			JOIN publications p ON p.id = publications_fts.rowid
			WHERE publications_fts MATCH ?`
		args = append(args, strings.Join(ftsTerms, " AND "))
		order = " ORDER BY publications_fts.rank, p.id"
	} else {
		query = `SELECT ` + selectPubFields + ` FROM publications p WHERE 1=1`
		order = " ORDER BY p.id"
	}

	if filters.YearFrom > 0 {
		query += " AND p.pub_year >= ?"
		args = append(args, filters.YearFrom)
	}
	if filters.YearTo > 0 {
		query += " AND p.pub_year <= ?"
		args = append(args, filters.YearTo)
	}

	query += order + " LIMIT ?"
	args = append(args, limit)

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching with filters: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListAll returns the first limit publications in ID order.
// A non-positive limit uses DefaultListLimit.
func (d *DB) ListAll(limit int) ([]publication.Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := d.db.Query(`SELECT `+selectPubFields+` FROM publications p ORDER BY p.id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing publications: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Count returns the total number of publications.
func (d *DB) Count() (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM publications").Scan(&count)
	return count, err
}

// scanner interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*publication.Record, error) {
	var rec publication.Record
	var authors, abstract, sourceURL sql.NullString
	var year sql.NullInt64

	err := s.Scan(&rec.ID, &rec.Title, &authors, &year, &abstract, &sourceURL)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	rec.Authors = authors.String
	rec.Abstract = abstract.String
	rec.SourceURL = sourceURL.String
	if year.Valid {
		rec.Year = publication.Year(year.Int64)
	}

	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]publication.Record, error) {
	recs := []publication.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			recs = append(recs, *rec)
		}
	}
	return recs, rows.Err()
}

// nullableStringValue converts a string to sql.NullString, treating empty as NULL.
func nullableStringValue(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableYear(y publication.Year) sql.NullInt64 {
	if !y.Known() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(y), Valid: true}
}

// prepareFTSQuery escapes special characters for FTS5 queries.
func prepareFTSQuery(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return query
	}

	// FTS5 uses double quotes for phrase matching
	if strings.ContainsAny(query, "\"*+-:(){}[]^~.,'/") {
		query = strings.ReplaceAll(query, "\"", "\"\"")
		return "\"" + query + "\""
	}

	return query
}

// prepareAuthorQuery prepares an author name for FTS5 search with prefix
// matching, so "Smi" matches "Smith".
func prepareAuthorQuery(author string) string {
	parts := strings.Fields(author)
	if len(parts) == 0 {
		return ""
	}

	terms := make([]string, 0, len(parts))
	for _, part := range parts {
		escaped := strings.ReplaceAll(part, "\"", "\"\"")
		terms = append(terms, "\""+escaped+"\"*")
	}

	// Use OR for multi-word author queries (match any part)
	return "(" + strings.Join(terms, " OR ") + ")"
}
