package storage

import (
	"errors"
	"fmt"
	"log"
)

// ErrSearchDisabled is returned by Search when the sqlite build lacks the
// fts5 module (build with -tags sqlite_fts5 to enable it).
var ErrSearchDisabled = errors.New("full-text search disabled: sqlite built without fts5")

// SearchHit is one full-text match.
type SearchHit struct {
	ExternalID string  `json:"external_id"`
	Snippet    string  `json:"snippet"`
	Rank       float64 `json:"rank"`
}

// Searchable reports whether a dataset has an FTS index.
func Searchable(dataset string) bool {
	return dataset == "permits" || dataset == "contracts"
}

// RebuildSearchIndex drops and repopulates the dataset's FTS table inside
// one transaction. Under WAL, readers keep seeing the previous index until
// the commit, so a half-built index is never observable. Source rows are
// read in external_id order, which makes the rebuild deterministic: two
// rebuilds over unchanged data produce identical index contents.
func (s *SQLiteStore) RebuildSearchIndex(dataset string) error {
	if !s.ftsEnabled {
		log.Printf("storage: skipping %s index rebuild, search disabled", dataset)
		return nil
	}

	var stmts []string
	switch dataset {
	case "permits":
		stmts = []string{
			`DELETE FROM permits_fts`,
			`INSERT INTO permits_fts (external_id, address, type_description, work_nature)
			 SELECT external_id, COALESCE(address, ''), COALESCE(type_description, ''), COALESCE(work_nature, '')
			 FROM permits ORDER BY external_id`,
		}
	case "contracts":
		stmts = []string{
			`DELETE FROM contracts_fts`,
			`INSERT INTO contracts_fts (external_id, supplier, description)
			 SELECT external_id, COALESCE(supplier, ''), COALESCE(description, '')
			 FROM contracts ORDER BY external_id`,
		}
	default:
		return fmt.Errorf("dataset %s has no search index", dataset)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("rebuild %s index: %w", dataset, err)
		}
	}

	return tx.Commit()
}

// Search runs a full-text query against a dataset's index, best matches
// first.
func (s *SQLiteStore) Search(dataset, query string, limit int) ([]SearchHit, error) {
	if !s.ftsEnabled {
		return nil, ErrSearchDisabled
	}
	if limit <= 0 {
		limit = 20
	}

	var sqlQuery string
	switch dataset {
	case "permits":
		sqlQuery = `
			SELECT external_id, snippet(permits_fts, 1, '[', ']', '…', 12), bm25(permits_fts)
			FROM permits_fts WHERE permits_fts MATCH ? ORDER BY bm25(permits_fts) LIMIT ?`
	case "contracts":
		sqlQuery = `
			SELECT external_id, snippet(contracts_fts, 2, '[', ']', '…', 12), bm25(contracts_fts)
			FROM contracts_fts WHERE contracts_fts MATCH ? ORDER BY bm25(contracts_fts) LIMIT ?`
	default:
		return nil, fmt.Errorf("dataset %s has no search index", dataset)
	}

	rows, err := s.db.Query(sqlQuery, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(&h.ExternalID, &h.Snippet, &h.Rank); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
