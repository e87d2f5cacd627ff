//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS unified_fts USING fts5(
			content_type UNINDEXED,
			content_id   UNINDEXED,
			subject_id   UNINDEXED,
			subject_name,
			title,
			searchable_text,
			tokenize = 'porter unicode61'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, e searchEntry) error {
	_, _ = tx.Exec(`DELETE FROM unified_fts WHERE content_type = ? AND content_id = ?`,
		e.contentType, e.contentID)
	_, err := tx.Exec(`
		INSERT INTO unified_fts (content_type, content_id, subject_id, subject_name, title, searchable_text)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.contentType, e.contentID, e.subjectID, e.subjectName, e.title, e.text)
	if err != nil {
		return fmt.Errorf("index: upsert search entry: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, contentType, contentID string) {
	_, _ = tx.Exec(`DELETE FROM unified_fts WHERE content_type = ? AND content_id = ?`,
		contentType, contentID)
}

// Search runs an FTS5 match over the unified index. Title and subject-name
// hits outweigh body hits via bm25 column weights. An invalid query (e.g.
// unbalanced quotes) yields an empty result, not an error.
func (db *DB) Search(query string, contentTypes []string, limit int) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	q := `
		SELECT content_type, content_id, subject_id, subject_name, title,
		       bm25(unified_fts, 0.0, 0.0, 0.0, 3.0, 5.0, 1.0) AS score
		FROM unified_fts
		WHERE unified_fts MATCH ?`
	args := []any{query}
	if len(contentTypes) > 0 {
		q += ` AND content_type IN (?` + strings.Repeat(",?", len(contentTypes)-1) + `)`
		for _, t := range contentTypes {
			args = append(args, t)
		}
	}
	q += ` ORDER BY score LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.Query(q, args...)
	if err != nil {
		// Malformed MATCH expressions are a user-input problem, not a fault.
		// Anything else (closed handle, corrupt file) must surface.
		if strings.Contains(err.Error(), "fts5") {
			return nil, nil
		}
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var score float64
		if err := rows.Scan(&r.ContentType, &r.ContentID, &r.SubjectID, &r.SubjectName, &r.Title, &score); err != nil {
			return nil, err
		}
		// bm25 scores are negative-is-better; flip so higher means more relevant.
		r.Rank = -score
		out = append(out, r)
	}
	return out, rows.Err()
}
