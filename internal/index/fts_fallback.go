//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// Without FTS5 the search entries live in a plain table and matching runs in
// Go: tokenized, case-folded, term-frequency ranked.
func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS search_entries (
			content_type    TEXT NOT NULL,
			content_id      TEXT NOT NULL,
			subject_id      TEXT NOT NULL DEFAULT '',
			subject_name    TEXT NOT NULL DEFAULT '',
			title           TEXT NOT NULL DEFAULT '',
			searchable_text TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (content_type, content_id)
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, e searchEntry) error {
	_, err := tx.Exec(`
		INSERT OR REPLACE INTO search_entries
			(content_type, content_id, subject_id, subject_name, title, searchable_text)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.contentType, e.contentID, e.subjectID, e.subjectName, e.title, e.text)
	if err != nil {
		return fmt.Errorf("index: upsert search entry: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, contentType, contentID string) {
	_, _ = tx.Exec(`DELETE FROM search_entries WHERE content_type = ? AND content_id = ?`,
		contentType, contentID)
}

// Search scans the search entries and ranks them by term frequency, with
// title matches weighted 5x and subject-name matches 3x over body matches.
// Each call is stateless; nothing about the query persists.
func (db *DB) Search(query string, contentTypes []string, limit int) ([]SearchResult, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	q := `SELECT content_type, content_id, subject_id, subject_name, title, searchable_text
	      FROM search_entries`
	var args []any
	if len(contentTypes) > 0 {
		q += ` WHERE content_type IN (?` + strings.Repeat(",?", len(contentTypes)-1) + `)`
		for _, t := range contentTypes {
			args = append(args, t)
		}
	}

	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var text string
		if err := rows.Scan(&r.ContentType, &r.ContentID, &r.SubjectID, &r.SubjectName, &r.Title, &text); err != nil {
			return nil, err
		}
		title := termCounts(tokenize(r.Title))
		subject := termCounts(tokenize(r.SubjectName))
		body := termCounts(tokenize(text))

		var score float64
		matched := true
		for _, term := range terms {
			hits := float64(5*title[term] + 3*subject[term] + body[term])
			if hits == 0 {
				matched = false
				break
			}
			score += hits
		}
		if !matched {
			continue
		}
		r.Rank = score
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank > out[j].Rank })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
